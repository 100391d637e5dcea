package sheets

import (
	"context"
	"sort"

	"kakeibo/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthExporter copies a month's expenses to an external spreadsheet.
	MonthExporter interface {
		ExportMonth(ctx context.Context, project core.Project, month string, data core.MonthlyData) (ExportResult, error)
	}
)

// ExportResult describes what an export wrote.
type ExportResult struct {
	Range string `json:"range"`
	Rows  int    `json:"rows"`
}

// Rows lays a month out as [month, date, category, description, amount]
// rows ordered by date. The sort is stable so same-day expenses keep their
// entry order.
func Rows(month string, data core.MonthlyData) [][]any {
	names := make(map[string]string, len(data.Categories))
	for _, c := range data.Categories {
		names[c.ID] = c.Name
	}

	expenses := make([]core.Expense, len(data.Expenses))
	copy(expenses, data.Expenses)
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date < expenses[j].Date
	})

	rows := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, []any{month, e.Date, names[e.CategoryID], e.Description, e.Amount})
	}
	return rows
}
