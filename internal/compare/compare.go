// Package compare computes month-over-month deltas of budget data.
package compare

import (
	"sort"

	"kakeibo/internal/core"
)

// DefaultIcon is shown for categories without an icon in either month.
const DefaultIcon = "📊"

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
)

type (
	Trend string

	MonthStats struct {
		TotalBudget      int64   `json:"totalBudget"`
		TotalSpent       int64   `json:"totalSpent"` // sum of expense amounts
		Remaining        int64   `json:"remaining"`
		UtilizationRate  float64 `json:"utilizationRate"`
		CategoryCount    int     `json:"categoryCount"`
		ExpenseCount     int     `json:"expenseCount"`
		AvgExpenseAmount float64 `json:"avgExpenseAmount"`
	}

	// CategoryComparison matches a category across two months by name.
	CategoryComparison struct {
		Name          string  `json:"categoryName"`
		Icon          string  `json:"icon"`
		CurrentSpent  int64   `json:"currentSpent"`
		CompareSpent  int64   `json:"compareSpent"`
		CurrentBudget int64   `json:"currentBudget"`
		CompareBudget int64   `json:"compareBudget"`
		Change        int64   `json:"change"`
		ChangePercent float64 `json:"changePercent"`
		Trend         Trend   `json:"trend"`
	}

	Result struct {
		Current             MonthStats           `json:"current"`
		Compare             MonthStats           `json:"compare"`
		SpentChange         int64                `json:"spentChange"`
		SpentChangePercent  float64              `json:"spentChangePercent"`
		BudgetChange        int64                `json:"budgetChange"`
		BudgetChangePercent float64              `json:"budgetChangePercent"`
		UtilizationChange   float64              `json:"utilizationChange"`
		Categories          []CategoryComparison `json:"categories"`
	}
)

// Stats summarises a single month.
func Stats(data core.MonthlyData) MonthStats {
	var s MonthStats
	for _, c := range data.Categories {
		s.TotalBudget += c.Budget
	}
	for _, e := range data.Expenses {
		s.TotalSpent += e.Amount
	}
	s.Remaining = s.TotalBudget - s.TotalSpent
	s.CategoryCount = len(data.Categories)
	s.ExpenseCount = len(data.Expenses)
	if s.TotalBudget > 0 {
		s.UtilizationRate = float64(s.TotalSpent) / float64(s.TotalBudget) * 100
	}
	if s.ExpenseCount > 0 {
		s.AvgExpenseAmount = float64(s.TotalSpent) / float64(s.ExpenseCount)
	}
	return s
}

// CompareMonths compares current against compare, largest swings first.
func CompareMonths(current, compare core.MonthlyData) Result {
	r := Result{
		Current: Stats(current),
		Compare: Stats(compare),
	}
	r.SpentChange = r.Current.TotalSpent - r.Compare.TotalSpent
	r.SpentChangePercent = changePercent(r.SpentChange, r.Current.TotalSpent, r.Compare.TotalSpent)
	r.BudgetChange = r.Current.TotalBudget - r.Compare.TotalBudget
	r.BudgetChangePercent = changePercent(r.BudgetChange, r.Current.TotalBudget, r.Compare.TotalBudget)
	r.UtilizationChange = r.Current.UtilizationRate - r.Compare.UtilizationRate
	r.Categories = compareCategories(current.Categories, compare.Categories)
	return r
}

func compareCategories(current, compare []core.Category) []CategoryComparison {
	var names []string
	seen := make(map[string]bool)
	for _, list := range [][]core.Category{current, compare} {
		for _, c := range list {
			if !seen[c.Name] {
				seen[c.Name] = true
				names = append(names, c.Name)
			}
		}
	}

	out := make([]CategoryComparison, 0, len(names))
	for _, name := range names {
		cur, curOK := findByName(current, name)
		cmp, cmpOK := findByName(compare, name)

		cc := CategoryComparison{
			Name:          name,
			CurrentSpent:  cur.Spent,
			CompareSpent:  cmp.Spent,
			CurrentBudget: cur.Budget,
			CompareBudget: cmp.Budget,
		}
		cc.Change = cc.CurrentSpent - cc.CompareSpent
		cc.ChangePercent = changePercent(cc.Change, cc.CurrentSpent, cc.CompareSpent)
		switch {
		case cc.Change > 0:
			cc.Trend = TrendUp
		case cc.Change < 0:
			cc.Trend = TrendDown
		default:
			cc.Trend = TrendSame
		}
		switch {
		case curOK && cur.Icon != "":
			cc.Icon = cur.Icon
		case cmpOK && cmp.Icon != "":
			cc.Icon = cmp.Icon
		default:
			cc.Icon = DefaultIcon
		}
		out = append(out, cc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Change) > abs(out[j].Change)
	})
	return out
}

// DefaultCompareMonth picks the newest month other than current, or current
// itself when no other month exists.
func DefaultCompareMonth(available []string, current string) string {
	sorted := make([]string, len(available))
	copy(sorted, available)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	for _, m := range sorted {
		if m != current {
			return m
		}
	}
	return current
}

func changePercent(change, current, previous int64) float64 {
	switch {
	case previous > 0:
		return float64(change) / float64(previous) * 100
	case current > 0:
		return 100
	default:
		return 0
	}
}

func findByName(categories []core.Category, name string) (core.Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return core.Category{}, false
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
