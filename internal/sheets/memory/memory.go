// Package memory is an in-process month exporter for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"kakeibo/internal/core"
	ports "kakeibo/internal/sheets"
)

var _ ports.MonthExporter = (*Exporter)(nil)

type Exporter struct {
	mu   sync.Mutex
	rows map[string][][]any
}

func New() *Exporter {
	return &Exporter{rows: make(map[string][][]any)}
}

// ExportMonth appends the month's rows under the project's sheet.
func (e *Exporter) ExportMonth(_ context.Context, project core.Project, month string, data core.MonthlyData) (ports.ExportResult, error) {
	if !core.ValidMonthKey(month) {
		return ports.ExportResult{}, fmt.Errorf("export: %w: %q", core.ErrInvalidKey, month)
	}
	rows := ports.Rows(month, data)

	e.mu.Lock()
	defer e.mu.Unlock()
	start := len(e.rows[project.ID]) + 1
	e.rows[project.ID] = append(e.rows[project.ID], rows...)
	return ports.ExportResult{
		Range: fmt.Sprintf("mem:%s!A%d:E%d", project.ID, start, start+len(rows)-1),
		Rows:  len(rows),
	}, nil
}

// Rows returns a copy of everything exported for the project.
func (e *Exporter) Rows(projectID string) [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.rows[projectID]...)
}
