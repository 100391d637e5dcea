package sheets

import (
	"reflect"
	"testing"

	"kakeibo/internal/core"
)

func TestRows(t *testing.T) {
	data := core.MonthlyData{
		Categories: []core.Category{
			{ID: "c1", Name: "Food"},
			{ID: "c2", Name: "Rent"},
		},
		Expenses: []core.Expense{
			{ID: "e1", CategoryID: "c1", Amount: 1200, Description: "Lunch", Date: "2024-06-12"},
			{ID: "e2", CategoryID: "c2", Amount: 80000, Description: "June", Date: "2024-06-01"},
			{ID: "e3", CategoryID: "c1", Amount: 300, Description: "Coffee", Date: "2024-06-12"},
		},
	}

	got := Rows("2024-06", data)
	want := [][]any{
		{"2024-06", "2024-06-01", "Rent", "June", int64(80000)},
		{"2024-06", "2024-06-12", "Food", "Lunch", int64(1200)},
		{"2024-06", "2024-06-12", "Food", "Coffee", int64(300)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rows() = %v, want %v", got, want)
	}
	if data.Expenses[0].ID != "e1" {
		t.Error("Rows() must not reorder the input")
	}
}

func TestRows_Empty(t *testing.T) {
	if got := Rows("2024-06", core.MonthlyData{}); len(got) != 0 {
		t.Errorf("Rows() = %v, want none", got)
	}
}
