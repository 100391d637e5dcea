package core

import (
	"strings"
	"time"
)

const (
	Weekdays DayCalculationType = "weekdays"
	Weekends DayCalculationType = "weekends"
	AllDays  DayCalculationType = "all"
)

// DateLayout is the calendar date format used by expenses.
const DateLayout = "2006-01-02"

const (
	maxDescriptionLen = 200
	maxNameLen        = 100
)

type (
	// DayCalculationType selects which days count toward a category's remaining days.
	DayCalculationType string

	Expense struct {
		ID          string `json:"id"`
		CategoryID  string `json:"categoryId"`
		Amount      int64  `json:"amount"` // whole yen
		Description string `json:"description"`
		Date        string `json:"date"` // YYYY-MM-DD
	}

	Category struct {
		ID                 string             `json:"id"`
		Name               string             `json:"name"`
		Budget             int64              `json:"budget"`
		Spent              int64              `json:"spent"` // derived from expenses
		Icon               string             `json:"icon"`
		DayCalculationType DayCalculationType `json:"dayCalculationType"`
	}

	MonthlyData struct {
		Categories []Category `json:"categories"`
		Expenses   []Expense  `json:"expenses"`
	}

	// ProjectData maps month keys (YYYY-MM) to the month's data.
	ProjectData map[string]MonthlyData

	Project struct {
		ID           string     `json:"id"`
		Name         string     `json:"name"`
		Description  string     `json:"description"`
		CreatedAt    time.Time  `json:"createdAt"`
		LastModified time.Time  `json:"lastModified"`
		UserID       string     `json:"userId"`
		IsShared     bool       `json:"isShared"`
		ShareToken   string     `json:"shareToken,omitempty"`
		AllowEdit    bool       `json:"allowEdit"`
		SharedAt     *time.Time `json:"sharedAt,omitempty"`
	}
)

// Normalize maps the empty value to AllDays, matching categories created
// before the field existed.
func (t DayCalculationType) Normalize() DayCalculationType {
	if t == "" {
		return AllDays
	}
	return t
}

func (t DayCalculationType) Validate() error {
	switch t.Normalize() {
	case Weekdays, Weekends, AllDays:
		return nil
	default:
		return ErrInvalidDayType
	}
}

// Includes reports whether the weekday counts for this day type.
func (t DayCalculationType) Includes(wd time.Weekday) bool {
	switch t.Normalize() {
	case Weekdays:
		return wd >= time.Monday && wd <= time.Friday
	case Weekends:
		return wd == time.Saturday || wd == time.Sunday
	case AllDays:
		return true
	default:
		return false
	}
}

// ParseDate parses an expense date in YYYY-MM-DD format.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate formats t as an expense date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// InMonth reports whether the expense date falls in the given calendar month.
func (e Expense) InMonth(year int, month time.Month) bool {
	d, err := ParseDate(e.Date)
	if err != nil {
		return false
	}
	return d.Year() == year && d.Month() == month
}

func (e Expense) Validate() error {
	if e.Amount < 0 {
		return ErrInvalidAmount
	}
	if len(e.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > maxNameLen {
		return ErrNameTooLong
	}
	if c.Budget < 0 {
		return ErrInvalidBudget
	}
	return c.DayCalculationType.Validate()
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > maxNameLen {
		return ErrNameTooLong
	}
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyOwner
	}
	return nil
}

// Clone returns a deep copy of the month data. Nil slices become empty
// slices so the JSON form always carries both arrays.
func (m MonthlyData) Clone() MonthlyData {
	out := MonthlyData{
		Categories: make([]Category, len(m.Categories)),
		Expenses:   make([]Expense, len(m.Expenses)),
	}
	copy(out.Categories, m.Categories)
	copy(out.Expenses, m.Expenses)
	return out
}

// Reconcile recomputes every category's spent total from the expenses.
func (m *MonthlyData) Reconcile() {
	totals := make(map[string]int64, len(m.Categories))
	for _, e := range m.Expenses {
		totals[e.CategoryID] += e.Amount
	}
	for i := range m.Categories {
		m.Categories[i].Spent = totals[m.Categories[i].ID]
	}
}

func (m MonthlyData) CategoryIndex(id string) int {
	for i, c := range m.Categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (m MonthlyData) ExpenseIndex(id string) int {
	for i, e := range m.Expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the project data.
func (p ProjectData) Clone() ProjectData {
	out := make(ProjectData, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}
