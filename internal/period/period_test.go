package period

import (
	"testing"
	"time"

	"kakeibo/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.January, 31},
		{2024, time.February, 29},
		{2023, time.February, 28},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Errorf("DaysInMonth(%d, %v) = %d, want %d", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestDaysRemainingInMonth(t *testing.T) {
	if got := DaysRemainingInMonth(date(2024, time.June, 10)); got != 21 {
		t.Fatalf("expected 21, got %d", got)
	}
	if got := DaysRemainingInMonth(date(2024, time.June, 30)); got != 1 {
		t.Fatalf("expected 1 on last day, got %d", got)
	}
}

func TestRemainingDaysByType(t *testing.T) {
	// June 2024: the 1st is a Saturday, the 30th a Sunday.
	cases := []struct {
		name string
		ref  time.Time
		typ  core.DayCalculationType
		want int
	}{
		{"all from first", date(2024, time.June, 1), core.AllDays, 30},
		{"weekdays from first", date(2024, time.June, 1), core.Weekdays, 20},
		{"weekends from first", date(2024, time.June, 1), core.Weekends, 10},
		{"empty type counts all", date(2024, time.June, 1), "", 30},
		{"last day sunday weekdays", date(2024, time.June, 30), core.Weekdays, 0},
		{"last day sunday weekends", date(2024, time.June, 30), core.Weekends, 1},
		{"mid month weekdays", date(2024, time.June, 24), core.Weekdays, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RemainingDaysByType(tc.ref, tc.typ); got != tc.want {
				t.Errorf("RemainingDaysByType = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWeekdaysPlusWeekendsEqualsAll(t *testing.T) {
	start := date(2023, time.January, 1)
	for i := 0; i < 800; i++ {
		ref := start.AddDate(0, 0, i)
		wd := RemainingDaysByType(ref, core.Weekdays)
		we := RemainingDaysByType(ref, core.Weekends)
		all := RemainingDaysByType(ref, core.AllDays)
		if wd+we != all {
			t.Fatalf("%s: weekdays %d + weekends %d != all %d", ref.Format("2006-01-02"), wd, we, all)
		}
		if all != DaysRemainingInMonth(ref) {
			t.Fatalf("%s: all %d != days remaining %d", ref.Format("2006-01-02"), all, DaysRemainingInMonth(ref))
		}
	}
}

func TestDayTypeLabel(t *testing.T) {
	if DayTypeLabel(core.Weekdays) == DayTypeLabel(core.Weekends) {
		t.Fatalf("labels should differ")
	}
	if DayTypeLabel("") != DayTypeLabel(core.AllDays) {
		t.Fatalf("empty type should share the all-days label")
	}
}
