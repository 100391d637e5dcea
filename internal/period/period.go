// Package period provides calendar helpers for monthly budgeting.
package period

import (
	"time"

	"kakeibo/internal/core"
)

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysRemainingInMonth counts the days from ref through the end of its month, ref included.
func DaysRemainingInMonth(ref time.Time) int {
	return DaysInMonth(ref.Year(), ref.Month()) - ref.Day() + 1
}

// RemainingDaysByType counts the days from ref (inclusive) through the end
// of its month that match the day calculation type.
func RemainingDaysByType(ref time.Time, t core.DayCalculationType) int {
	year, month := ref.Year(), ref.Month()
	last := DaysInMonth(year, month)

	remaining := 0
	for day := ref.Day(); day <= last; day++ {
		wd := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()
		if t.Includes(wd) {
			remaining++
		}
	}
	return remaining
}

// DayTypeLabel returns a display label for the day calculation type.
func DayTypeLabel(t core.DayCalculationType) string {
	switch t.Normalize() {
	case core.Weekdays:
		return "Weekdays only"
	case core.Weekends:
		return "Weekends only"
	default:
		return "Every day"
	}
}
