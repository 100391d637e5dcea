package core

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonthKey reports whether key has the canonical YYYY-MM shape.
func ValidMonthKey(key string) bool {
	return monthKeyPattern.MatchString(key)
}

// MonthKey returns the month key for t.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// ParseMonthKey splits a month key into year and month.
func ParseMonthKey(key string) (int, time.Month, error) {
	if !ValidMonthKey(key) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	year, _ := strconv.Atoi(key[:4])
	month, _ := strconv.Atoi(key[5:])
	return year, time.Month(month), nil
}

// ShiftMonthKey moves a valid month key by delta months.
func ShiftMonthKey(key string, delta int) (string, error) {
	year, month, err := ParseMonthKey(key)
	if err != nil {
		return "", err
	}
	return MonthKey(time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)), nil
}

// SortedMonthKeys returns the keys of data in ascending order.
func SortedMonthKeys(data ProjectData) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
