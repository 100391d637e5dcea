package core

import "errors"

var (
	ErrInvalidKey          = errors.New("invalid month key")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrProjectNotFound     = errors.New("project not found")
	ErrReadOnly            = errors.New("read-only access: mutation not permitted")
	ErrAccessDenied        = errors.New("access denied")
	ErrPersistence         = errors.New("persistence failure")
	ErrMalformedRemoteData = errors.New("malformed remote data")
)

// Validation errors.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidBudget      = errors.New("invalid budget")
	ErrInvalidDate        = errors.New("invalid date: expected YYYY-MM-DD")
	ErrInvalidDayType     = errors.New("invalid day calculation type")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrEmptyOwner         = errors.New("empty owner")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// IsValidation reports whether err is one of the field validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidBudget, ErrInvalidDate, ErrInvalidDayType,
		ErrEmptyName, ErrNameTooLong, ErrEmptyOwner, ErrDescriptionTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
