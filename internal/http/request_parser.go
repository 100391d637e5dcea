package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kakeibo/internal/core"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errInvalidBody)
	}
	return nil
}

// monthParam returns the validated month key of the route.
func monthParam(r *http.Request) (string, error) {
	key := r.PathValue("month")
	if !core.ValidMonthKey(key) {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKey, key)
	}
	return key, nil
}

// optionalMonth validates a month key from the query string; empty is allowed.
func optionalMonth(r *http.Request, name string) (string, error) {
	key := strings.TrimSpace(r.URL.Query().Get(name))
	if key != "" && !core.ValidMonthKey(key) {
		return "", fmt.Errorf("%w: %s=%q", core.ErrInvalidKey, name, key)
	}
	return key, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
