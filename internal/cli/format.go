package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatYen formats a whole-yen amount with thousands separators.
// e.g., 1234567 -> "¥1,234,567"
func FormatYen(amount int64) string {
	if amount < 0 {
		return "-¥" + FormatNumber(-amount)
	}
	return "¥" + FormatNumber(amount)
}

// FormatYenFloat rounds v to whole yen before formatting.
func FormatYenFloat(v float64) string {
	if v < 0 {
		return "-" + FormatYenFloat(-v)
	}
	return FormatYen(int64(v + 0.5))
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a percentage with one decimal.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatChange formats a signed percentage change, e.g. "+12.5%".
func FormatChange(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return FormatPercent(pct)
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max || max < 1 {
		return s
	}
	return string(r[:max-1]) + "…"
}
