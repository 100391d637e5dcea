package analytics

import (
	"math"
	"sort"
	"time"

	"kakeibo/internal/core"
)

// CalculateSpendingPattern describes how the month's expenses are spread over time.
func CalculateSpendingPattern(expenses []core.Expense, ref time.Time) SpendingPattern {
	monthly := currentMonth(expenses, ref)

	var (
		total      int64
		dates      []string
		dayTotals  = make(map[string]int64)
		categories []string
		catTotals  = make(map[string]int64)
	)
	for _, e := range monthly {
		total += e.Amount
		if _, ok := dayTotals[e.Date]; !ok {
			dates = append(dates, e.Date)
		}
		dayTotals[e.Date] += e.Amount
		if _, ok := catTotals[e.CategoryID]; !ok {
			categories = append(categories, e.CategoryID)
		}
		catTotals[e.CategoryID] += e.Amount
	}

	var p SpendingPattern
	if len(dates) > 0 {
		p.AverageDaily = float64(total) / float64(len(dates))
	}
	p.AverageWeekly = p.AverageDaily * 7
	p.PeakSpendingDay = maxKey(dates, dayTotals)
	p.MostExpensiveCategory = maxKey(categories, catTotals)
	p.SpendingTrend = trend(monthly)
	p.Seasonality = variation(dates, dayTotals)
	return p
}

// maxKey returns the key with the strictly highest total; earlier keys win
// ties and zero totals never qualify.
func maxKey(order []string, totals map[string]int64) string {
	best, bestAmount := "", int64(0)
	for _, k := range order {
		if totals[k] > bestAmount {
			best, bestAmount = k, totals[k]
		}
	}
	return best
}

func trend(expenses []core.Expense) Trend {
	if len(expenses) < minTrendSampleSize {
		return TrendStable
	}
	sorted := make([]core.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	mid := len(sorted) / 2
	firstAvg := average(sorted[:mid])
	secondAvg := average(sorted[mid:])

	if firstAvg == 0 {
		if secondAvg > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	diff := (secondAvg - firstAvg) / firstAvg * 100
	switch {
	case diff > trendThreshold:
		return TrendIncreasing
	case diff < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func average(expenses []core.Expense) float64 {
	if len(expenses) == 0 {
		return 0
	}
	var sum int64
	for _, e := range expenses {
		sum += e.Amount
	}
	return float64(sum) / float64(len(expenses))
}

// variation is the coefficient of variation (population) of the daily totals, in percent.
func variation(dates []string, totals map[string]int64) float64 {
	if len(dates) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dates {
		sum += float64(totals[d])
	}
	mean := sum / float64(len(dates))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, d := range dates {
		delta := float64(totals[d]) - mean
		sq += delta * delta
	}
	return math.Sqrt(sq/float64(len(dates))) / mean * 100
}
