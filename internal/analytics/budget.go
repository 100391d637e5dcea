// Package analytics turns a month's categories and expenses into budget
// metrics. Every function takes an explicit reference date and is pure.
package analytics

import (
	"math"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/period"
)

const (
	onTrackTolerance   = 1.1
	trendThreshold     = 10.0
	minTrendSampleSize = 3
)

// CalculateBudgetAnalysis aggregates burn rate, allowance and projection over all categories.
func CalculateBudgetAnalysis(categories []core.Category, expenses []core.Expense, ref time.Time) BudgetAnalysis {
	var a BudgetAnalysis
	for _, c := range categories {
		a.TotalBudget += c.Budget
		a.TotalSpent += c.Spent
	}
	a.TotalRemaining = a.TotalBudget - a.TotalSpent
	a.ExpenseCount = len(currentMonth(expenses, ref))

	daysInMonth := period.DaysInMonth(ref.Year(), ref.Month())
	daysPassed := ref.Day()
	a.DaysRemaining = daysInMonth - daysPassed + 1

	if a.DaysRemaining > 0 {
		a.DailyAverage = float64(a.TotalRemaining) / float64(a.DaysRemaining)
	}
	if daysPassed > 0 {
		a.ActualDailySpending = float64(a.TotalSpent) / float64(daysPassed)
	}
	if a.TotalBudget > 0 {
		a.BurnRate = float64(a.TotalSpent) / float64(a.TotalBudget) * 100
		a.SavingsRate = float64(a.TotalRemaining) / float64(a.TotalBudget) * 100
	}

	if a.ActualDailySpending > 0 && a.TotalRemaining > 0 {
		daysUntilExhausted := float64(a.TotalRemaining) / a.ActualDailySpending
		end := core.FormatDate(ref.AddDate(0, 0, int(math.Floor(daysUntilExhausted))))
		a.ProjectedEndDate = &end
	}

	expected := float64(daysPassed) / float64(daysInMonth) * float64(a.TotalBudget)
	if expected > 0 {
		a.BudgetEfficiency = float64(a.TotalSpent) / expected * 100
	}
	return a
}

// CalculateCategoryAnalysis evaluates one category, counting remaining days
// according to the category's day calculation type.
func CalculateCategoryAnalysis(category core.Category, expenses []core.Expense, ref time.Time) CategoryAnalysis {
	a := CategoryAnalysis{
		CategoryID: category.ID,
		Name:       category.Name,
		Icon:       category.Icon,
		Budget:     category.Budget,
		Spent:      category.Spent,
		Remaining:  category.Budget - category.Spent,
	}
	for _, e := range currentMonth(expenses, ref) {
		if e.CategoryID == category.ID {
			a.ExpenseCount++
		}
	}

	if category.Budget > 0 {
		a.Efficiency = float64(category.Spent) / float64(category.Budget) * 100
	}

	daysInMonth := period.DaysInMonth(ref.Year(), ref.Month())
	daysPassed := ref.Day()
	a.DaysRemaining = period.RemainingDaysByType(ref, category.DayCalculationType)
	if a.DaysRemaining > 0 {
		a.DailyAverage = float64(a.Remaining) / float64(a.DaysRemaining)
	}

	var actualDaily float64
	if daysPassed > 0 {
		actualDaily = float64(category.Spent) / float64(daysPassed)
	}
	a.ProjectedTotal = float64(category.Spent) + actualDaily*float64(a.DaysRemaining)

	expected := float64(daysPassed) / float64(daysInMonth) * float64(category.Budget)
	a.IsOnTrack = float64(category.Spent) <= expected*onTrackTolerance

	switch {
	case a.Efficiency > 100:
		a.RiskLevel, a.Recommendation = RiskHigh, MsgOverBudget
	case a.Efficiency > 80:
		a.RiskLevel, a.Recommendation = RiskMedium, MsgApproaching
	case a.ProjectedTotal > float64(category.Budget):
		a.RiskLevel, a.Recommendation = RiskMedium, MsgOnPaceToExceed
	case a.Efficiency < 50 && float64(daysPassed) > float64(daysInMonth)*0.5:
		a.RiskLevel, a.Recommendation = RiskLow, MsgRedistribute
	default:
		a.RiskLevel, a.Recommendation = RiskLow, MsgOnTrack
	}
	return a
}

// GenerateBudgetRecommendations suggests budget changes for categories that
// are over, under or unevenly used. Categories needing no change are omitted.
func GenerateBudgetRecommendations(categories []core.Category, expenses []core.Expense, ref time.Time) []Recommendation {
	recs := make([]Recommendation, 0, len(categories))
	for _, c := range categories {
		if r, ok := recommend(c, CalculateCategoryAnalysis(c, expenses, ref)); ok {
			recs = append(recs, r)
		}
	}
	return recs
}

func recommend(c core.Category, a CategoryAnalysis) (Recommendation, bool) {
	r := Recommendation{CategoryID: c.ID, CurrentAmount: c.Budget}
	switch {
	case a.Efficiency > 100:
		r.Type = RecommendIncrease
		r.SuggestedAmount = ceil(a.ProjectedTotal * 1.1)
		r.Reason = ReasonIncrease
		r.Impact = a.ProjectedTotal - float64(c.Budget)
	case a.Efficiency < 50 && a.ProjectedTotal < float64(c.Budget)*0.7:
		r.Type = RecommendDecrease
		r.SuggestedAmount = ceil(a.ProjectedTotal * 1.2)
		r.Reason = ReasonDecrease
		r.Impact = float64(c.Budget - r.SuggestedAmount)
	case a.RiskLevel == RiskMedium:
		r.Type = RecommendOptimize
		r.SuggestedAmount = ceil(a.ProjectedTotal * 1.05)
		r.Reason = ReasonOptimize
		r.Impact = math.Abs(float64(c.Budget - r.SuggestedAmount))
	default:
		return Recommendation{}, false
	}
	return r, true
}

// Summarize computes every analysis for one month in a single pass.
func Summarize(data core.MonthlyData, ref time.Time) Insights {
	ins := Insights{
		Reference:       core.FormatDate(ref),
		Budget:          CalculateBudgetAnalysis(data.Categories, data.Expenses, ref),
		Categories:      make([]CategoryAnalysis, 0, len(data.Categories)),
		Pattern:         CalculateSpendingPattern(data.Expenses, ref),
		Recommendations: make([]Recommendation, 0),
	}
	for _, c := range data.Categories {
		a := CalculateCategoryAnalysis(c, data.Expenses, ref)
		ins.Categories = append(ins.Categories, a)
		if r, ok := recommend(c, a); ok {
			ins.Recommendations = append(ins.Recommendations, r)
		}
	}
	return ins
}

// ReferenceDate picks the date a month is evaluated at: now for the current
// month, the last day for past months and the first day for future ones.
func ReferenceDate(monthKey string, now time.Time) (time.Time, error) {
	year, month, err := core.ParseMonthKey(monthKey)
	if err != nil {
		return time.Time{}, err
	}
	current := core.MonthKey(now)
	switch {
	case monthKey == current:
		return now, nil
	case monthKey < current:
		return time.Date(year, month, period.DaysInMonth(year, month), 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Date(year, month, 1, 0, 0, 0, 0, now.Location()), nil
	}
}

func currentMonth(expenses []core.Expense, ref time.Time) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.InMonth(ref.Year(), ref.Month()) {
			out = append(out, e)
		}
	}
	return out
}

func ceil(v float64) int64 {
	return int64(math.Ceil(v))
}
