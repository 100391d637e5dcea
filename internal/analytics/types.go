package analytics

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

const (
	RecommendIncrease RecommendationType = "increase"
	RecommendDecrease RecommendationType = "decrease"
	RecommendOptimize RecommendationType = "optimize"
)

type (
	RiskLevel          string
	Trend              string
	RecommendationType string

	// BudgetAnalysis aggregates all categories of a month.
	BudgetAnalysis struct {
		TotalBudget         int64   `json:"totalBudget"`
		TotalSpent          int64   `json:"totalSpent"`
		TotalRemaining      int64   `json:"totalRemaining"`
		DailyAverage        float64 `json:"dailyAverage"` // allowance per remaining day
		DaysRemaining       int     `json:"daysRemaining"`
		BurnRate            float64 `json:"burnRate"`
		ActualDailySpending float64 `json:"actualDailySpending"`
		ProjectedEndDate    *string `json:"projectedEndDate"`
		SavingsRate         float64 `json:"savingsRate"`
		BudgetEfficiency    float64 `json:"budgetEfficiency"`
		ExpenseCount        int     `json:"expenseCount"`
	}

	CategoryAnalysis struct {
		CategoryID     string    `json:"categoryId"`
		Name           string    `json:"name"`
		Icon           string    `json:"icon"`
		Budget         int64     `json:"budget"`
		Spent          int64     `json:"spent"`
		Remaining      int64     `json:"remaining"`
		Efficiency     float64   `json:"efficiency"`
		DailyAverage   float64   `json:"dailyAverage"`
		DaysRemaining  int       `json:"daysRemaining"`
		ProjectedTotal float64   `json:"projectedTotal"`
		IsOnTrack      bool      `json:"isOnTrack"`
		RiskLevel      RiskLevel `json:"riskLevel"`
		Recommendation string    `json:"recommendation"`
		ExpenseCount   int       `json:"expenseCount"`
	}

	SpendingPattern struct {
		AverageDaily          float64 `json:"averageDaily"`
		AverageWeekly         float64 `json:"averageWeekly"`
		PeakSpendingDay       string  `json:"peakSpendingDay"`
		MostExpensiveCategory string  `json:"mostExpensiveCategory"`
		SpendingTrend         Trend   `json:"spendingTrend"`
		Seasonality           float64 `json:"seasonality"`
	}

	Recommendation struct {
		Type            RecommendationType `json:"type"`
		CategoryID      string             `json:"categoryId"`
		CurrentAmount   int64              `json:"currentAmount"`
		SuggestedAmount int64              `json:"suggestedAmount"`
		Reason          string             `json:"reason"`
		Impact          float64            `json:"impact"`
	}

	// Insights bundles every analysis of one month.
	Insights struct {
		Reference       string             `json:"referenceDate"`
		Budget          BudgetAnalysis     `json:"budget"`
		Categories      []CategoryAnalysis `json:"categories"`
		Pattern         SpendingPattern    `json:"pattern"`
		Recommendations []Recommendation   `json:"recommendations"`
	}
)

// Recommendation messages.
const (
	MsgOverBudget     = "Over budget. Cut back on spending or revisit the budget."
	MsgApproaching    = "More than 80% of the budget is used. Watch the remaining spending."
	MsgOnPaceToExceed = "At the current pace this category will exceed its budget."
	MsgRedistribute   = "Plenty of budget left. Consider redistributing it to other categories."
	MsgOnTrack        = "On track and within budget."

	ReasonIncrease = "Spending exceeds the budget; consider increasing it."
	ReasonDecrease = "Budget is underused; consider reallocating it to other categories."
	ReasonOptimize = "Adjusting the spending pattern would make this budget more efficient."
)
