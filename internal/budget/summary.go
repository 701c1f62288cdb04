package budget

import (
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

// Line is one budget with its category name and freshly computed spend.
type Line struct {
	Budget   model.Budget
	Category string
	Spend    decimal.Decimal
}

// LineStatus is a Line after evaluation.
type LineStatus struct {
	Line
	Evaluation
}

// MonthStatus is the budget overview for one month.
type MonthStatus struct {
	Month             string
	TotalBudget       decimal.Decimal
	TotalSpent        decimal.Decimal
	TotalRemaining    decimal.Decimal
	OverallPercentage decimal.Decimal
	Budgets           []LineStatus
	Alerts            []Alert
}

// Summarize evaluates every line and totals the month.
func Summarize(month string, lines []Line) MonthStatus {
	status := MonthStatus{
		Month:       month,
		TotalBudget: decimal.Zero,
		TotalSpent:  decimal.Zero,
		Budgets:     make([]LineStatus, 0, len(lines)),
	}

	for _, l := range lines {
		eval := Evaluate(l.Budget, l.Spend)
		status.Budgets = append(status.Budgets, LineStatus{Line: l, Evaluation: eval})
		status.TotalBudget = status.TotalBudget.Add(l.Budget.AmountLimit)
		status.TotalSpent = status.TotalSpent.Add(l.Spend)

		if alert, ok := AlertFor(l.Category, l.Budget, l.Spend, eval); ok {
			status.Alerts = append(status.Alerts, alert)
		}
	}

	status.TotalRemaining = status.TotalBudget.Sub(status.TotalSpent)
	status.OverallPercentage = decimal.Zero
	if status.TotalBudget.IsPositive() {
		status.OverallPercentage = status.TotalSpent.Mul(hundred).Div(status.TotalBudget).Round(1)
	}
	return status
}

// Trend is the direction of spend between the older and newer halves of a period.
type Trend string

// Spend directions.
const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// CategoryPoint is one category's budget and spend in a month.
type CategoryPoint struct {
	Category   string
	Budget     decimal.Decimal
	Spent      decimal.Decimal
	Percentage decimal.Decimal
}

// MonthPoint is the budget total and spend for one month of a trend.
type MonthPoint struct {
	Month         string
	TotalBudget   decimal.Decimal
	TotalSpent    decimal.Decimal
	Savings       decimal.Decimal
	AdherenceRate decimal.Decimal
	Categories    []CategoryPoint
	BudgetCount   int
}

// NewMonthPoint totals lines into a trend point. Adherence is 100 when nothing was budgeted.
func NewMonthPoint(month string, lines []Line) MonthPoint {
	p := MonthPoint{
		Month:       month,
		TotalBudget: decimal.Zero,
		TotalSpent:  decimal.Zero,
		BudgetCount: len(lines),
	}
	for _, l := range lines {
		p.TotalBudget = p.TotalBudget.Add(l.Budget.AmountLimit)
		p.TotalSpent = p.TotalSpent.Add(l.Spend)
		p.Categories = append(p.Categories, CategoryPoint{
			Category:   l.Category,
			Budget:     l.Budget.AmountLimit,
			Spent:      l.Spend,
			Percentage: Evaluate(l.Budget, l.Spend).PercentageUsed,
		})
	}
	p.Savings = p.TotalBudget.Sub(p.TotalSpent)
	p.AdherenceRate = hundred
	if p.TotalBudget.IsPositive() {
		p.AdherenceRate = p.Savings.Mul(hundred).Div(p.TotalBudget)
	}
	return p
}

// TrendSummary aggregates a sequence of month points, oldest first.
type TrendSummary struct {
	BestMonth        string
	WorstMonth       string
	Trend            Trend
	AverageBudget    decimal.Decimal
	AverageSpent     decimal.Decimal
	AverageAdherence decimal.Decimal
	TrendPercentage  decimal.Decimal
}

// SummarizeTrend computes averages, spend direction and the best and worst months by adherence.
// Spend direction compares the average of the older half against the newer half; with
// one month it is stable. Ties for best or worst go to the earlier month.
func SummarizeTrend(points []MonthPoint) TrendSummary {
	if len(points) == 0 {
		return TrendSummary{Trend: TrendStable}
	}

	n := decimal.NewFromInt(int64(len(points)))
	var budget, spent, adherence decimal.Decimal
	best, worst := points[0], points[0]
	for _, p := range points {
		budget = budget.Add(p.TotalBudget)
		spent = spent.Add(p.TotalSpent)
		adherence = adherence.Add(p.AdherenceRate)
		if p.AdherenceRate.GreaterThan(best.AdherenceRate) {
			best = p
		}
		if p.AdherenceRate.LessThan(worst.AdherenceRate) {
			worst = p
		}
	}

	summary := TrendSummary{
		BestMonth:        best.Month,
		WorstMonth:       worst.Month,
		Trend:            TrendStable,
		AverageBudget:    budget.Div(n).Round(2),
		AverageSpent:     spent.Div(n).Round(2),
		AverageAdherence: adherence.Div(n).Round(2),
		TrendPercentage:  decimal.Zero,
	}

	half := len(points) / 2
	if half == 0 {
		return summary
	}
	older := averageSpent(points[:half])
	newer := averageSpent(points[half:])
	switch {
	case newer.GreaterThan(older):
		summary.Trend = TrendIncreasing
	case newer.LessThan(older):
		summary.Trend = TrendDecreasing
	}
	if older.IsPositive() {
		summary.TrendPercentage = newer.Sub(older).Mul(hundred).Div(older).Round(2)
	}
	return summary
}

func averageSpent(points []MonthPoint) decimal.Decimal {
	total := decimal.Zero
	for _, p := range points {
		total = total.Add(p.TotalSpent)
	}
	return total.Div(decimal.NewFromInt(int64(len(points))))
}
