package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the result of comparing spend to a budget.
type Evaluation struct {
	Status         model.BudgetStatus
	Remaining      decimal.Decimal
	PercentageUsed decimal.Decimal
}

// Evaluate compares spend with the budget limit. A non-positive limit yields a
// percentage of zero and never reports over budget. Spend equal to the limit is
// over budget; the alert threshold is inclusive.
func Evaluate(b model.Budget, spend decimal.Decimal) Evaluation {
	limit := b.AmountLimit
	eval := Evaluation{
		Remaining:      limit.Sub(spend),
		PercentageUsed: decimal.Zero,
		Status:         model.BudgetOnTrack,
	}
	if limit.IsPositive() {
		eval.PercentageUsed = spend.Mul(hundred).Div(limit)
	}

	alertAt := b.AlertThreshold
	if alertAt <= 0 {
		alertAt = model.DefaultAlertThreshold
	}
	threshold := decimal.NewFromFloat(alertAt).Mul(hundred)
	switch {
	case limit.IsPositive() && spend.GreaterThanOrEqual(limit):
		eval.Status = model.BudgetOverBudget
	case eval.PercentageUsed.GreaterThanOrEqual(threshold):
		eval.Status = model.BudgetNearLimit
	}
	return eval
}

// Alert describes a budget that reached its threshold or went over.
type Alert struct {
	Category   string
	Message    string
	Status     model.BudgetStatus
	Percentage decimal.Decimal
	AmountOver decimal.Decimal
}

// AlertFor returns the alert for an evaluation, or false when the budget is on track.
func AlertFor(category string, b model.Budget, spend decimal.Decimal, eval Evaluation) (Alert, bool) {
	if eval.Status == model.BudgetOnTrack {
		return Alert{}, false
	}
	over := spend.Sub(b.AmountLimit)
	if over.IsNegative() {
		over = decimal.Zero
	}
	return Alert{
		Category:   category,
		Status:     eval.Status,
		Message:    fmt.Sprintf("Budget %s for %s", strings.ReplaceAll(string(eval.Status), "_", " "), category),
		Percentage: eval.PercentageUsed.Round(1),
		AmountOver: over,
	}, true
}
