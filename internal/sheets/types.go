package sheets

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

const rowTimeLayout = "2006-01-02 15:04:05"

// TransactionHeaders is the header row of the transactions tab.
var TransactionHeaders = []any{
	"Date", "Amount", "Type", "Category", "Merchant",
	"Description", "Account", "Source", "ID", "Created",
}

// BudgetHeaders is the header row of the budgets tab.
var BudgetHeaders = []any{
	"Month", "Category", "Budget Limit", "Amount Spent",
	"Remaining", "Percentage Used", "Alert Threshold", "Status",
}

// TransactionRow is one transaction as mirrored to the spreadsheet.
type TransactionRow struct {
	Timestamp   time.Time
	CreatedAt   time.Time
	Amount      decimal.Decimal
	Type        model.TransactionType
	Source      model.Source
	Category    string
	Merchant    string
	Description string
	Account     string
	ID          int64
}

// Values renders the row in header order. Empty names fall back to placeholders.
func (r TransactionRow) Values(loc *time.Location) []any {
	category := r.Category
	if category == "" {
		category = "Uncategorized"
	}
	account := r.Account
	if account == "" {
		account = "Unknown"
	}
	return []any{
		r.Timestamp.In(loc).Format(rowTimeLayout),
		r.Amount.StringFixed(2),
		string(r.Type),
		category,
		r.Merchant,
		r.Description,
		account,
		string(r.Source),
		r.ID,
		r.CreatedAt.In(loc).Format(rowTimeLayout),
	}
}

// BudgetRow is one budget with its evaluation.
type BudgetRow struct {
	Month          string
	Category       string
	Status         model.BudgetStatus
	Limit          decimal.Decimal
	Spent          decimal.Decimal
	Remaining      decimal.Decimal
	Percentage     decimal.Decimal
	AlertThreshold float64
}

// Values renders the row in header order.
func (r BudgetRow) Values() []any {
	category := r.Category
	if category == "" {
		category = "Unknown"
	}
	return []any{
		r.Month,
		category,
		r.Limit.StringFixed(2),
		r.Spent.StringFixed(2),
		r.Remaining.StringFixed(2),
		r.Percentage.StringFixed(1) + "%",
		fmt.Sprintf("%.0f%%", r.AlertThreshold*100),
		StatusLabel(r.Status),
	}
}

// StatusLabel is the human readable form of a budget status.
func StatusLabel(s model.BudgetStatus) string {
	switch s {
	case model.BudgetOverBudget:
		return "Over Budget"
	case model.BudgetNearLimit:
		return "Near Limit"
	default:
		return "On Track"
	}
}
