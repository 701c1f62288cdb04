package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlertThreshold is the fraction of the limit at which a budget becomes near_limit.
const DefaultAlertThreshold = 0.8

// Alert threshold bounds, inclusive.
const (
	MinAlertThreshold = 0.1
	MaxAlertThreshold = 1.0
)

// BudgetStatus summarizes spend against a budget limit.
type BudgetStatus string

const (
	// BudgetOnTrack means spend is below the alert threshold.
	BudgetOnTrack BudgetStatus = "on_track"
	// BudgetNearLimit means spend reached the alert threshold but not the limit.
	BudgetNearLimit BudgetStatus = "near_limit"
	// BudgetOverBudget means spend reached or exceeded the limit.
	BudgetOverBudget BudgetStatus = "over_budget"
)

// Budget is a spending limit for one category in one month.
type Budget struct {
	CreatedAt      time.Time
	Month          string
	AmountLimit    decimal.Decimal
	AmountSpent    decimal.Decimal
	AlertThreshold float64
	ID             int64
	CategoryID     int64
	IsActive       bool
}

// BudgetUpdate carries the mutable budget fields. Nil fields are left untouched.
type BudgetUpdate struct {
	AmountLimit    *decimal.Decimal
	AlertThreshold *float64
	IsActive       *bool
}
