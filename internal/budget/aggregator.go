// Package budget computes monthly category spend and evaluates it against budget limits.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

// SpendLedger sums expense amounts for a category with start <= timestamp < end.
type SpendLedger interface {
	SumExpenses(ctx context.Context, categoryID int64, start, end time.Time) (decimal.Decimal, error)
}

// Aggregator recomputes category spend from the ledger on every call.
type Aggregator struct {
	ledger SpendLedger
}

// NewAggregator creates an aggregator over ledger.
func NewAggregator(ledger SpendLedger) *Aggregator {
	return &Aggregator{ledger: ledger}
}

// SpendFor returns total expenses for the category in month ("YYYY-MM").
// The range is [first day of month, first day of next month) in UTC.
func (a *Aggregator) SpendFor(ctx context.Context, categoryID int64, month string) (decimal.Decimal, error) {
	m, err := model.ParseMonth(month)
	if err != nil {
		return decimal.Zero, err
	}
	return a.SpendForMonth(ctx, categoryID, m)
}

// SpendForMonth is SpendFor with an already parsed month.
func (a *Aggregator) SpendForMonth(ctx context.Context, categoryID int64, m model.Month) (decimal.Decimal, error) {
	start, end := m.Range()
	spend, err := a.ledger.SumExpenses(ctx, categoryID, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses for category %d in %s: %w", categoryID, m, err)
	}
	return spend, nil
}

// TrendMonths returns the n months ending with the month containing now, oldest first.
func TrendMonths(n int, now time.Time) []model.Month {
	if n <= 0 {
		return nil
	}
	current := model.MonthOf(now)
	months := make([]model.Month, n)
	for i := 0; i < n; i++ {
		months[n-1-i] = current.Add(-i)
	}
	return months
}
