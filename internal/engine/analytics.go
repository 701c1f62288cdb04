package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

const dayLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// CategoryBreakdown is one category's share of a month's expenses.
type CategoryBreakdown struct {
	Name       string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
	CategoryID int64
	Count      int
}

// DailyFlow is the income and expense of one day.
type DailyFlow struct {
	Date     string
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Net      decimal.Decimal
}

// MonthlyReport summarizes one month of the ledger.
type MonthlyReport struct {
	Month            string
	Income           decimal.Decimal
	Expenses         decimal.Decimal
	Savings          decimal.Decimal
	SavingsRate      decimal.Decimal
	Categories       []CategoryBreakdown
	DailyFlow        []DailyFlow
	TransactionCount int
}

// MonthlyAnalytics totals income and expenses of month (current month when empty),
// breaks expenses down by category and lists the daily flow. Savings rate is 0 when
// there is no income.
func (e *Engine) MonthlyAnalytics(ctx context.Context, month string) (MonthlyReport, error) {
	m, err := e.monthOrCurrent(month)
	if err != nil {
		return MonthlyReport{}, err
	}
	start, end := m.Range()

	totals, err := e.ledger.PeriodTotals(ctx, start, end)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("total %s: %w", m, err)
	}
	byCategory, err := e.ledger.ExpensesByCategory(ctx, start, end)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("group expenses for %s: %w", m, err)
	}
	txns, err := e.ledger.ListTransactions(ctx, service.TransactionFilter{Start: &start, End: &end})
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("list transactions for %s: %w", m, err)
	}

	report := MonthlyReport{
		Month:            m.String(),
		Income:           totals.Income,
		Expenses:         totals.Expense,
		Savings:          totals.Income.Sub(totals.Expense),
		SavingsRate:      decimal.Zero,
		TransactionCount: len(txns),
	}
	if totals.Income.IsPositive() {
		report.SavingsRate = report.Savings.Mul(hundred).Div(totals.Income).Round(1)
	}

	for _, ct := range byCategory {
		pct := decimal.Zero
		if totals.Expense.IsPositive() {
			pct = ct.Amount.Mul(hundred).Div(totals.Expense).Round(1)
		}
		report.Categories = append(report.Categories, CategoryBreakdown{
			CategoryID: ct.CategoryID,
			Name:       ct.CategoryName,
			Amount:     ct.Amount,
			Count:      ct.Count,
			Percentage: pct,
		})
	}

	index := make(map[string]int)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		index[key] = len(report.DailyFlow)
		report.DailyFlow = append(report.DailyFlow, DailyFlow{Date: key, Income: decimal.Zero, Expenses: decimal.Zero})
	}
	for _, t := range txns {
		i, ok := index[t.Timestamp.UTC().Format(dayLayout)]
		if !ok {
			continue
		}
		flow := &report.DailyFlow[i]
		switch t.Type {
		case model.TransactionTypeIncome:
			flow.Income = flow.Income.Add(t.Amount)
		case model.TransactionTypeExpense:
			flow.Expenses = flow.Expenses.Add(t.Amount)
		}
	}
	for i := range report.DailyFlow {
		report.DailyFlow[i].Net = report.DailyFlow[i].Income.Sub(report.DailyFlow[i].Expenses)
	}

	return report, nil
}
