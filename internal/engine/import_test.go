package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/importer"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

func TestImportTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := time.Date(2024, time.March, 3, 9, 0, 0, 0, time.UTC)

	env.record(t, TransactionInput{
		Timestamp:   day,
		Amount:      decimal.NewFromInt(10000),
		Type:        model.TransactionTypeExpense,
		ReferenceID: "FIT-1",
		SkipExport:  true,
	})
	tasksBefore := len(env.queue.Tasks())

	records := []importer.Record{
		{Timestamp: day, Amount: decimal.NewFromInt(10000), Type: model.TransactionTypeExpense, Merchant: "Old", Reference: "FIT-1"},
		{Timestamp: day, Amount: decimal.NewFromInt(45000), Type: model.TransactionTypeExpense, Merchant: "Starbucks Senayan", Reference: "FIT-2"},
		{Timestamp: day, Amount: decimal.NewFromInt(45000), Type: model.TransactionTypeExpense, Merchant: "Starbucks Senayan", Reference: "FIT-2"},
		{Timestamp: day, Amount: decimal.NewFromInt(120000), Type: model.TransactionTypeExpense, Merchant: "Ranch Market", Category: "Groceries"},
		{Timestamp: day, Amount: decimal.NewFromInt(5000000), Type: model.TransactionTypeIncome, Merchant: "Payroll", Reference: "FIT-3"},
		{Timestamp: day, Amount: decimal.Zero, Type: model.TransactionTypeExpense, Merchant: "Broken", Reference: "FIT-4"},
	}

	ticks := 0
	res, err := env.engine.ImportTransactions(ctx, env.account.ID, records, func() { ticks++ })
	require.NoError(t, err)

	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 3, res.Categorized)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], common.ErrInvalidInput)
	assert.Equal(t, len(records), ticks)
	assert.Len(t, env.queue.Tasks(), tasksBefore, "imports are exported by sync, not enqueued")

	txns, err := env.engine.ListTransactions(ctx, service.TransactionFilter{AccountID: &env.account.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 4)

	byMerchant := make(map[string]model.Transaction)
	for _, txn := range txns {
		if txn.Source == model.SourceImported {
			byMerchant[txn.Merchant] = txn
		}
	}
	assert.Len(t, byMerchant, 3)
	assert.Equal(t, "Food & Dining", categoryName(t, env, byMerchant["Starbucks Senayan"].CategoryID))
	assert.Equal(t, "Groceries", categoryName(t, env, byMerchant["Ranch Market"].CategoryID))
	assert.Equal(t, "Salary", categoryName(t, env, byMerchant["Payroll"].CategoryID))

	// 1,000,000 - 10,000 - 45,000 - 120,000 + 5,000,000
	assert.True(t, decimal.NewFromInt(5825000).Equal(env.balance(t)))
}

func TestImportTransactions_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ImportTransactions(context.Background(), 999, []importer.Record{
		{Amount: decimal.NewFromInt(1), Type: model.TransactionTypeExpense},
	}, nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestImportTransactions_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.engine.ImportTransactions(ctx, env.account.ID, []importer.Record{
		{Amount: decimal.NewFromInt(1), Type: model.TransactionTypeExpense},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Imported)
}

func TestMonthlyAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")
	travel := env.category(t, "Transportation")

	env.record(t, TransactionInput{
		Timestamp:  time.Date(2024, time.February, 1, 8, 0, 0, 0, time.UTC),
		Amount:     decimal.NewFromInt(4000),
		Type:       model.TransactionTypeIncome,
		SkipExport: true,
	})
	env.expense(t, food, 600, time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC))
	env.expense(t, food, 300, time.Date(2024, time.February, 14, 19, 0, 0, 0, time.UTC))
	env.expense(t, travel, 100, time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC))
	env.record(t, TransactionInput{
		Timestamp:    time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.NewFromInt(2000),
		Type:         model.TransactionTypeTransfer,
		SkipClassify: true,
		SkipExport:   true,
	})
	env.expense(t, food, 999, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	report, err := env.engine.MonthlyAnalytics(ctx, "2024-02")
	require.NoError(t, err)

	assert.Equal(t, "2024-02", report.Month)
	assert.True(t, decimal.NewFromInt(4000).Equal(report.Income))
	assert.True(t, decimal.NewFromInt(1000).Equal(report.Expenses))
	assert.True(t, decimal.NewFromInt(3000).Equal(report.Savings))
	assert.True(t, decimal.NewFromInt(75).Equal(report.SavingsRate))
	assert.Equal(t, 5, report.TransactionCount)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, "Food & Dining", report.Categories[0].Name)
	assert.Equal(t, 2, report.Categories[0].Count)
	assert.True(t, decimal.NewFromInt(90).Equal(report.Categories[0].Percentage))
	assert.Equal(t, "Transportation", report.Categories[1].Name)
	assert.True(t, decimal.NewFromInt(10).Equal(report.Categories[1].Percentage))

	require.Len(t, report.DailyFlow, 29)
	first := report.DailyFlow[0]
	assert.Equal(t, "2024-02-01", first.Date)
	assert.True(t, decimal.NewFromInt(3400).Equal(first.Net))
	last := report.DailyFlow[28]
	assert.Equal(t, "2024-02-29", last.Date)
	assert.True(t, decimal.NewFromInt(-100).Equal(last.Net))
	assert.True(t, report.DailyFlow[19].Net.IsZero(), "transfers do not move the daily flow")
}

func TestMonthlyAnalytics_NoIncome(t *testing.T) {
	env := newTestEnv(t)
	food := env.category(t, "Food & Dining")
	env.expense(t, food, 50, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC))

	report, err := env.engine.MonthlyAnalytics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", report.Month)
	assert.True(t, report.SavingsRate.IsZero())
	assert.True(t, decimal.NewFromInt(-50).Equal(report.Savings))
	assert.Len(t, report.DailyFlow, 31)
}
