package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/budget"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

func (env *testEnv) category(t *testing.T, name string) *model.Category {
	t.Helper()
	cat, err := env.engine.GetOrCreateCategory(context.Background(), name)
	require.NoError(t, err)
	return cat
}

func (env *testEnv) expense(t *testing.T, cat *model.Category, amount int64, ts time.Time) {
	t.Helper()
	env.record(t, TransactionInput{
		Timestamp:  ts,
		Amount:     decimal.NewFromInt(amount),
		Type:       model.TransactionTypeExpense,
		CategoryID: &cat.ID,
		SkipExport: true,
	})
}

func TestCreateBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")
	env.expense(t, food, 300, time.Date(2024, time.March, 2, 8, 0, 0, 0, time.UTC))

	b := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000)}
	require.NoError(t, env.engine.CreateBudget(ctx, b))
	assert.Equal(t, model.DefaultAlertThreshold, b.AlertThreshold)
	assert.True(t, decimal.NewFromInt(300).Equal(b.AmountSpent), "spend primed on create")

	stored, err := env.engine.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(stored.AmountSpent))

	dup := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(500)}
	assert.ErrorIs(t, env.engine.CreateBudget(ctx, dup), common.ErrDuplicate)

	missing := &model.Budget{CategoryID: 999, Month: "2024-03", AmountLimit: decimal.NewFromInt(500)}
	assert.ErrorIs(t, env.engine.CreateBudget(ctx, missing), common.ErrNotFound)

	badMonth := &model.Budget{CategoryID: food.ID, Month: "2024-13", AmountLimit: decimal.NewFromInt(500)}
	assert.ErrorIs(t, env.engine.CreateBudget(ctx, badMonth), model.ErrInvalidMonth)
}

func TestBudgetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")
	fun := env.category(t, "Entertainment")
	travel := env.category(t, "Transportation")

	for _, b := range []*model.Budget{
		{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000)},
		{CategoryID: fun.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000)},
		{CategoryID: travel.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000)},
	} {
		require.NoError(t, env.engine.CreateBudget(ctx, b))
	}

	env.expense(t, food, 1000, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	env.expense(t, fun, 800, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC))
	env.expense(t, travel, 100, time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC))
	// April spend must not count toward March.
	env.expense(t, travel, 5000, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))

	status, err := env.engine.BudgetStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", status.Month, "empty month means the current one")

	byCategory := make(map[string]model.BudgetStatus)
	for _, line := range status.Budgets {
		byCategory[line.Category] = line.Status
	}
	assert.Equal(t, map[string]model.BudgetStatus{
		"Food & Dining":  model.BudgetOverBudget,
		"Entertainment":  model.BudgetNearLimit,
		"Transportation": model.BudgetOnTrack,
	}, byCategory)
	assert.Len(t, status.Alerts, 2)
	assert.True(t, decimal.NewFromInt(1900).Equal(status.TotalSpent))
	assert.True(t, decimal.RequireFromString("63.3").Equal(status.OverallPercentage))

	budgets, err := env.engine.ListBudgets(ctx, service.BudgetFilter{CategoryID: &food.ID})
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(budgets[0].AmountSpent), "status writes the cache back")

	_, err = env.engine.BudgetStatus(ctx, "March")
	assert.ErrorIs(t, err, model.ErrInvalidMonth)
}

func TestRefreshSpending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")
	fun := env.category(t, "Entertainment")

	active := &model.Budget{CategoryID: food.ID, Month: "2024-02", AmountLimit: decimal.NewFromInt(500)}
	require.NoError(t, env.engine.CreateBudget(ctx, active))
	inactive := &model.Budget{CategoryID: fun.ID, Month: "2024-02", AmountLimit: decimal.NewFromInt(500)}
	require.NoError(t, env.engine.CreateBudget(ctx, inactive))
	off := false
	_, err := env.engine.UpdateBudget(ctx, inactive.ID, model.BudgetUpdate{IsActive: &off})
	require.NoError(t, err)

	env.expense(t, food, 120, time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC))
	env.expense(t, food, 80, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))

	n, err := env.engine.RefreshSpending(ctx, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := env.engine.GetBudget(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(stored.AmountSpent))

	tasks := stripTimes(env.queue.Tasks())
	require.NotEmpty(t, tasks)
	assert.Equal(t, stripTimes([]exporter.Task{exporter.NewBudgetsTask("2024-02")})[0], tasks[len(tasks)-1])

	// idempotent
	n, err = env.engine.RefreshSpending(ctx, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, err = env.engine.GetBudget(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(stored.AmountSpent))
}

func TestUpdateAndDeleteBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")

	b := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(500)}
	require.NoError(t, env.engine.CreateBudget(ctx, b))

	limit := decimal.NewFromInt(750)
	threshold := 0.9
	updated, err := env.engine.UpdateBudget(ctx, b.ID, model.BudgetUpdate{AmountLimit: &limit, AlertThreshold: &threshold})
	require.NoError(t, err)
	assert.True(t, limit.Equal(updated.AmountLimit))
	assert.InDelta(t, 0.9, updated.AlertThreshold, 1e-9)

	require.NoError(t, env.engine.DeleteBudget(ctx, b.ID))
	_, err = env.engine.GetBudget(ctx, b.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, env.engine.DeleteBudget(ctx, b.ID), common.ErrNotFound)
}

func TestEvaluateBudgetAndComputeSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")
	env.expense(t, food, 400, time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC))
	env.expense(t, food, 600, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	dec, err := env.engine.ComputeSpend(ctx, food.ID, "2023-12")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(dec))

	eval, spend, err := env.engine.EvaluateBudget(ctx, model.Budget{
		CategoryID: food.ID, Month: "2024-01", AmountLimit: decimal.NewFromInt(600), AlertThreshold: 0.8,
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(spend))
	assert.Equal(t, model.BudgetOverBudget, eval.Status)
	assert.True(t, eval.Remaining.IsZero())

	_, err = env.engine.ComputeSpend(ctx, food.ID, "2024-1")
	assert.ErrorIs(t, err, model.ErrInvalidMonth)
}

func TestBudgetTrends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Food & Dining")

	for _, month := range []string{"2024-01", "2024-02", "2024-03"} {
		require.NoError(t, env.engine.CreateBudget(ctx, &model.Budget{
			CategoryID: food.ID, Month: month, AmountLimit: decimal.NewFromInt(1000),
		}))
	}
	env.expense(t, food, 200, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	env.expense(t, food, 1200, time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))
	env.expense(t, food, 900, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	trends, err := env.engine.BudgetTrends(ctx, 3, fixedNow)
	require.NoError(t, err)
	require.Len(t, trends.Months, 3)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"},
		[]string{trends.Months[0].Month, trends.Months[1].Month, trends.Months[2].Month})
	assert.Equal(t, "2024-01", trends.Summary.BestMonth)
	assert.Equal(t, "2024-02", trends.Summary.WorstMonth)
	assert.Equal(t, budget.TrendIncreasing, trends.Summary.Trend)

	trends, err = env.engine.BudgetTrends(ctx, 0, fixedNow)
	require.NoError(t, err)
	assert.Len(t, trends.Months, DefaultTrendMonths)

	_, err = env.engine.BudgetTrends(ctx, MaxTrendMonths+1, fixedNow)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
