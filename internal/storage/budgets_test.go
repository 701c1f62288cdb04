package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

func TestSQLiteStorage_CreateBudget(t *testing.T) {
	store := createMemoryStorage(t)
	ctx := context.Background()
	food := createTestCategory(t, store, "Food")

	b := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000)}
	require.NoError(t, store.CreateBudget(ctx, b))
	assert.NotZero(t, b.ID)
	assert.InDelta(t, model.DefaultAlertThreshold, b.AlertThreshold, 0.0001)

	dup := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(50)}
	assert.ErrorIs(t, store.CreateBudget(ctx, dup), common.ErrDuplicate)

	next := &model.Budget{CategoryID: food.ID, Month: "2024-04", AmountLimit: decimal.NewFromInt(50)}
	require.NoError(t, store.CreateBudget(ctx, next))

	missing := &model.Budget{CategoryID: 777, Month: "2024-03", AmountLimit: decimal.NewFromInt(50)}
	assert.ErrorIs(t, store.CreateBudget(ctx, missing), common.ErrNotFound)
}

func TestSQLiteStorage_CreateBudget_Validation(t *testing.T) {
	store := createMemoryStorage(t)
	ctx := context.Background()
	food := createTestCategory(t, store, "Food")

	tests := []struct {
		budget  *model.Budget
		wantErr error
		name    string
	}{
		{
			name:    "bad month",
			budget:  &model.Budget{CategoryID: food.ID, Month: "March", AmountLimit: decimal.NewFromInt(10)},
			wantErr: model.ErrInvalidMonth,
		},
		{
			name:    "zero limit",
			budget:  &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.Zero},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "threshold too low",
			budget:  &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(10), AlertThreshold: 0.05},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "threshold too high",
			budget:  &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(10), AlertThreshold: 1.5},
			wantErr: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateBudget(ctx, tt.budget)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestSQLiteStorage_BudgetLifecycle(t *testing.T) {
	store := createMemoryStorage(t)
	ctx := context.Background()
	food := createTestCategory(t, store, "Food")
	fun := createTestCategory(t, store, "Fun")

	b := &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(1000), AlertThreshold: 0.9}
	require.NoError(t, store.CreateBudget(ctx, b))
	require.NoError(t, store.CreateBudget(ctx, &model.Budget{CategoryID: fun.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(200)}))
	require.NoError(t, store.CreateBudget(ctx, &model.Budget{CategoryID: fun.ID, Month: "2024-04", AmountLimit: decimal.NewFromInt(200)}))

	require.NoError(t, store.SetBudgetSpent(ctx, b.ID, decimal.RequireFromString("123.45")))
	got, err := store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountSpent.Equal(decimal.RequireFromString("123.45")))

	march, err := store.ListBudgets(ctx, service.BudgetFilter{Month: "2024-03"})
	require.NoError(t, err)
	assert.Len(t, march, 2)

	funOnly, err := store.ListBudgets(ctx, service.BudgetFilter{CategoryID: &fun.ID})
	require.NoError(t, err)
	assert.Len(t, funOnly, 2)

	limit := decimal.NewFromInt(1500)
	inactive := false
	updated, err := store.UpdateBudget(ctx, b.ID, model.BudgetUpdate{AmountLimit: &limit, IsActive: &inactive})
	require.NoError(t, err)
	assert.True(t, updated.AmountLimit.Equal(limit))
	assert.False(t, updated.IsActive)

	active, err := store.ListBudgets(ctx, service.BudgetFilter{Month: "2024-03", ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// With the first budget inactive, a new active one for the same slot is allowed.
	require.NoError(t, store.CreateBudget(ctx, &model.Budget{CategoryID: food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(10)}))

	reactivate := true
	_, err = store.UpdateBudget(ctx, b.ID, model.BudgetUpdate{IsActive: &reactivate})
	assert.ErrorIs(t, err, common.ErrDuplicate)

	badThreshold := 0.01
	_, err = store.UpdateBudget(ctx, b.ID, model.BudgetUpdate{AlertThreshold: &badThreshold})
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	require.NoError(t, store.DeleteBudget(ctx, b.ID))
	_, err = store.GetBudget(ctx, b.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteBudget(ctx, b.ID), common.ErrNotFound)
}
