package exporter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/sheets"
	"github.com/Veraticus/finhelper/internal/storage"
)

type fixture struct {
	store   *storage.SQLiteStorage
	sink    *sheets.MockWriter
	proc    *Processor
	account *model.Account
	food    *model.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	acct := &model.Account{Name: "BCA", Type: model.AccountTypeBank}
	require.NoError(t, store.CreateAccount(context.Background(), acct))
	food, _, err := store.InsertCategoryIfAbsent(context.Background(), "Food & Dining")
	require.NoError(t, err)

	sink := sheets.NewMockWriter()
	return &fixture{
		store:   store,
		sink:    sink,
		proc:    NewProcessor(store, sink, common.DiscardLogger()),
		account: acct,
		food:    food,
	}
}

func (f *fixture) addExpense(t *testing.T, amount int64, categoryID *int64, ts time.Time) *model.Transaction {
	t.Helper()
	txn := &model.Transaction{
		AccountID:  f.account.ID,
		CategoryID: categoryID,
		Type:       model.TransactionTypeExpense,
		Amount:     decimal.NewFromInt(amount),
		Timestamp:  ts,
		Merchant:   "Warung",
	}
	require.NoError(t, f.store.CreateTransaction(context.Background(), txn))
	return txn
}

func TestProcessor_HandleTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.addExpense(t, 50, &f.food.ID, time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC))

	require.NoError(t, f.proc.Handle(ctx, NewTransactionTask(txn.ID)))

	rows := f.sink.AppendedRows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Food & Dining", rows[0].Category)
	assert.Equal(t, "BCA", rows[0].Account)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(50)))

	stored, err := f.store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, stored.Synced)
}

func TestProcessor_HandleTransaction_SinkFailureLeavesUnsynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.addExpense(t, 50, nil, time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC))
	sinkErr := errors.New("quota exceeded")
	f.sink.SetError(sinkErr)

	err := f.proc.Handle(ctx, NewTransactionTask(txn.ID))
	assert.ErrorIs(t, err, sinkErr)

	stored, err := f.store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)

	assert.ErrorIs(t, f.proc.Handle(ctx, NewTransactionTask(9999)), common.ErrNotFound)
}

func TestProcessor_HandleBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fun, _, err := f.store.InsertCategoryIfAbsent(ctx, "Entertainment")
	require.NoError(t, err)

	require.NoError(t, f.store.CreateBudget(ctx, &model.Budget{CategoryID: f.food.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(100)}))
	require.NoError(t, f.store.CreateBudget(ctx, &model.Budget{CategoryID: fun.ID, Month: "2024-03", AmountLimit: decimal.NewFromInt(100)}))
	require.NoError(t, f.store.CreateBudget(ctx, &model.Budget{CategoryID: fun.ID, Month: "2024-04", AmountLimit: decimal.NewFromInt(100)}))

	f.addExpense(t, 100, &f.food.ID, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	f.addExpense(t, 30, &fun.ID, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC))

	require.NoError(t, f.proc.Handle(ctx, NewBudgetsTask("2024-03")))

	calls := f.sink.ReplaceCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)

	byCategory := map[string]sheets.BudgetRow{}
	for _, r := range calls[0] {
		byCategory[r.Category] = r
	}
	assert.Equal(t, model.BudgetOverBudget, byCategory["Food & Dining"].Status)
	assert.True(t, byCategory["Entertainment"].Spent.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, model.BudgetOnTrack, byCategory["Entertainment"].Status)
}

func TestProcessor_SyncPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ts := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 8; i++ {
		ids = append(ids, f.addExpense(t, int64(10+i), nil, ts.Add(time.Duration(i)*time.Hour)).ID)
	}

	failing := map[int64]bool{}
	for _, id := range ids[:6] {
		failing[id] = true
	}
	f.sink.AppendFunc = func(_ context.Context, row sheets.TransactionRow) error {
		if failing[row.ID] {
			return fmt.Errorf("row %d rejected", row.ID)
		}
		return nil
	}

	var ticks int
	res, err := f.proc.SyncPending(ctx, false, func() { ticks++ })
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 6, res.Failed)
	assert.Len(t, res.Errors, maxReportedErrors)
	assert.Equal(t, 8, ticks)

	f.sink.AppendFunc = nil
	res, err = f.proc.SyncPending(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Synced, "only previously failed rows are retried")

	res, err = f.proc.SyncPending(ctx, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Synced)
}
