package sheets

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

func TestTransactionRow_Values(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	row := TransactionRow{
		ID:          42,
		Timestamp:   time.Date(2024, time.March, 1, 1, 30, 0, 0, time.UTC),
		CreatedAt:   time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("25000.5"),
		Type:        model.TransactionTypeExpense,
		Source:      model.SourceImported,
		Merchant:    "Starbucks",
		Description: "latte",
	}

	got := row.Values(jakarta)
	require.Len(t, got, len(TransactionHeaders))
	assert.Equal(t, "2024-03-01 08:30:00", got[0])
	assert.Equal(t, "25000.50", got[1])
	assert.Equal(t, "expense", got[2])
	assert.Equal(t, "Uncategorized", got[3])
	assert.Equal(t, "Unknown", got[6])
	assert.Equal(t, "imported", got[7])
	assert.Equal(t, int64(42), got[8])
}

func TestBudgetRow_Values(t *testing.T) {
	row := BudgetRow{
		Month:          "2024-03",
		Category:       "Food & Dining",
		Status:         model.BudgetNearLimit,
		Limit:          decimal.NewFromInt(1000),
		Spent:          decimal.NewFromInt(850),
		Remaining:      decimal.NewFromInt(150),
		Percentage:     decimal.NewFromInt(85),
		AlertThreshold: 0.8,
	}

	assert.Equal(t, []any{
		"2024-03", "Food & Dining", "1000.00", "850.00", "150.00", "85.0%", "80%", "Near Limit",
	}, row.Values())
	assert.Len(t, BudgetHeaders, len(row.Values()))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Over Budget", StatusLabel(model.BudgetOverBudget))
	assert.Equal(t, "Near Limit", StatusLabel(model.BudgetNearLimit))
	assert.Equal(t, "On Track", StatusLabel(model.BudgetOnTrack))
}

func TestA1Range(t *testing.T) {
	assert.Equal(t, "'Transactions'!A:J", a1Range("Transactions", "A:J"))
	assert.Equal(t, "'Bob''s Budget'!A1", a1Range("Bob's Budget", "A1"))
}

func TestClassifyAPIError(t *testing.T) {
	assert.NoError(t, classifyAPIError(nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, classifyAPIError(plain))

	quota := classifyAPIError(fmt.Errorf("append: %w", &googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.ErrorIs(t, quota, common.ErrRateLimit)
	assert.True(t, common.IsRetryable(quota))

	notFound := classifyAPIError(&googleapi.Error{Code: http.StatusNotFound})
	assert.False(t, common.IsRetryable(notFound))

	server := &googleapi.Error{Code: http.StatusServiceUnavailable}
	assert.Same(t, error(server), classifyAPIError(server))
}

func TestWriterRetryOptions(t *testing.T) {
	w := &Writer{config: DefaultConfig(), logger: common.DiscardLogger()}
	opts := w.retryOptions()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.InitialDelay)
	assert.Equal(t, time.Minute, opts.QuotaDelay, "quota errors wait out the per-minute window")
	assert.Same(t, w.logger, opts.Logger)

	w.config.RetryAttempts, w.config.RetryDelay = 0, 0
	opts = w.retryOptions()
	assert.Equal(t, common.DefaultRetryOptions().MaxAttempts, opts.MaxAttempts)
	assert.Equal(t, common.DefaultRetryOptions().InitialDelay, opts.InitialDelay)
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	require.NoError(t, saveToken(path, token))
	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", loaded.RefreshToken)

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
