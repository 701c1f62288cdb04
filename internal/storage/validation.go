// Package storage provides the SQLite ledger: accounts, categories, transactions and budgets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// Validation errors. Each wraps common.ErrInvalidInput.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = fmt.Errorf("%w: string parameter cannot be empty", common.ErrInvalidInput)
	ErrNilParameter       = fmt.Errorf("%w: parameter cannot be nil", common.ErrInvalidInput)
	ErrInvalidDateRange   = fmt.Errorf("%w: start must be before end", common.ErrInvalidInput)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero", common.ErrInvalidInput)
	ErrInvalidThreshold   = fmt.Errorf("%w: alert threshold must be between 0.1 and 1.0", common.ErrInvalidInput)
	ErrInvalidTransaction = fmt.Errorf("%w: invalid transaction", common.ErrInvalidInput)
	ErrInvalidBudget      = fmt.Errorf("%w: invalid budget", common.ErrInvalidInput)
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction checks the fields every stored transaction must carry and
// rewrites a source alias to its canonical form.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.AccountID <= 0 {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if txn.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTransaction)
	}
	if !txn.Amount.IsPositive() || toCents(txn.Amount) <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, txn.Amount)
	}
	if !txn.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, txn.Type)
	}
	source, err := model.ParseSource(string(txn.Source))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	txn.Source = source
	return nil
}

// validateThreshold checks an alert threshold is within bounds.
func validateThreshold(threshold float64) error {
	if threshold < model.MinAlertThreshold || threshold > model.MaxAlertThreshold {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// validateBudget checks a new budget.
func validateBudget(b *model.Budget) error {
	if b == nil {
		return fmt.Errorf("%w: budget", ErrNilParameter)
	}
	if b.CategoryID <= 0 {
		return fmt.Errorf("%w: missing category ID", ErrInvalidBudget)
	}
	if _, err := model.ParseMonth(b.Month); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBudget, err)
	}
	if !b.AmountLimit.IsPositive() || toCents(b.AmountLimit) <= 0 {
		return fmt.Errorf("%w: limit %s", ErrInvalidAmount, b.AmountLimit)
	}
	return validateThreshold(b.AlertThreshold)
}
