package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransactionType is returned when a transaction type string is not recognized.
var ErrInvalidTransactionType = errors.New("invalid transaction type")

// ErrInvalidSource is returned when a transaction source string is not recognized.
var ErrInvalidSource = errors.New("invalid transaction source")

// TransactionType indicates how a transaction moves money.
type TransactionType string

const (
	// TransactionTypeIncome adds money to an account.
	TransactionTypeIncome TransactionType = "income"
	// TransactionTypeExpense removes money from an account.
	TransactionTypeExpense TransactionType = "expense"
	// TransactionTypeTransfer moves money without changing the recorded balance.
	TransactionTypeTransfer TransactionType = "transfer"
)

// ParseTransactionType converts user or file input into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, s)
	}
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	_, err := ParseTransactionType(string(t))
	return err == nil
}

// Source records where a transaction entered the system.
type Source string

const (
	// SourceManual is a transaction typed in by the user.
	SourceManual Source = "manual"
	// SourceImported is a transaction read from a CSV or OFX file.
	SourceImported Source = "imported"
	// SourceBot is a transaction recorded by a chat bot integration.
	SourceBot Source = "bot"
)

// ParseSource converts input into a Source, accepting the legacy aliases.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return SourceManual, nil
	case "imported", "import", "csv", "csv_import", "csv-import", "ofx":
		return SourceImported, nil
	case "bot", "telegram", "telegram_bot":
		return SourceBot, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
}

// Transaction is a single money movement recorded against an account.
type Transaction struct {
	Timestamp   time.Time
	CreatedAt   time.Time
	CategoryID  *int64
	Merchant    string
	Description string
	ReferenceID string
	Type        TransactionType
	Source      Source
	Amount      decimal.Decimal
	ID          int64
	AccountID   int64
	Synced      bool
}

// Text returns the classification text for the transaction.
func (t *Transaction) Text() string {
	return strings.TrimSpace(t.Merchant + " " + t.Description)
}

// Effect returns the signed balance change this transaction applies to its account.
func (t *Transaction) Effect() decimal.Decimal {
	return BalanceEffect(t.Type, t.Amount)
}

// BalanceEffect returns +amount for income, -amount for expense and zero for transfers.
func BalanceEffect(txType TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch txType {
	case TransactionTypeIncome:
		return amount
	case TransactionTypeExpense:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}

// TransactionUpdate carries the fields to change on an existing transaction.
// Nil fields are left untouched.
type TransactionUpdate struct {
	Timestamp     *time.Time
	Amount        *decimal.Decimal
	Type          *TransactionType
	CategoryID    *int64
	Merchant      *string
	Description   *string
	ClearCategory bool
}

// Apply returns a copy of txn with the update applied.
func (u TransactionUpdate) Apply(txn Transaction) Transaction {
	if u.Timestamp != nil {
		txn.Timestamp = *u.Timestamp
	}
	if u.Amount != nil {
		txn.Amount = *u.Amount
	}
	if u.Type != nil {
		txn.Type = *u.Type
	}
	if u.ClearCategory {
		txn.CategoryID = nil
	} else if u.CategoryID != nil {
		id := *u.CategoryID
		txn.CategoryID = &id
	}
	if u.Merchant != nil {
		txn.Merchant = *u.Merchant
	}
	if u.Description != nil {
		txn.Description = *u.Description
	}
	txn.Synced = false
	return txn
}
