// Package service defines the contracts shared between the engine and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	AccountID     *int64
	CategoryID    *int64
	Type          *model.TransactionType
	Start         *time.Time
	End           *time.Time
	Limit         int
	Offset        int
	Uncategorized bool
}

// BudgetFilter defines filtering options for budget queries.
type BudgetFilter struct {
	CategoryID *int64
	Month      string
	ActiveOnly bool
}

// PeriodTotals sums income and expense amounts over a period.
type PeriodTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// CategoryTotal is the expense total for one category over a period.
type CategoryTotal struct {
	CategoryName string
	Amount       decimal.Decimal
	CategoryID   int64
	Count        int
}

// Ledger is the persistence contract for accounts, categories, transactions and budgets.
// Every mutation of a transaction applies its balance effect to the owning account
// atomically with the row change.
type Ledger interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// Category operations
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	InsertCategoryIfAbsent(ctx context.Context, name string) (*model.Category, bool, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	ListCategories(ctx context.Context, includeInactive bool) ([]model.Category, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, update model.TransactionUpdate) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	ListUncategorized(ctx context.Context, limit int) ([]model.Transaction, error)
	SetTransactionCategory(ctx context.Context, id, categoryID int64) error
	CountTransactions(ctx context.Context) (total, categorized int, err error)
	ReferenceExists(ctx context.Context, accountID int64, referenceID string) (bool, error)
	ListUnsynced(ctx context.Context, limit int) ([]model.Transaction, error)
	MarkTransactionSynced(ctx context.Context, id int64) error

	// Aggregates
	SumExpenses(ctx context.Context, categoryID int64, start, end time.Time) (decimal.Decimal, error)
	PeriodTotals(ctx context.Context, start, end time.Time) (PeriodTotals, error)
	ExpensesByCategory(ctx context.Context, start, end time.Time) ([]CategoryTotal, error)

	// Budget operations
	CreateBudget(ctx context.Context, budget *model.Budget) error
	GetBudget(ctx context.Context, id int64) (*model.Budget, error)
	ListBudgets(ctx context.Context, filter BudgetFilter) ([]model.Budget, error)
	UpdateBudget(ctx context.Context, id int64, update model.BudgetUpdate) (*model.Budget, error)
	DeleteBudget(ctx context.Context, id int64) error
	SetBudgetSpent(ctx context.Context, id int64, spent decimal.Decimal) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
