package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/budget"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
	"github.com/Veraticus/finhelper/internal/sheets"
)

// maxReportedErrors caps the errors SyncPending returns.
const maxReportedErrors = 5

// Sink receives exported rows.
type Sink interface {
	AppendTransaction(ctx context.Context, row sheets.TransactionRow) error
	ReplaceBudgets(ctx context.Context, rows []sheets.BudgetRow) error
}

// Store is the ledger access the processor needs.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error)
	ListUnsynced(ctx context.Context, limit int) ([]model.Transaction, error)
	MarkTransactionSynced(ctx context.Context, id int64) error
	ListBudgets(ctx context.Context, filter service.BudgetFilter) ([]model.Budget, error)
	SumExpenses(ctx context.Context, categoryID int64, start, end time.Time) (decimal.Decimal, error)
}

// Processor turns tasks into sink writes.
type Processor struct {
	store      Store
	sink       Sink
	aggregator *budget.Aggregator
	logger     *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(store Store, sink Sink, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		sink:       sink,
		aggregator: budget.NewAggregator(store),
		logger:     logger,
	}
}

// Handle runs one task. It satisfies Handler.
func (p *Processor) Handle(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	switch task.Kind {
	case TaskTransaction:
		txn, err := p.store.GetTransaction(ctx, task.TransactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		return p.exportTransaction(ctx, txn, newNameCache(p.store))
	case TaskBudgets:
		return p.exportBudgets(ctx, task.Month)
	}
	return nil
}

func (p *Processor) exportTransaction(ctx context.Context, txn *model.Transaction, names *nameCache) error {
	row := sheets.TransactionRow{
		ID:          txn.ID,
		Timestamp:   txn.Timestamp,
		CreatedAt:   txn.CreatedAt,
		Amount:      txn.Amount,
		Type:        txn.Type,
		Source:      txn.Source,
		Merchant:    txn.Merchant,
		Description: txn.Description,
		Account:     names.account(ctx, txn.AccountID),
	}
	if txn.CategoryID != nil {
		row.Category = names.category(ctx, *txn.CategoryID)
	}

	if err := p.sink.AppendTransaction(ctx, row); err != nil {
		return fmt.Errorf("export transaction %d: %w", txn.ID, err)
	}
	if err := p.store.MarkTransactionSynced(ctx, txn.ID); err != nil {
		return fmt.Errorf("mark transaction %d synced: %w", txn.ID, err)
	}
	return nil
}

func (p *Processor) exportBudgets(ctx context.Context, month string) error {
	m, err := model.ParseMonth(month)
	if err != nil {
		return err
	}

	budgets, err := p.store.ListBudgets(ctx, service.BudgetFilter{Month: month, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("load budgets: %w", err)
	}

	names := newNameCache(p.store)
	rows := make([]sheets.BudgetRow, 0, len(budgets))
	for _, b := range budgets {
		spend, err := p.aggregator.SpendForMonth(ctx, b.CategoryID, m)
		if err != nil {
			return err
		}
		eval := budget.Evaluate(b, spend)
		rows = append(rows, sheets.BudgetRow{
			Month:          b.Month,
			Category:       names.category(ctx, b.CategoryID),
			Status:         eval.Status,
			Limit:          b.AmountLimit,
			Spent:          spend,
			Remaining:      eval.Remaining,
			Percentage:     eval.PercentageUsed,
			AlertThreshold: b.AlertThreshold,
		})
	}

	if err := p.sink.ReplaceBudgets(ctx, rows); err != nil {
		return fmt.Errorf("export budgets for %s: %w", month, err)
	}
	return nil
}

// SyncResult reports a bulk sync.
type SyncResult struct {
	Errors []error
	Synced int
	Failed int
}

// SyncPending exports every unsynced transaction, or every transaction when forceAll
// is set. A failed row is counted and the run continues; only the first few errors
// are kept. progress, if non-nil, is called once per transaction.
func (p *Processor) SyncPending(ctx context.Context, forceAll bool, progress func()) (SyncResult, error) {
	var (
		txns []model.Transaction
		err  error
	)
	if forceAll {
		txns, err = p.store.ListTransactions(ctx, service.TransactionFilter{})
	} else {
		txns, err = p.store.ListUnsynced(ctx, 0)
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("list transactions to sync: %w", err)
	}

	names := newNameCache(p.store)
	var res SyncResult
	for i := range txns {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.exportTransaction(ctx, &txns[i], names); err != nil {
			res.Failed++
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, err)
			}
			p.logger.Warn("failed to sync transaction", "transaction_id", txns[i].ID, "error", err)
		} else {
			res.Synced++
		}
		if progress != nil {
			progress()
		}
	}

	p.logger.Info("sync finished", "synced", res.Synced, "failed", res.Failed, "force_all", forceAll)
	return res, nil
}

// nameCache memoizes account and category names for one export run.
type nameCache struct {
	store      Store
	accounts   map[int64]string
	categories map[int64]string
}

func newNameCache(store Store) *nameCache {
	return &nameCache{
		store:      store,
		accounts:   make(map[int64]string),
		categories: make(map[int64]string),
	}
}

func (c *nameCache) account(ctx context.Context, id int64) string {
	if name, ok := c.accounts[id]; ok {
		return name
	}
	var name string
	if acct, err := c.store.GetAccount(ctx, id); err == nil {
		name = acct.Name
	} else if !errors.Is(err, common.ErrNotFound) {
		slog.Debug("account lookup failed", "account_id", id, "error", err)
	}
	c.accounts[id] = name
	return name
}

func (c *nameCache) category(ctx context.Context, id int64) string {
	if name, ok := c.categories[id]; ok {
		return name
	}
	var name string
	if cat, err := c.store.GetCategoryByID(ctx, id); err == nil {
		name = cat.Name
	} else if !errors.Is(err, common.ErrNotFound) {
		slog.Debug("category lookup failed", "category_id", id, "error", err)
	}
	c.categories[id] = name
	return name
}
