package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/importer"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

// maxImportErrors caps the row errors an import reports.
const maxImportErrors = 5

// TransactionInput describes a transaction to record.
type TransactionInput struct {
	Timestamp   time.Time
	Amount      decimal.Decimal
	Type        model.TransactionType
	Source      model.Source
	CategoryID  *int64
	Merchant    string
	Description string
	// CategoryName is resolved (and created if needed) when CategoryID is nil.
	CategoryName string
	ReferenceID  string
	AccountID    int64
	// SkipClassify leaves an uncategorized transaction uncategorized.
	SkipClassify bool
	// SkipExport records without enqueueing an export task.
	SkipExport bool
}

// RecordTransaction stores a transaction and applies its balance effect. Without an
// explicit category the rules pick one; a classification failure is logged and the
// transaction is stored uncategorized. Export is enqueued and never awaited.
func (e *Engine) RecordTransaction(ctx context.Context, in TransactionInput) (*model.Transaction, error) {
	txn := &model.Transaction{
		Timestamp:   in.Timestamp,
		AccountID:   in.AccountID,
		Amount:      in.Amount,
		Type:        in.Type,
		CategoryID:  in.CategoryID,
		Merchant:    strings.TrimSpace(in.Merchant),
		Description: strings.TrimSpace(in.Description),
		ReferenceID: strings.TrimSpace(in.ReferenceID),
	}
	source, err := model.ParseSource(string(in.Source))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}
	txn.Source = source
	if txn.Timestamp.IsZero() {
		txn.Timestamp = e.now()
	}
	txn.Timestamp = txn.Timestamp.UTC()
	if !txn.Type.Valid() {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, model.ErrInvalidTransactionType)
	}
	if !txn.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", common.ErrInvalidInput)
	}

	if txn.CategoryID == nil && strings.TrimSpace(in.CategoryName) != "" {
		cat, err := e.GetOrCreateCategory(ctx, in.CategoryName)
		if err != nil {
			return nil, err
		}
		txn.CategoryID = &cat.ID
	}

	if txn.CategoryID == nil && !in.SkipClassify {
		catID, ok, err := e.classifier.Classify(ctx, txn.Merchant, txn.Description, txn.Amount)
		switch {
		case err != nil:
			e.logger.Warn("auto-categorization failed, storing uncategorized",
				"merchant", txn.Merchant, "error", err)
		case ok:
			txn.CategoryID = &catID
		}
	}

	if err := e.ledger.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	e.logger.Info("recorded transaction",
		"transaction_id", txn.ID,
		"account_id", txn.AccountID,
		"type", txn.Type,
		"amount", txn.Amount.String(),
		"categorized", txn.CategoryID != nil)

	if !in.SkipExport {
		e.queue.Enqueue(ctx, exporter.NewTransactionTask(txn.ID))
	}
	return txn, nil
}

// GetTransaction returns one transaction.
func (e *Engine) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return e.ledger.GetTransaction(ctx, id)
}

// ListTransactions returns transactions matching filter, newest first.
func (e *Engine) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	return e.ledger.ListTransactions(ctx, filter)
}

// UpdateTransaction edits a transaction. The balance is corrected by reversing the old
// effect before applying the new one. The row is marked for re-export.
func (e *Engine) UpdateTransaction(ctx context.Context, id int64, update model.TransactionUpdate) (*model.Transaction, error) {
	txn, err := e.ledger.UpdateTransaction(ctx, id, update)
	if err != nil {
		return nil, err
	}
	e.logger.Info("updated transaction", "transaction_id", id)
	return txn, nil
}

// DeleteTransaction removes a transaction and reverses its balance effect.
func (e *Engine) DeleteTransaction(ctx context.Context, id int64) error {
	if err := e.ledger.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	e.logger.Info("deleted transaction", "transaction_id", id)
	return nil
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Errors      []error
	Imported    int
	Categorized int
	Duplicates  int
	Failed      int
}

// ImportTransactions records parsed rows against one account. Rows whose reference was
// already imported for the account are skipped. A failing row is counted and the run
// continues. Imported rows are not exported here; "sync pending" picks them up.
func (e *Engine) ImportTransactions(ctx context.Context, accountID int64, records []importer.Record, progress func()) (ImportResult, error) {
	if _, err := e.ledger.GetAccount(ctx, accountID); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	fail := func(rec importer.Record, err error) {
		res.Failed++
		if len(res.Errors) < maxImportErrors {
			res.Errors = append(res.Errors, fmt.Errorf("%s %s: %w",
				rec.Timestamp.Format("2006-01-02"), rec.Merchant, err))
		}
		e.logger.Warn("failed to import row", "reference", rec.Reference, "error", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if progress != nil {
			progress()
		}

		if rec.Reference != "" {
			exists, err := e.ledger.ReferenceExists(ctx, accountID, rec.Reference)
			if err != nil {
				fail(rec, err)
				continue
			}
			if exists {
				res.Duplicates++
				e.logger.Debug("skipping duplicate import row", "reference", rec.Reference)
				continue
			}
		}

		txn, err := e.RecordTransaction(ctx, TransactionInput{
			Timestamp:    rec.Timestamp,
			AccountID:    accountID,
			Amount:       rec.Amount,
			Type:         rec.Type,
			Merchant:     rec.Merchant,
			Description:  rec.Description,
			CategoryName: rec.Category,
			ReferenceID:  rec.Reference,
			Source:       model.SourceImported,
			SkipExport:   true,
		})
		if err != nil {
			fail(rec, err)
			continue
		}
		res.Imported++
		if txn.CategoryID != nil {
			res.Categorized++
		}
	}

	e.logger.Info("import finished",
		"account_id", accountID,
		"imported", res.Imported,
		"categorized", res.Categorized,
		"duplicates", res.Duplicates,
		"failed", res.Failed)
	return res, nil
}
