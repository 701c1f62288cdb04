package classify

import (
	"context"
	"fmt"

	"github.com/Veraticus/finhelper/internal/model"
)

// DefaultBulkLimit caps how many transactions BulkCategorize looks at per run.
const DefaultBulkLimit = 100

// Ledger is the slice of storage needed for bulk categorization and coverage stats.
type Ledger interface {
	ListUncategorized(ctx context.Context, limit int) ([]model.Transaction, error)
	SetTransactionCategory(ctx context.Context, id, categoryID int64) error
	CountTransactions(ctx context.Context) (total, categorized int, err error)
}

// Stats reports how much of the ledger carries a category.
type Stats struct {
	Total         int
	Categorized   int
	Uncategorized int
	Coverage      float64
}

// BulkResult summarizes a BulkCategorize run.
type BulkResult struct {
	Examined    int
	Categorized int
	Failed      int
}

// BulkCategorize classifies up to limit uncategorized transactions. A failure on one
// transaction is logged and counted; the run continues. progress, if non-nil, is called
// once per examined transaction.
func (c *Classifier) BulkCategorize(ctx context.Context, ledger Ledger, limit int, progress func()) (BulkResult, error) {
	if limit <= 0 {
		limit = DefaultBulkLimit
	}

	txns, err := ledger.ListUncategorized(ctx, limit)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}

	var res BulkResult
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Examined++

		catID, ok, err := c.Classify(ctx, txn.Merchant, txn.Description, txn.Amount)
		switch {
		case err != nil:
			res.Failed++
			c.logger.Warn("failed to classify transaction", "transaction_id", txn.ID, "error", err)
		case ok:
			if err := ledger.SetTransactionCategory(ctx, txn.ID, catID); err != nil {
				res.Failed++
				c.logger.Warn("failed to store category", "transaction_id", txn.ID, "category_id", catID, "error", err)
			} else {
				res.Categorized++
			}
		}

		if progress != nil {
			progress()
		}
	}

	c.logger.Info("bulk categorization finished",
		"examined", res.Examined,
		"categorized", res.Categorized,
		"failed", res.Failed)
	return res, nil
}

// CoverageStats computes categorization coverage over the whole ledger.
func CoverageStats(ctx context.Context, ledger Ledger) (Stats, error) {
	total, categorized, err := ledger.CountTransactions(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count transactions: %w", err)
	}

	s := Stats{
		Total:         total,
		Categorized:   categorized,
		Uncategorized: total - categorized,
	}
	if total > 0 {
		s.Coverage = float64(categorized) / float64(total) * 100
	}
	return s, nil
}
