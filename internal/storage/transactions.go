package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

const transactionColumns = `id, account_id, category_id, occurred_at, amount_cents, type, merchant,
	description, source, reference_id, synced, created_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn        model.Transaction
		categoryID sql.NullInt64
		occurredAt int64
		amount     int64
	)
	if err := row.Scan(&txn.ID, &txn.AccountID, &categoryID, &occurredAt, &amount, &txn.Type,
		&txn.Merchant, &txn.Description, &txn.Source, &txn.ReferenceID, &txn.Synced, &txn.CreatedAt); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		txn.CategoryID = &id
	}
	txn.Timestamp = time.Unix(occurredAt, 0).UTC()
	txn.Amount = fromCents(amount)
	return &txn, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// CreateTransaction stores txn and applies its balance effect to the account in the
// same database transaction. txn.ID and txn.CreatedAt are filled in.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getAccount(ctx, tx, txn.AccountID); err != nil {
			return err
		}
		if err := s.ensureCategory(ctx, tx, txn.CategoryID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (account_id, category_id, occurred_at, amount_cents, type,
				merchant, description, source, reference_id, synced, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txn.AccountID, txn.CategoryID, txn.Timestamp.UTC().Unix(), toCents(txn.Amount), txn.Type,
			txn.Merchant, txn.Description, txn.Source, txn.ReferenceID, txn.Synced, now)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transaction ID: %w", err)
		}
		txn.ID = id

		return adjustBalance(ctx, tx, txn.AccountID, toCents(txn.Effect()))
	})
	if err != nil {
		return err
	}

	txn.CreatedAt = now
	slog.Debug("stored transaction", "id", txn.ID, "account_id", txn.AccountID, "type", txn.Type, "amount", txn.Amount)
	return nil
}

// GetTransaction returns a transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q queryRower, id int64) (*model.Transaction, error) {
	txn, err := scanTransaction(q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

// UpdateTransaction applies update to the stored row. The old balance effect is reversed
// and the new one applied, in that order, atomically with the row update.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, id int64, update model.TransactionUpdate) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var updated model.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getTransaction(ctx, tx, id)
		if err != nil {
			return err
		}

		updated = update.Apply(*old)
		if err := validateTransaction(&updated); err != nil {
			return err
		}
		if err := s.ensureCategory(ctx, tx, updated.CategoryID); err != nil {
			return err
		}

		if err := adjustBalance(ctx, tx, old.AccountID, -toCents(old.Effect())); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, updated.AccountID, toCents(updated.Effect())); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE transactions
			 SET category_id = ?, occurred_at = ?, amount_cents = ?, type = ?,
			     merchant = ?, description = ?, synced = ?
			 WHERE id = ?`,
			updated.CategoryID, updated.Timestamp.UTC().Unix(), toCents(updated.Amount), updated.Type,
			updated.Merchant, updated.Description, updated.Synced, id)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("updated transaction", "id", id, "type", updated.Type, "amount", updated.Amount)
	return &updated, nil
}

// DeleteTransaction reverses the balance effect and removes the row.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, old.AccountID, -toCents(old.Effect())); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		slog.Debug("deleted transaction", "id", id)
		return nil
	})
}

// ListTransactions returns transactions matching filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, fmt.Errorf("%w: end %v is before start %v", ErrInvalidDateRange, *filter.End, *filter.Start)
	}

	var (
		where []string
		args  []any
	)
	if filter.AccountID != nil {
		where = append(where, "account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.Uncategorized {
		where = append(where, "category_id IS NULL")
	} else if filter.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.Start != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Start.UTC().Unix())
	}
	if filter.End != nil {
		where = append(where, "occurred_at < ?")
		args = append(args, filter.End.UTC().Unix())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanTransactions(rows)
}

// ListUncategorized returns up to limit transactions without a category, oldest first.
func (s *SQLiteStorage) ListUncategorized(ctx context.Context, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE category_id IS NULL
		 ORDER BY occurred_at, id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncategorized transactions: %w", err)
	}
	return scanTransactions(rows)
}

// SetTransactionCategory assigns a category without touching balances.
func (s *SQLiteStorage) SetTransactionCategory(ctx context.Context, id, categoryID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, synced = 0 WHERE id = ?`, categoryID, id)
	if err != nil {
		return fmt.Errorf("failed to set transaction category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// CountTransactions returns the total and categorized transaction counts.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	var total, categorized int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(category_id) FROM transactions`).Scan(&total, &categorized)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, categorized, nil
}

// ReferenceExists reports whether the account already holds a transaction with this reference.
func (s *SQLiteStorage) ReferenceExists(ctx context.Context, accountID int64, referenceID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if referenceID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND reference_id = ?`,
		accountID, referenceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return n > 0, nil
}

// ListUnsynced returns up to limit transactions not yet exported, oldest first.
// A limit of zero returns all of them.
func (s *SQLiteStorage) ListUnsynced(ctx context.Context, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE synced = 0 ORDER BY occurred_at, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced transactions: %w", err)
	}
	return scanTransactions(rows)
}

// MarkTransactionSynced flags a transaction as exported.
func (s *SQLiteStorage) MarkTransactionSynced(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// SumExpenses totals expense amounts for a category with start <= timestamp < end.
func (s *SQLiteStorage) SumExpenses(ctx context.Context, categoryID int64, start, end time.Time) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}
	if end.Before(start) {
		return decimal.Zero, fmt.Errorf("%w: end %v is before start %v", ErrInvalidDateRange, end, start)
	}

	var cents int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE category_id = ? AND type = ? AND occurred_at >= ? AND occurred_at < ?`,
		categoryID, model.TransactionTypeExpense, start.UTC().Unix(), end.UTC().Unix()).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return fromCents(cents), nil
}

// PeriodTotals sums income and expense amounts with start <= timestamp < end.
func (s *SQLiteStorage) PeriodTotals(ctx context.Context, start, end time.Time) (service.PeriodTotals, error) {
	if err := validateContext(ctx); err != nil {
		return service.PeriodTotals{}, err
	}

	var income, expense int64
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		 FROM transactions
		 WHERE occurred_at >= ? AND occurred_at < ?`,
		start.UTC().Unix(), end.UTC().Unix()).Scan(&income, &expense)
	if err != nil {
		return service.PeriodTotals{}, fmt.Errorf("failed to total period: %w", err)
	}
	return service.PeriodTotals{Income: fromCents(income), Expense: fromCents(expense)}, nil
}

// ExpensesByCategory groups expenses in [start, end) by category, largest first.
// Uncategorized expenses are reported with CategoryID 0.
func (s *SQLiteStorage) ExpensesByCategory(ctx context.Context, start, end time.Time) ([]service.CategoryTotal, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(t.category_id, 0), COALESCE(c.name, 'Uncategorized'),
			SUM(t.amount_cents), COUNT(*)
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.type = 'expense' AND t.occurred_at >= ? AND t.occurred_at < ?
		 GROUP BY t.category_id
		 ORDER BY SUM(t.amount_cents) DESC`,
		start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to group expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var totals []service.CategoryTotal
	for rows.Next() {
		var (
			ct    service.CategoryTotal
			cents int64
		)
		if err := rows.Scan(&ct.CategoryID, &ct.CategoryName, &cents, &ct.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		ct.Amount = fromCents(cents)
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// ensureCategory checks that a referenced category exists.
func (s *SQLiteStorage) ensureCategory(ctx context.Context, tx *sql.Tx, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, *categoryID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %d: %w", *categoryID, common.ErrNotFound)
	}
	return nil
}
