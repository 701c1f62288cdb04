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

const budgetColumns = `id, category_id, month, amount_limit_cents, amount_spent_cents, alert_threshold, is_active, created_at`

func scanBudget(row rowScanner) (*model.Budget, error) {
	var (
		b            model.Budget
		limit, spent int64
	)
	if err := row.Scan(&b.ID, &b.CategoryID, &b.Month, &limit, &spent, &b.AlertThreshold, &b.IsActive, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.AmountLimit = fromCents(limit)
	b.AmountSpent = fromCents(spent)
	return &b, nil
}

// CreateBudget inserts an active budget. Another active budget for the same category
// and month returns common.ErrDuplicate; an unknown category returns common.ErrNotFound.
func (s *SQLiteStorage) CreateBudget(ctx context.Context, budget *model.Budget) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if budget != nil && budget.AlertThreshold == 0 {
		budget.AlertThreshold = model.DefaultAlertThreshold
	}
	if err := validateBudget(budget); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureCategory(ctx, tx, &budget.CategoryID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (category_id, month, amount_limit_cents, amount_spent_cents, alert_threshold, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)`,
			budget.CategoryID, budget.Month, toCents(budget.AmountLimit), toCents(budget.AmountSpent),
			budget.AlertThreshold, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("budget for category %d in %s: %w", budget.CategoryID, budget.Month, common.ErrDuplicate)
			}
			return fmt.Errorf("failed to create budget: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get budget ID: %w", err)
		}
		budget.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	budget.CreatedAt = now
	budget.IsActive = true
	slog.Info("created budget", "id", budget.ID, "category_id", budget.CategoryID, "month", budget.Month)
	return nil
}

// GetBudget returns a budget by id.
func (s *SQLiteStorage) GetBudget(ctx context.Context, id int64) (*model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getBudget(ctx, s.db, id)
}

func getBudget(ctx context.Context, q queryRower, id int64) (*model.Budget, error) {
	b, err := scanBudget(q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query budget: %w", err)
	}
	return b, nil
}

// ListBudgets returns budgets matching filter ordered by month then category.
func (s *SQLiteStorage) ListBudgets(ctx context.Context, filter service.BudgetFilter) ([]model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Month != "" {
		where = append(where, "month = ?")
		args = append(args, filter.Month)
	}
	if filter.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + budgetColumns + ` FROM budgets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY month, category_id, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var budgets []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budgets: %w", err)
	}
	return budgets, nil
}

// UpdateBudget changes limit, threshold or active flag.
func (s *SQLiteStorage) UpdateBudget(ctx context.Context, id int64, update model.BudgetUpdate) (*model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var out *model.Budget
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBudget(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.AmountLimit != nil {
			b.AmountLimit = *update.AmountLimit
		}
		if update.AlertThreshold != nil {
			b.AlertThreshold = *update.AlertThreshold
		}
		if update.IsActive != nil {
			b.IsActive = *update.IsActive
		}
		if err := validateBudget(b); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE budgets SET amount_limit_cents = ?, alert_threshold = ?, is_active = ? WHERE id = ?`,
			toCents(b.AmountLimit), b.AlertThreshold, b.IsActive, id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("budget for category %d in %s: %w", b.CategoryID, b.Month, common.ErrDuplicate)
			}
			return fmt.Errorf("failed to update budget: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBudget removes a budget.
func (s *SQLiteStorage) DeleteBudget(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %d: %w", id, common.ErrNotFound)
	}
	slog.Info("deleted budget", "id", id)
	return nil
}

// SetBudgetSpent overwrites the cached spend. Concurrent refreshes race; the last write wins.
func (s *SQLiteStorage) SetBudgetSpent(ctx context.Context, id int64, spent decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE budgets SET amount_spent_cents = ? WHERE id = ?`, toCents(spent), id)
	if err != nil {
		return fmt.Errorf("failed to update budget spend: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %d: %w", id, common.ErrNotFound)
	}
	return nil
}
