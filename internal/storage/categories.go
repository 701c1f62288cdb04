package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

const categoryColumns = `id, name, parent_id, icon, color, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat      model.Category
		parentID sql.NullInt64
	)
	if err := row.Scan(&cat.ID, &cat.Name, &parentID, &cat.Icon, &cat.Color, &cat.IsActive, &cat.CreatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		id := parentID.Int64
		cat.ParentID = &id
	}
	return &cat, nil
}

// ListCategories returns categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + categoryColumns + ` FROM categories`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByName returns the category with exactly this name, active or not.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	return s.getCategoryByName(ctx, s.db, name)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStorage) getCategoryByName(ctx context.Context, q queryRower, name string) (*model.Category, error) {
	cat, err := scanCategory(q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// GetCategoryByID returns a category by id.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	cat, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// InsertCategoryIfAbsent creates an active category named name unless one exists,
// and returns the stored row. created reports whether this call inserted it.
// The insert and re-read share one transaction; a concurrent writer that wins the
// race on the UNIQUE(name) constraint turns this call into a plain read.
func (s *SQLiteStorage) InsertCategoryIfAbsent(ctx context.Context, name string) (*model.Category, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, false, err
	}

	var (
		cat     *model.Category
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, is_active, created_at) VALUES (?, 1, ?)
			 ON CONFLICT(name) DO NOTHING`,
			name, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		created = n == 1

		cat, err = s.getCategoryByName(ctx, tx, name)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		slog.Info("created new category", "name", name, "id", cat.ID)
	}
	return cat, created, nil
}

// CreateCategory inserts a fully specified category. A name clash returns common.ErrDuplicate.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	category.Name = strings.TrimSpace(category.Name)
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, parent_id, icon, color, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		category.Name, category.ParentID, category.Icon, category.Color, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", category.Name, common.ErrDuplicate)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category ID: %w", err)
	}

	category.ID = id
	category.CreatedAt = now
	category.IsActive = true

	slog.Info("created new category", "name", category.Name, "id", id)
	return nil
}
