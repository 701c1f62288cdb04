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

const accountColumns = `id, name, account_type, currency, balance_cents, is_active, created_at`

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		acct    model.Account
		balance int64
	)
	if err := row.Scan(&acct.ID, &acct.Name, &acct.Type, &acct.Currency, &balance, &acct.IsActive, &acct.CreatedAt); err != nil {
		return nil, err
	}
	acct.Balance = fromCents(balance)
	return &acct, nil
}

// CreateAccount inserts an account and fills in its id.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	account.Name = strings.TrimSpace(account.Name)
	if err := validateString(account.Name, "name"); err != nil {
		return err
	}
	if _, err := model.ParseAccountType(string(account.Type)); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}
	if account.Currency == "" {
		account.Currency = model.DefaultCurrency
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, account_type, currency, balance_cents, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		account.Name, account.Type, strings.ToUpper(account.Currency), toCents(account.Balance), now)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account ID: %w", err)
	}
	account.ID = id
	account.CreatedAt = now
	account.IsActive = true
	account.Currency = strings.ToUpper(account.Currency)

	slog.Info("created account", "name", account.Name, "id", id, "type", account.Type)
	return nil
}

// GetAccount returns an account by id.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q queryRower, id int64) (*model.Account, error) {
	acct, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return acct, nil
}

// ListAccounts returns active accounts ordered by name.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// adjustBalance adds delta cents to the account balance inside tx.
func adjustBalance(ctx context.Context, tx *sql.Tx, accountID, deltaCents int64) error {
	if deltaCents == 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
		deltaCents, accountID)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", accountID, common.ErrNotFound)
	}
	return nil
}
