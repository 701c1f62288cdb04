package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// CreateAccount stores a new account. Currency defaults to the configured one.
func (e *Engine) CreateAccount(ctx context.Context, acct *model.Account) error {
	acct.Name = strings.TrimSpace(acct.Name)
	if acct.Name == "" {
		return fmt.Errorf("%w: account name is required", common.ErrInvalidInput)
	}
	if acct.Type == "" {
		acct.Type = model.AccountTypeBank
	}
	if _, err := model.ParseAccountType(string(acct.Type)); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}
	acct.Currency = strings.ToUpper(strings.TrimSpace(acct.Currency))
	if acct.Currency == "" {
		acct.Currency = e.defaultCurrency
	}
	acct.IsActive = true

	return e.ledger.CreateAccount(ctx, acct)
}

// GetAccount returns one account.
func (e *Engine) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return e.ledger.GetAccount(ctx, id)
}

// ListAccounts returns every account.
func (e *Engine) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return e.ledger.ListAccounts(ctx)
}
