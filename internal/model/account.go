package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidAccountType is returned for an unknown account type.
var ErrInvalidAccountType = errors.New("invalid account type")

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "IDR"

// AccountType describes the kind of store of money an account represents.
type AccountType string

// Supported account types.
const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeEWallet    AccountType = "e_wallet"
	AccountTypeCash       AccountType = "cash"
	AccountTypeCreditCard AccountType = "credit_card"
)

// ParseAccountType converts input into an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(strings.ToLower(strings.TrimSpace(s))); t {
	case AccountTypeBank, AccountTypeEWallet, AccountTypeCash, AccountTypeCreditCard:
		return t, nil
	case "ewallet", "e-wallet":
		return AccountTypeEWallet, nil
	case "credit-card", "creditcard":
		return AccountTypeCreditCard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
	}
}

// Account holds a running balance mutated by transaction effects.
type Account struct {
	CreatedAt time.Time
	Name      string
	Type      AccountType
	Currency  string
	Balance   decimal.Decimal
	ID        int64
	IsActive  bool
}
