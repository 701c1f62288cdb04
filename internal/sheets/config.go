// Package sheets mirrors transactions and budgets to a Google spreadsheet.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/finhelper/internal/common"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TransactionsSheet  string
	BudgetsSheet       string
	TimeZone           string
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:   "FinHelper - Personal Finance",
		TransactionsSheet: "Transactions",
		BudgetsSheet:      "Budgets",
		TimeZone:          "Asia/Jakarta",
		EnableFormatting:  true,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
	}
}

// HasCredentials reports whether any authentication method is configured.
func (c *Config) HasCredentials() bool {
	return c.ServiceAccountPath != "" || c.ClientID != "" || c.ClientSecret != "" || c.RefreshToken != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no Google Sheets authentication method configured", common.ErrInvalidConfig)
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("%w: multiple authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig)
	}

	if c.TransactionsSheet == "" || c.BudgetsSheet == "" {
		return fmt.Errorf("%w: sheet names cannot be empty", common.ErrInvalidConfig)
	}
	if c.TransactionsSheet == c.BudgetsSheet {
		return fmt.Errorf("%w: transactions and budgets sheets must differ", common.ErrInvalidConfig)
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("%w: time zone %q: %w", common.ErrInvalidConfig, c.TimeZone, err)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", common.ErrInvalidConfig)
	}

	return nil
}
