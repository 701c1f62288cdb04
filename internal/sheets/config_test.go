package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/finhelper/internal/common"
)

func TestConfig_Validate(t *testing.T) {
	oauth := func() Config {
		c := DefaultConfig()
		c.ClientID = "client"
		c.ClientSecret = "secret"
		c.RefreshToken = "token"
		return c
	}

	tests := []struct {
		name    string
		errMsg  string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid oauth config", mutate: func(*Config) {}},
		{
			name: "valid service account config",
			mutate: func(c *Config) {
				c.ClientID, c.ClientSecret, c.RefreshToken = "", "", ""
				c.ServiceAccountPath = "/path/to/key.json"
			},
		},
		{
			name:    "partial oauth credentials",
			mutate:  func(c *Config) { c.ClientSecret = "" },
			wantErr: true,
			errMsg:  "no Google Sheets authentication method configured",
		},
		{
			name:    "multiple auth methods",
			mutate:  func(c *Config) { c.ServiceAccountPath = "/path/to/key.json" },
			wantErr: true,
			errMsg:  "multiple authentication methods configured",
		},
		{
			name:    "same sheet for both tabs",
			mutate:  func(c *Config) { c.BudgetsSheet = c.TransactionsSheet },
			wantErr: true,
			errMsg:  "must differ",
		},
		{
			name:    "unknown time zone",
			mutate:  func(c *Config) { c.TimeZone = "Mars/Olympus" },
			wantErr: true,
			errMsg:  "time zone",
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.RetryDelay = -time.Second },
			wantErr: true,
			errMsg:  "retry delay cannot be negative",
		},
		{
			name:   "zero retries is valid",
			mutate: func(c *Config) { c.RetryAttempts, c.RetryDelay = 0, 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := oauth()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_HasCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.HasCredentials())
	cfg.ServiceAccountPath = "/key.json"
	assert.True(t, cfg.HasCredentials())
}
