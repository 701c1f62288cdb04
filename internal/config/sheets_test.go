package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadSheetsConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "env-secret")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "")
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "")

	v := newViper(t)
	v.Set("sheets.client_id", "viper-client")
	v.Set("sheets.refresh_token", "refresh")
	v.Set("sheets.spreadsheet_id", "sheet-123")

	cfg := LoadSheetsConfig(v)
	assert.Equal(t, "viper-client", cfg.ClientID, "viper wins over env")
	assert.Equal(t, "env-secret", cfg.ClientSecret, "env fills gaps")
	assert.Equal(t, "refresh", cfg.RefreshToken)
	assert.Equal(t, "sheet-123", cfg.SpreadsheetID)
	assert.Equal(t, "FinHelper - Personal Finance", cfg.SpreadsheetName)
	assert.Equal(t, "Asia/Jakarta", cfg.TimeZone)
	assert.NoError(t, cfg.Validate())
}

func TestLoadSheetsConfigWithoutCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadSheetsConfig(newViper(t))
	assert.False(t, cfg.HasCredentials())
	assert.Error(t, cfg.Validate())
}
