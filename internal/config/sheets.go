package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/sheets"
)

// LoadSheetsConfig loads Google Sheets settings. Precedence:
// 1. viper (config file or FINHELPER_SHEETS_* env vars)
// 2. GOOGLE_SHEETS_* env vars
// 3. defaults
//
// The result is not validated; callers check HasCredentials and Validate before use.
func LoadSheetsConfig(v *viper.Viper) sheets.Config {
	config := sheets.DefaultConfig()

	config.ServiceAccountPath = ExpandPath(firstNonEmpty(
		v.GetString("sheets.service_account_path"), os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	config.ClientID = firstNonEmpty(v.GetString("sheets.client_id"), os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	config.ClientSecret = firstNonEmpty(v.GetString("sheets.client_secret"), os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	config.RefreshToken = firstNonEmpty(v.GetString("sheets.refresh_token"), os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	config.SpreadsheetID = firstNonEmpty(v.GetString("sheets.spreadsheet_id"), os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))

	if name := firstNonEmpty(v.GetString("sheets.spreadsheet_name"), os.Getenv("GOOGLE_SHEETS_SPREADSHEET_NAME")); name != "" {
		config.SpreadsheetName = name
	}
	if tz := v.GetString("sheets.timezone"); tz != "" {
		config.TimeZone = tz
	}

	// A refresh token saved by "sync auth" fills in when none is configured.
	if config.RefreshToken == "" && config.ServiceAccountPath == "" {
		if token, err := sheets.LoadToken(SheetsTokenFile(v)); err == nil {
			config.RefreshToken = token.RefreshToken
		}
	}

	return config
}

// SheetsTokenFile is where the OAuth2 token is cached.
func SheetsTokenFile(v *viper.Viper) string {
	return ExpandPath(v.GetString("sheets.token_file"))
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}
