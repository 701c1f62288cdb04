package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// EnvPrefix is the prefix of every environment override, e.g. FINHELPER_DATABASE_PATH.
const EnvPrefix = "FINHELPER"

// Export modes.
const (
	ExportDisabled = "disabled"
	ExportMemory   = "memory"
	ExportAMQP     = "amqp"
)

// Config is the validated application configuration.
type Config struct {
	Database DatabaseConfig
	Rules    RulesConfig
	Logging  LoggingConfig
	Accounts AccountsConfig
	Export   ExportConfig
	AMQP     AMQPConfig
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path string
}

// RulesConfig locates the classification rules file.
type RulesConfig struct {
	Path string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// AccountsConfig holds account defaults.
type AccountsConfig struct {
	DefaultCurrency string
}

// ExportConfig controls the outbound export queue.
type ExportConfig struct {
	Mode      string
	Workers   int
	QueueSize int
}

// AMQPConfig points the export queue at a broker.
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// SetDefaults registers every key with its default so env overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(DataDir(), "finhelper.db"))
	v.SetDefault("rules.path", filepath.Join(ConfigDir(), "rules.yaml"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("accounts.default_currency", model.DefaultCurrency)
	v.SetDefault("export.mode", ExportMemory)
	v.SetDefault("export.workers", 2)
	v.SetDefault("export.queue_size", 100)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "finhelper")
	v.SetDefault("amqp.queue", "finhelper.export")
	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_name", "")
	v.SetDefault("sheets.token_file", filepath.Join(ConfigDir(), "sheets_token.json"))
}

// Init wires env lookups and reads the config file. A missing file is not an error.
// cfgFile overrides the search path when set.
func Init(v *viper.Viper, cfgFile string) error {
	LoadDotEnv(".env")

	if cfgFile != "" {
		v.SetConfigFile(ExpandPath(cfgFile))
	} else {
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set.
func LoadDotEnv(path string) {
	if err := godotenv.Load(ExpandPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", path, "error", err)
	}
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Rules:    RulesConfig{Path: ExpandPath(v.GetString("rules.path"))},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Accounts: AccountsConfig{DefaultCurrency: strings.ToUpper(strings.TrimSpace(v.GetString("accounts.default_currency")))},
		Export: ExportConfig{
			Mode:      strings.ToLower(strings.TrimSpace(v.GetString("export.mode"))),
			Workers:   v.GetInt("export.workers"),
			QueueSize: v.GetInt("export.queue_size"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrInvalidConfig)
	}
	if c.Rules.Path == "" {
		return fmt.Errorf("%w: rules.path is required", common.ErrInvalidConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	if c.Accounts.DefaultCurrency == "" {
		c.Accounts.DefaultCurrency = model.DefaultCurrency
	}

	switch c.Export.Mode {
	case ExportDisabled:
	case ExportMemory:
		if c.Export.Workers <= 0 || c.Export.QueueSize <= 0 {
			return fmt.Errorf("%w: export.workers and export.queue_size must be positive", common.ErrInvalidConfig)
		}
	case ExportAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("%w: amqp.url is required when export.mode is amqp", common.ErrInvalidConfig)
		}
		if c.AMQP.Exchange == "" || c.AMQP.Queue == "" {
			return fmt.Errorf("%w: amqp.exchange and amqp.queue are required", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown export.mode %q", common.ErrInvalidConfig, c.Export.Mode)
	}
	return nil
}
