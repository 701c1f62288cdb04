package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/config"
	"github.com/Veraticus/finhelper/internal/engine"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/rules"
	"github.com/Veraticus/finhelper/internal/sheets"
	"github.com/Veraticus/finhelper/internal/storage"
)

// errNoSink is returned by commands that need a spreadsheet when none is configured.
var errNoSink = errors.New("google sheets is not configured; set sheets.client_id/client_secret or sheets.service_account_path and run 'finhelper sync auth'")

// app holds everything a command needs. Close releases it in reverse order.
type app struct {
	cfg    *config.Config
	v      *viper.Viper
	store  *storage.SQLiteStorage
	rules  *rules.Store
	engine *engine.Engine
	queue  exporter.Queue
	logger *slog.Logger
}

// openApp loads config, opens and migrates the ledger and loads the rules. With export
// set the configured export queue is started; otherwise exports are discarded.
func openApp(ctx context.Context, v *viper.Viper, export bool) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger := slog.Default()
	ruleStore := rules.NewStore(cfg.Rules.Path, logger)
	ruleStore.Load()

	a := &app{
		cfg:    cfg,
		v:      v,
		store:  store,
		rules:  ruleStore,
		queue:  exporter.NopQueue{},
		logger: logger,
	}
	if export {
		a.queue = a.exportQueue(ctx)
	}

	a.engine = engine.New(store, ruleStore, engine.Options{
		Queue:           a.queue,
		Logger:          logger,
		DefaultCurrency: cfg.Accounts.DefaultCurrency,
	})
	return a, nil
}

// Close drains the export queue and closes the ledger.
func (a *app) Close() {
	if err := a.queue.Close(); err != nil {
		a.logger.Warn("failed to close export queue", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// exportQueue builds the queue for export.mode. Any setup failure degrades to no
// export: the rows stay unsynced and "sync pending" retries them later.
func (a *app) exportQueue(ctx context.Context) exporter.Queue {
	switch a.cfg.Export.Mode {
	case config.ExportMemory:
		processor, err := a.processor(ctx)
		if err != nil {
			a.logger.Debug("export disabled", "reason", err)
			return exporter.NopQueue{}
		}
		return exporter.NewMemoryQueue(ctx, processor.Handle, a.cfg.Export.Workers, a.cfg.Export.QueueSize, a.logger)
	case config.ExportAMQP:
		q, err := exporter.NewAMQPQueue(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, a.logger)
		if err != nil {
			a.logger.Warn("export broker unavailable, rows will sync later", "error", err)
			return exporter.NopQueue{}
		}
		return q
	default:
		return exporter.NopQueue{}
	}
}

// processor builds an export processor writing to Google Sheets.
func (a *app) processor(ctx context.Context) (*exporter.Processor, error) {
	sheetsCfg := config.LoadSheetsConfig(a.v)
	if !sheetsCfg.HasCredentials() {
		return nil, errNoSink
	}
	writer, err := sheets.NewWriter(ctx, sheetsCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets writer: %w", err)
	}
	return exporter.NewProcessor(a.store, writer, a.logger), nil
}
