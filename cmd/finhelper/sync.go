package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/config"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/sheets"
)

func syncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Export the ledger to Google Sheets",
	}

	cmd.AddCommand(syncPendingCmd(v))
	cmd.AddCommand(syncWorkerCmd(v))
	cmd.AddCommand(syncAuthCmd(v))

	return cmd
}

func syncPendingCmd(v *viper.Viper) *cobra.Command {
	var (
		all   bool
		month string
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Export every transaction not yet in the spreadsheet",
		Long: `Export transactions that were imported, edited or failed to export earlier, then
rewrite the budget tab for the month. With --all every transaction is appended again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			processor, err := a.processor(cmd.Context())
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.OutOrStdout(), "Run 'finhelper sync pending' again to export the rest.")
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "sync")
			defer stop()

			out := cmd.OutOrStdout()
			unsynced, err := a.store.ListUnsynced(ctx, 0)
			if err != nil {
				return err
			}
			total := len(unsynced)
			if all {
				stats, err := a.engine.CategorizationStats(ctx)
				if err != nil {
					return err
				}
				total = stats.Total
			}

			progress := cli.NewProgress(os.Stderr, total, "Syncing")
			res, err := processor.SyncPending(ctx, all, progress.Tick)
			progress.Finish()
			if err != nil {
				if handler.WasInterrupted() {
					return nil
				}
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Exported %d transactions", res.Synced)))
			if res.Failed > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d transactions failed and stay pending:", res.Failed)))
				for _, e := range res.Errors {
					fmt.Fprintln(out, "  "+cli.ErrorStyle.Render(e.Error()))
				}
			}

			m, err := a.engine.BudgetStatus(ctx, month)
			if err != nil {
				return err
			}
			if err := processor.Handle(ctx, exporter.NewBudgetsTask(m.Month)); err != nil {
				return fmt.Errorf("failed to export budgets: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Exported %d budgets for %s", len(m.Budgets), m.Month)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "export every transaction, not only pending ones")
	cmd.Flags().StringVarP(&month, "month", "m", "", "budget month to export (default current)")
	return cmd
}

func syncWorkerCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume export tasks from the AMQP broker until interrupted",
		Long: `Run the export side of export.mode=amqp: tasks published by other finhelper
commands are written to Google Sheets. Failed tasks are requeued.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Export.Mode != config.ExportAMQP {
				return common.NewUserError("sync worker needs export.mode set to amqp",
					fmt.Errorf("%w: export.mode is %q", common.ErrInvalidConfig, a.cfg.Export.Mode))
			}

			processor, err := a.processor(cmd.Context())
			if err != nil {
				return err
			}

			q, err := exporter.NewAMQPQueue(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := q.Close(); err != nil {
					slog.Warn("failed to close broker connection", "error", err)
				}
			}()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Waiting for export tasks on %s (Ctrl+C to stop)", a.cfg.AMQP.Queue)))
			err = q.Consume(cmd.Context(), processor.Handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func syncAuthCmd(v *viper.Viper) *cobra.Command {
	var (
		clientID     string
		clientSecret string
		callbackAddr string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Sheets access",
		Long: `Authorize finhelper to write to Google Sheets using OAuth2.

This command will:
1. Print a Google consent URL to open in your browser
2. Wait for the redirect on a local callback server
3. Save the token so later commands can refresh it

A service account (sheets.service_account_path) needs no authorization.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadSheetsConfig(v)
			if clientID != "" {
				cfg.ClientID = clientID
			}
			if clientSecret != "" {
				cfg.ClientSecret = clientSecret
			}
			if cfg.ClientID == "" || cfg.ClientSecret == "" {
				return common.NewUserError(
					"OAuth2 credentials not found. Set sheets.client_id and sheets.client_secret or pass --client-id and --client-secret",
					common.ErrInvalidConfig)
			}

			tokenFile := config.SheetsTokenFile(v)
			slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

			token, err := sheets.Authorize(cmd.Context(), sheets.AuthConfig{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenFile:    tokenFile,
				CallbackAddr: callbackAddr,
			}, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Google Sheets access authorized"))
			if token.RefreshToken == "" {
				fmt.Fprintln(out, cli.FormatWarning("Google returned no refresh token; revoke access and run 'finhelper sync auth' again."))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (overrides config)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (overrides config)")
	cmd.Flags().StringVar(&callbackAddr, "callback", "localhost:8080", "address of the local OAuth2 callback server")
	return cmd
}
