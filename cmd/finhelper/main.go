package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/config"
)

var version = "dev"

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "finhelper",
		Short: "💰 Personal finance tracker",
		Long: `finhelper records income and expenses across your accounts, categorizes them
with editable keyword rules, tracks monthly budgets and mirrors everything to a
Google Sheets spreadsheet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.Init(v, cfgFile); err != nil {
				return err
			}
			return common.SetupLogger(v.GetString("logging.level"), v.GetString("logging.format"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/finhelper/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "path to the SQLite database")

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(rulesCmd(v))
	rootCmd.AddCommand(classifyCmd(v))
	rootCmd.AddCommand(categoriesCmd(v))
	rootCmd.AddCommand(accountsCmd(v))
	rootCmd.AddCommand(txCmd(v))
	rootCmd.AddCommand(budgetsCmd(v))
	rootCmd.AddCommand(reportCmd(v))
	rootCmd.AddCommand(syncCmd(v))
	rootCmd.AddCommand(dbCmd(v))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := newRootCmd(viper.New()).ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finhelper %s\n", version)
		},
	}
}
