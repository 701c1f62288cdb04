package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/importer"
	"github.com/Veraticus/finhelper/internal/storage"
)

// fileSummary reports how one input file parsed.
type fileSummary struct {
	Name    string
	Records int
	Skipped []importer.RowError
}

func importCmd(v *viper.Viper) *cobra.Command {
	var (
		accountID int64
		format    string
		dryRun    bool
		noBackup  bool
	)

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import transactions from CSV, OFX or QFX files",
		Long: `Import bank exports into an account. Rows whose reference was imported before are
skipped, so re-importing an overlapping statement is safe. Imported rows are classified by
the rules and exported by the next 'finhelper sync pending'.

CSV files need date and amount columns; type, merchant, description, category and
reference are optional.`,
		Example: `  finhelper tx import --account 1 ~/Downloads/bca_2024_03.ofx
  finhelper tx import --account 2 ~/Downloads/*.csv --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandGlobs(args)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.OutOrStdout(), "Already imported rows are skipped when you run the import again.")
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "import")
			defer stop()

			records, summaries, err := readImportFiles(ctx, files, format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printFileSummaries(out, summaries)
			if len(records) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file."))
				return nil
			}
			if dryRun {
				printRecordPreview(out, records)
				fmt.Fprintln(out, cli.FormatInfo("Dry run complete, nothing saved."))
				return nil
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noBackup {
				backupBeforeImport(ctx, a)
			}

			progress := cli.NewProgress(os.Stderr, len(records), "Importing")
			res, err := a.engine.ImportTransactions(ctx, accountID, records, progress.Tick)
			progress.Finish()
			if err != nil && !handler.WasInterrupted() {
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions (%d categorized, %d duplicates skipped)",
				res.Imported, res.Categorized, res.Duplicates)))
			if res.Failed > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d rows failed:", res.Failed)))
				for _, e := range res.Errors {
					fmt.Fprintln(out, "  "+cli.ErrorStyle.Render(e.Error()))
				}
			}
			if res.Imported > 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Run 'finhelper sync pending' to export them."))
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&accountID, "account", "a", 0, "account ID to import into (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or ofx (default from the file extension)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "parse and preview without saving")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the automatic ledger backup")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

// backupBeforeImport snapshots the ledger. A failed backup is logged and the import
// goes ahead.
func backupBeforeImport(ctx context.Context, a *app) {
	bm, err := storage.NewBackupManager(a.store)
	if err != nil {
		a.logger.Warn("automatic backup unavailable", "error", err)
		return
	}
	info, err := bm.AutoBackup(ctx, "import")
	if err != nil {
		a.logger.Warn("automatic backup failed", "error", err)
		return
	}
	a.logger.Debug("ledger backed up", "id", info.ID)
}

// expandGlobs resolves shell patterns the shell left unexpanded.
func expandGlobs(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				slog.Warn("No files found matching pattern", "pattern", pattern)
				continue
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, errors.New("no files found to import")
	}
	return files, nil
}

// readImportFiles parses every file. A file that cannot be read or parsed is logged
// and skipped; row errors are kept in its summary.
func readImportFiles(ctx context.Context, files []string, format string) ([]importer.Record, []fileSummary, error) {
	var forced importer.Format
	if format != "" {
		f, err := importer.ParseFormat(format)
		if err != nil {
			return nil, nil, err
		}
		forced = f
	}

	var (
		records   []importer.Record
		summaries []fileSummary
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return records, summaries, err
		}

		batch, err := parseFile(ctx, path, forced)
		if err != nil {
			slog.Error("Failed to parse file", "file", path, "error", err)
			continue
		}
		records = append(records, batch.Records...)
		summaries = append(summaries, fileSummary{
			Name:    filepath.Base(path),
			Records: len(batch.Records),
			Skipped: batch.Skipped,
		})
	}
	return records, summaries, nil
}

func parseFile(ctx context.Context, path string, format importer.Format) (importer.Batch, error) {
	if format == "" {
		detected, err := importer.DetectFormat(path)
		if err != nil {
			return importer.Batch{}, err
		}
		format = detected
	}
	parser, err := importer.NewParser(format)
	if err != nil {
		return importer.Batch{}, err
	}

	f, err := os.Open(path) // #nosec G304 -- user supplied import file
	if err != nil {
		return importer.Batch{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.Parse(ctx, f)
}

func printFileSummaries(out io.Writer, summaries []fileSummary) {
	if len(summaries) == 0 {
		return
	}
	fmt.Fprintln(out, cli.FormatTitle("📁 Files"))
	for _, s := range summaries {
		line := fmt.Sprintf("  %s: %d transactions", s.Name, s.Records)
		if len(s.Skipped) > 0 {
			line += cli.WarningStyle.Render(fmt.Sprintf(" (%d rows skipped)", len(s.Skipped)))
		}
		fmt.Fprintln(out, line)
		for _, rowErr := range s.Skipped {
			fmt.Fprintln(out, cli.SubtleStyle.Render("    "+rowErr.Error()))
		}
	}
}

func printRecordPreview(out io.Writer, records []importer.Record) {
	const previewRows = 10

	rows := make([][]string, 0, previewRows)
	for i, r := range records {
		if i >= previewRows {
			break
		}
		rows = append(rows, []string{
			r.Timestamp.Format(dateLayout),
			string(r.Type),
			formatMoney(r.Amount),
			orDash(r.Merchant),
			orDash(r.Category),
			orDash(r.Reference),
		})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Date", "Type", "Amount", "Merchant", "Category", "Reference"}, rows))
	if len(records) > previewRows {
		fmt.Fprintln(out, cli.SubtleStyle.Render("… and "+strconv.Itoa(len(records)-previewRows)+" more"))
	}
}
