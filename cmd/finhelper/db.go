package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/storage"
)

func dbCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Back up and restore the ledger",
		Long: `Snapshot the ledger database into the backups directory next to it. An automatic
backup is taken before every import; only the newest five automatic backups are kept.`,
	}

	cmd.AddCommand(dbBackupCmd(v))
	cmd.AddCommand(dbListCmd(v))
	cmd.AddCommand(dbRestoreCmd(v))
	cmd.AddCommand(dbDeleteCmd(v))

	return cmd
}

// withBackups opens the ledger and runs fn with its backup manager.
func withBackups(cmd *cobra.Command, v *viper.Viper, fn func(*storage.BackupManager) error) error {
	a, err := openApp(cmd.Context(), v, false)
	if err != nil {
		return err
	}
	defer a.Close()

	bm, err := storage.NewBackupManager(a.store)
	if err != nil {
		return err
	}
	return fn(bm)
}

func dbBackupCmd(v *viper.Viper) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "backup [name]",
		Short:   "Create a backup",
		Example: `  finhelper db backup before-cleanup -m "before deleting old cash entries"`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return withBackups(cmd, v, func(bm *storage.BackupManager) error {
				info, err := bm.Create(cmd.Context(), id, description)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created backup %s (%d transactions, %s)",
					info.ID, info.RowCounts["transactions"], formatSize(info.FileSize))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "message", "m", "", "description")
	return cmd
}

func dbListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackups(cmd, v, func(bm *storage.BackupManager) error {
				backups, err := bm.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(backups) == 0 {
					fmt.Fprintln(out, cli.FormatInfo("No backups yet."))
					return nil
				}

				rows := make([][]string, 0, len(backups))
				for _, b := range backups {
					kind := "manual"
					if b.IsAuto {
						kind = "auto"
					}
					rows = append(rows, []string{
						b.ID,
						b.CreatedAt.Local().Format("2006-01-02 15:04"),
						kind,
						strconv.Itoa(b.RowCounts["transactions"]),
						formatSize(b.FileSize),
						orDash(b.Description),
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"Name", "Created", "Kind", "Transactions", "Size", "Description"}, rows))
				fmt.Fprintln(out, cli.SubtleStyle.Render("Stored in "+bm.Dir()))
				return nil
			})
		},
	}
}

func dbRestoreCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the ledger with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd, v, func(bm *storage.BackupManager) error {
				info, err := bm.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !yes {
					ok, err := cli.Confirm(cmd.Context(), cmd.InOrStdin(), out, fmt.Sprintf(
						"Replace the ledger with backup %s from %s? Changes since then are lost.",
						info.ID, info.CreatedAt.Local().Format("2006-01-02 15:04")))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, cli.FormatInfo("Restore canceled."))
						return nil
					}
				}

				if err := bm.Restore(cmd.Context(), info.ID); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess("Restored backup "+info.ID))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func dbDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd, v, func(bm *storage.BackupManager) error {
				if err := bm.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted backup "+args[0]))
				return nil
			})
		},
	}
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
