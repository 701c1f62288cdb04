package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/classify"
	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/engine"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

func txCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "Record and manage transactions",
	}

	cmd.AddCommand(addTxCmd(v))
	cmd.AddCommand(listTxCmd(v))
	cmd.AddCommand(editTxCmd(v))
	cmd.AddCommand(deleteTxCmd(v))
	cmd.AddCommand(importCmd(v))
	cmd.AddCommand(recategorizeCmd(v))

	return cmd
}

func addTxCmd(v *viper.Viper) *cobra.Command {
	var (
		accountID    int64
		txType       string
		categoryName string
		description  string
		date         string
		reference    string
		noClassify   bool
	)

	cmd := &cobra.Command{
		Use:   "add <amount> [merchant]",
		Short: "Record a transaction",
		Long: `Record an income, expense or transfer. Without --category the classification
rules pick one; if none matches the transaction is stored uncategorized.`,
		Example: `  finhelper tx add 45000 Starbucks --account 1
  finhelper tx add 8500000 "PT Maju" --type income --account 1 --category Salary`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			t, err := model.ParseTransactionType(txType)
			if err != nil {
				return err
			}
			ts, err := parseDate(date)
			if err != nil {
				return err
			}
			in := engine.TransactionInput{
				Timestamp:    ts,
				AccountID:    accountID,
				Amount:       amount,
				Type:         t,
				Description:  description,
				CategoryName: categoryName,
				ReferenceID:  reference,
				SkipClassify: noClassify,
			}
			if len(args) > 1 {
				in.Merchant = args[1]
			}

			a, err := openApp(cmd.Context(), v, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			txn, err := a.engine.RecordTransaction(ctx, in)
			if err != nil {
				return err
			}

			category := "uncategorized"
			if txn.CategoryID != nil {
				if cat, err := a.store.GetCategoryByID(ctx, *txn.CategoryID); err == nil {
					category = cat.Name
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Recorded %s of %s (ID: %d, %s)",
				txn.Type, formatMoney(txn.Amount), txn.ID, category)))
			if acct, err := a.engine.GetAccount(ctx, txn.AccountID); err == nil {
				fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%s balance: %s %s", acct.Name, acct.Currency, formatMoney(acct.Balance))))
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&accountID, "account", "a", 0, "account ID (required)")
	cmd.Flags().StringVarP(&txType, "type", "t", string(model.TransactionTypeExpense), "income, expense or transfer")
	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "category name, created if missing")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free text description")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default now)")
	cmd.Flags().StringVar(&reference, "ref", "", "external reference ID")
	cmd.Flags().BoolVar(&noClassify, "no-classify", false, "leave uncategorized when no category is given")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func listTxCmd(v *viper.Viper) *cobra.Command {
	var (
		accountID     int64
		categoryName  string
		txType        string
		from, to      string
		limit         int
		uncategorized bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := service.TransactionFilter{Limit: limit, Uncategorized: uncategorized}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if txType != "" {
				t, err := model.ParseTransactionType(txType)
				if err != nil {
					return err
				}
				filter.Type = &t
			}
			if from != "" {
				start, err := parseDate(from)
				if err != nil {
					return err
				}
				filter.Start = &start
			}
			if to != "" {
				end, err := parseDate(to)
				if err != nil {
					return err
				}
				end = end.AddDate(0, 0, 1)
				filter.End = &end
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if categoryName != "" {
				cat, err := a.engine.LookupCategory(ctx, categoryName)
				if err != nil {
					return err
				}
				filter.CategoryID = &cat.ID
			}

			txns, err := a.engine.ListTransactions(ctx, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No transactions found."))
				return nil
			}

			names := make(map[int64]string)
			categoryOf := func(id *int64) string {
				if id == nil {
					return "-"
				}
				if name, ok := names[*id]; ok {
					return name
				}
				name := "-"
				if cat, err := a.store.GetCategoryByID(ctx, *id); err == nil {
					name = cat.Name
				}
				names[*id] = name
				return name
			}

			rows := make([][]string, 0, len(txns))
			for _, t := range txns {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.Timestamp.Format(dateLayout),
					string(t.Type),
					formatMoney(t.Amount),
					categoryOf(t.CategoryID),
					orDash(t.Merchant),
					orDash(t.Description),
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Date", "Type", "Amount", "Category", "Merchant", "Description"}, rows))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&accountID, "account", "a", 0, "only this account")
	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "only this category")
	cmd.Flags().StringVarP(&txType, "type", "t", "", "only this type")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows, 0 for all")
	cmd.Flags().BoolVar(&uncategorized, "uncategorized", false, "only uncategorized transactions")

	return cmd
}

func editTxCmd(v *viper.Viper) *cobra.Command {
	var (
		amount        string
		txType        string
		categoryName  string
		merchant      string
		description   string
		date          string
		clearCategory bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a transaction and correct the account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}

			var update model.TransactionUpdate
			flags := cmd.Flags()
			if flags.Changed("amount") {
				amt, err := parseAmount(amount)
				if err != nil {
					return err
				}
				update.Amount = &amt
			}
			if flags.Changed("type") {
				t, err := model.ParseTransactionType(txType)
				if err != nil {
					return err
				}
				update.Type = &t
			}
			if flags.Changed("date") {
				ts, err := parseDate(date)
				if err != nil {
					return err
				}
				if ts.IsZero() {
					return fmt.Errorf("%w: --date needs a YYYY-MM-DD value", common.ErrInvalidInput)
				}
				update.Timestamp = &ts
			}
			if flags.Changed("merchant") {
				update.Merchant = &merchant
			}
			if flags.Changed("description") {
				update.Description = &description
			}
			update.ClearCategory = clearCategory

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if categoryName != "" && !clearCategory {
				cat, err := a.engine.GetOrCreateCategory(ctx, categoryName)
				if err != nil {
					return err
				}
				update.CategoryID = &cat.ID
			}

			txn, err := a.engine.UpdateTransaction(ctx, id, update)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated transaction %d: %s %s",
				txn.ID, txn.Type, formatMoney(txn.Amount))))
			return nil
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "new amount")
	cmd.Flags().StringVarP(&txType, "type", "t", "", "new type")
	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "new category name, created if missing")
	cmd.Flags().StringVarP(&merchant, "merchant", "m", "", "new merchant")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearCategory, "clear-category", false, "remove the category")

	return cmd
}

func deleteTxCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and reverse its balance effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			txn, err := a.engine.GetTransaction(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !yes {
				ok, err := cli.Confirm(ctx, cmd.InOrStdin(), out, fmt.Sprintf("Delete %s of %s on %s?",
					txn.Type, formatMoney(txn.Amount), txn.Timestamp.Format(dateLayout)))
				if err != nil {
					if errors.Is(err, cli.ErrInputCancelled) {
						return nil
					}
					return err
				}
				if !ok {
					fmt.Fprintln(out, cli.FormatInfo("Nothing deleted."))
					return nil
				}
			}

			if err := a.engine.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted transaction %d", id)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func recategorizeCmd(v *viper.Viper) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Run the rules over uncategorized transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := cli.NewInterruptHandler(cmd.OutOrStdout(), "Run 'finhelper tx recategorize' again to continue.")
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "recategorize")
			defer stop()

			before, err := a.engine.CategorizationStats(ctx)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = classify.DefaultBulkLimit
			}
			total := min(before.Uncategorized, limit)

			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, cli.FormatSuccess("Every transaction already has a category."))
				return nil
			}

			progress := cli.NewProgress(os.Stderr, total, "Categorizing")
			res, err := a.engine.BulkCategorize(ctx, limit, progress.Tick)
			progress.Finish()
			if err != nil && !handler.WasInterrupted() {
				return err
			}

			after, err := a.engine.CategorizationStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Categorized %d of %d transactions", res.Categorized, res.Examined)))
			if res.Failed > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d transactions failed, see the log", res.Failed)))
			}
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Coverage: %.1f%% (%d uncategorized)", after.Coverage, after.Uncategorized)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", classify.DefaultBulkLimit, "maximum transactions to examine")
	return cmd
}
