package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/budget"
	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/engine"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

func budgetsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "budgets",
		Aliases: []string{"budget"},
		Short:   "Manage monthly category budgets",
	}

	cmd.AddCommand(addBudgetCmd(v))
	cmd.AddCommand(listBudgetsCmd(v))
	cmd.AddCommand(showBudgetCmd(v))
	cmd.AddCommand(updateBudgetCmd(v))
	cmd.AddCommand(deleteBudgetCmd(v))
	cmd.AddCommand(budgetStatusCmd(v))
	cmd.AddCommand(refreshBudgetsCmd(v))
	cmd.AddCommand(budgetTrendsCmd(v))

	return cmd
}

func currentMonth() string {
	return model.MonthOf(time.Now()).String()
}

func addBudgetCmd(v *viper.Viper) *cobra.Command {
	var (
		month     string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:     "add <category> <limit>",
		Short:   "Set a spending limit for a category in a month",
		Example: `  finhelper budgets add "Food & Dining" 3000000 --month 2024-03 --threshold 0.9`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			if month == "" {
				month = currentMonth()
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			cat, err := a.engine.GetOrCreateCategory(ctx, args[0])
			if err != nil {
				return err
			}

			b := &model.Budget{CategoryID: cat.ID, Month: month, AmountLimit: limit, AlertThreshold: threshold}
			if err := a.engine.CreateBudget(ctx, b); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Budget %d: %s %s for %s (spent so far %s)",
				b.ID, cat.Name, formatMoney(b.AmountLimit), b.Month, formatMoney(b.AmountSpent))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "month as YYYY-MM (default current)")
	cmd.Flags().Float64Var(&threshold, "threshold", model.DefaultAlertThreshold, "alert threshold as a fraction of the limit")
	return cmd
}

func listBudgetsCmd(v *viper.Viper) *cobra.Command {
	var (
		month string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budgets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			budgets, err := a.engine.ListBudgets(ctx, service.BudgetFilter{Month: month, ActiveOnly: !all})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(budgets) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No budgets found. Use 'finhelper budgets add' to create one."))
				return nil
			}

			rows := make([][]string, 0, len(budgets))
			for _, b := range budgets {
				name := "-"
				if cat, err := a.store.GetCategoryByID(ctx, b.CategoryID); err == nil {
					name = cat.Name
				}
				eval := budget.Evaluate(b, b.AmountSpent)
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10),
					b.Month,
					name,
					formatMoney(b.AmountLimit),
					formatMoney(b.AmountSpent),
					fmt.Sprintf("%.0f%%", b.AlertThreshold*100),
					cli.FormatStatus(eval.Status),
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Month", "Category", "Limit", "Spent", "Alert", "Status"}, rows))
			fmt.Fprintln(out, cli.SubtleStyle.Render("Spent is the cached value; 'finhelper budgets refresh' recomputes it."))
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "only this month (YYYY-MM)")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive budgets")
	return cmd
}

func showBudgetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one budget with fresh spend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "budget")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			b, err := a.engine.GetBudget(ctx, id)
			if err != nil {
				return err
			}
			eval, spend, err := a.engine.EvaluateBudget(ctx, *b)
			if err != nil {
				return err
			}
			name := "-"
			if cat, err := a.store.GetCategoryByID(ctx, b.CategoryID); err == nil {
				name = cat.Name
			}

			content := fmt.Sprintf("Month:     %s\nLimit:     %s\nSpent:     %s\nRemaining: %s\nUsed:      %s%%\nAlert at:  %.0f%%\nStatus:    %s\nActive:    %t",
				b.Month,
				formatMoney(b.AmountLimit),
				formatMoney(spend),
				formatMoney(eval.Remaining),
				eval.PercentageUsed.StringFixed(1),
				b.AlertThreshold*100,
				cli.FormatStatus(eval.Status),
				b.IsActive)
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(fmt.Sprintf("Budget %d: %s", b.ID, name), content))
			return nil
		},
	}
}

func updateBudgetCmd(v *viper.Viper) *cobra.Command {
	var (
		limit     string
		threshold float64
		active    bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a budget's limit, threshold or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "budget")
			if err != nil {
				return err
			}

			var update model.BudgetUpdate
			flags := cmd.Flags()
			if flags.Changed("limit") {
				l, err := parseAmount(limit)
				if err != nil {
					return err
				}
				update.AmountLimit = &l
			}
			if flags.Changed("threshold") {
				update.AlertThreshold = &threshold
			}
			if flags.Changed("active") {
				update.IsActive = &active
			}
			if update == (model.BudgetUpdate{}) {
				return fmt.Errorf("%w: nothing to update, pass --limit, --threshold or --active", common.ErrInvalidInput)
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.engine.UpdateBudget(cmd.Context(), id, update)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated budget %d: limit %s, alert at %.0f%%, active %t",
				b.ID, formatMoney(b.AmountLimit), b.AlertThreshold*100, b.IsActive)))
			return nil
		},
	}

	cmd.Flags().StringVar(&limit, "limit", "", "new limit")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "new alert threshold fraction")
	cmd.Flags().BoolVar(&active, "active", true, "activate or deactivate (--active=false)")
	return cmd
}

func deleteBudgetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "budget")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeleteBudget(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted budget %d", id)))
			return nil
		},
	}
}

func budgetStatusCmd(v *viper.Viper) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Evaluate every active budget of a month against fresh spend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.engine.BudgetStatus(cmd.Context(), month)
			if err != nil {
				return err
			}
			printMonthStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "month as YYYY-MM (default current)")
	return cmd
}

func printMonthStatus(out io.Writer, status budget.MonthStatus) {
	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s Budgets for %s", cli.ChartIcon, status.Month)))
	if len(status.Budgets) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No active budgets for this month."))
		return
	}

	rows := make([][]string, 0, len(status.Budgets))
	for _, line := range status.Budgets {
		rows = append(rows, []string{
			line.Category,
			formatMoney(line.Budget.AmountLimit),
			formatMoney(line.Spend),
			formatMoney(line.Remaining),
			line.PercentageUsed.StringFixed(1) + "%",
			cli.FormatStatus(line.Status),
		})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Category", "Limit", "Spent", "Remaining", "Used", "Status"}, rows))
	fmt.Fprintf(out, "\nTotal: %s of %s (%s%%), %s remaining\n",
		formatMoney(status.TotalSpent),
		formatMoney(status.TotalBudget),
		status.OverallPercentage.StringFixed(1),
		formatMoney(status.TotalRemaining))

	for _, alert := range status.Alerts {
		msg := fmt.Sprintf("%s (%s%%)", alert.Message, alert.Percentage.StringFixed(1))
		if alert.Status == model.BudgetOverBudget {
			fmt.Fprintln(out, cli.FormatError(msg))
		} else {
			fmt.Fprintln(out, cli.FormatWarning(msg))
		}
	}
}

func refreshBudgetsCmd(v *viper.Viper) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute cached spend of a month's budgets and export them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, true)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.RefreshSpending(cmd.Context(), month)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Refreshed %d budgets", n)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "month as YYYY-MM (default current)")
	return cmd
}

func budgetTrendsCmd(v *viper.Viper) *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show budget adherence over recent months",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			trends, err := a.engine.BudgetTrends(cmd.Context(), months, time.Now())
			if err != nil {
				return err
			}
			printTrends(cmd.OutOrStdout(), trends)
			return nil
		},
	}

	cmd.Flags().IntVarP(&months, "months", "n", engine.DefaultTrendMonths, "number of months ending with the current one")
	return cmd
}

func printTrends(out io.Writer, trends engine.Trends) {
	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s Budget trends", cli.ChartIcon)))

	rows := make([][]string, 0, len(trends.Months))
	for _, p := range trends.Months {
		rows = append(rows, []string{
			p.Month,
			strconv.Itoa(p.BudgetCount),
			formatMoney(p.TotalBudget),
			formatMoney(p.TotalSpent),
			formatMoney(p.Savings),
			p.AdherenceRate.StringFixed(1) + "%",
		})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Month", "Budgets", "Budgeted", "Spent", "Saved", "Adherence"}, rows))

	s := trends.Summary
	fmt.Fprintf(out, "\nAverage budget %s, average spent %s, average adherence %s%%\n",
		formatMoney(s.AverageBudget), formatMoney(s.AverageSpent), s.AverageAdherence.StringFixed(1))
	fmt.Fprintf(out, "Best month %s, worst month %s, spending %s (%s%%)\n",
		s.BestMonth, s.WorstMonth, s.Trend, s.TrendPercentage.StringFixed(1))
}
