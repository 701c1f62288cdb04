package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/engine"
)

func reportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summaries of the ledger",
	}

	cmd.AddCommand(monthlyReportCmd(v))
	return cmd
}

func monthlyReportCmd(v *viper.Viper) *cobra.Command {
	var (
		month string
		daily bool
	)

	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Income, expenses, savings and category breakdown for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.MonthlyAnalytics(cmd.Context(), month)
			if err != nil {
				return err
			}
			printMonthlyReport(cmd.OutOrStdout(), report, daily)
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "month as YYYY-MM (default current)")
	cmd.Flags().BoolVar(&daily, "daily", false, "include the day by day flow")
	return cmd
}

func printMonthlyReport(out io.Writer, r engine.MonthlyReport, daily bool) {
	summary := fmt.Sprintf("Income:       %s\nExpenses:     %s\nSavings:      %s\nSavings rate: %s%%\nTransactions: %d",
		formatMoney(r.Income),
		formatMoney(r.Expenses),
		formatMoney(r.Savings),
		r.SavingsRate.StringFixed(1),
		r.TransactionCount)
	fmt.Fprintln(out, cli.RenderBox(fmt.Sprintf("%s %s", cli.MoneyIcon, r.Month), summary))

	if len(r.Categories) > 0 {
		rows := make([][]string, 0, len(r.Categories))
		for _, c := range r.Categories {
			rows = append(rows, []string{
				c.Name,
				formatMoney(c.Amount),
				c.Percentage.StringFixed(1) + "%",
				strconv.Itoa(c.Count),
			})
		}
		fmt.Fprintln(out, cli.FormatTitle(cli.ChartIcon+" Expenses by category"))
		fmt.Fprintln(out, cli.RenderTable([]string{"Category", "Amount", "Share", "Count"}, rows))
	}

	if !daily {
		return
	}
	rows := make([][]string, 0, len(r.DailyFlow))
	for _, d := range r.DailyFlow {
		if d.Income.IsZero() && d.Expenses.IsZero() {
			continue
		}
		rows = append(rows, []string{d.Date, formatMoney(d.Income), formatMoney(d.Expenses), formatMoney(d.Net)})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.FormatTitle("Daily flow"))
	fmt.Fprintln(out, cli.RenderTable([]string{"Date", "Income", "Expenses", "Net"}, rows))
}
