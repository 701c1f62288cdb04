package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/rules"
)

func rulesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
		Long: `List, add, update and delete the keyword and pattern rules that pick a category
for new transactions. Rules are tried in file order and the first match wins.`,
	}

	cmd.AddCommand(listRulesCmd(v))
	cmd.AddCommand(addRuleCmd(v))
	cmd.AddCommand(updateRuleCmd(v))
	cmd.AddCommand(deleteRuleCmd(v))
	cmd.AddCommand(testRuleCmd(v))

	return cmd
}

func listRulesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules in match order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list := a.engine.ListRules()
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No rules defined. Use 'finhelper rules add' to create one."))
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, r := range list {
				rows = append(rows, []string{
					r.Name,
					r.CategoryName,
					orDash(string(r.TransactionType)),
					orDash(strings.Join(r.Keywords, ", ")),
					orDash(strings.Join(r.Patterns, ", ")),
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"Name", "Category", "Type", "Keywords", "Patterns"}, rows))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("\n%d rules from %s", len(list), a.rules.Path())))
			return nil
		},
	}
}

func addRuleCmd(v *viper.Viper) *cobra.Command {
	var (
		categoryName string
		keywords     string
		patterns     string
		txType       string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a rule, replacing any rule with the same name",
		Example: `  finhelper rules add coffee --category "Coffee" --keywords "kopi,starbucks"
  finhelper rules add salary --category Salary --patterns ".*payroll.*" --type income`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := model.Rule{
				Name:         args[0],
				CategoryName: categoryName,
				Keywords:     splitList(keywords),
				Patterns:     splitList(patterns),
			}
			if txType != "" {
				t, err := model.ParseTransactionType(txType)
				if err != nil {
					return err
				}
				rule.TransactionType = t
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.AddRule(rule); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved rule %q → %s", rule.Name, rule.CategoryName)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "category assigned by the rule (required)")
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "comma separated keywords")
	cmd.Flags().StringVarP(&patterns, "patterns", "p", "", "comma separated regular expressions")
	cmd.Flags().StringVarP(&txType, "type", "t", "", "transaction type hint (income, expense, transfer)")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func updateRuleCmd(v *viper.Viper) *cobra.Command {
	var (
		categoryName string
		keywords     string
		patterns     string
		txType       string
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change fields of an existing rule",
		Long:  `Only the flags you pass are changed. Pass an empty value to clear keywords or patterns.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch rules.Patch
			flags := cmd.Flags()
			if flags.Changed("category") {
				patch.CategoryName = &categoryName
			}
			if flags.Changed("keywords") {
				kw := splitList(keywords)
				patch.Keywords = &kw
			}
			if flags.Changed("patterns") {
				ps := splitList(patterns)
				patch.Patterns = &ps
			}
			if flags.Changed("type") {
				var t model.TransactionType
				if txType != "" {
					parsed, err := model.ParseTransactionType(txType)
					if err != nil {
						return err
					}
					t = parsed
				}
				patch.TransactionType = &t
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := a.engine.UpdateRule(args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated rule %q → %s", rule.Name, rule.CategoryName)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "new category")
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "replace keywords (comma separated)")
	cmd.Flags().StringVarP(&patterns, "patterns", "p", "", "replace patterns (comma separated)")
	cmd.Flags().StringVarP(&txType, "type", "t", "", "transaction type hint, empty to clear")

	return cmd
}

func deleteRuleCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeleteRule(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %q", args[0])))
			return nil
		},
	}
}

func testRuleCmd(v *viper.Viper) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "test <merchant>",
		Short: "Show which rule matches a merchant without recording anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			rule, ok := a.engine.MatchRule(args[0], description)
			if !ok {
				fmt.Fprintln(out, cli.FormatWarning("No rule matches; the transaction would stay uncategorized."))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Matched rule %q → %s", rule.Name, rule.CategoryName)))
			if suggestions := a.engine.SuggestCategories(args[0]); len(suggestions) > 1 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Other matching categories: "+strings.Join(suggestions[1:], ", ")))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "transaction description")
	return cmd
}

func classifyCmd(v *viper.Viper) *cobra.Command {
	var (
		description string
		amount      string
	)

	cmd := &cobra.Command{
		Use:   "classify <merchant>",
		Short: "Classify a merchant, creating the matched category if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt := decimal.Zero
			if amount != "" {
				parsed, err := parseAmount(amount)
				if err != nil {
					return err
				}
				amt = parsed
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			id, ok, err := a.engine.ClassifyTransaction(ctx, args[0], description, amt)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.FormatWarning("Uncategorized"))
				return nil
			}
			cat, err := a.store.GetCategoryByID(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s (category %d)", cat.Name, cat.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "transaction description")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "transaction amount")
	return cmd
}
