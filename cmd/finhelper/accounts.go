package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/model"
)

func accountsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
		Long:  `Add and list the bank accounts, e-wallets, cash and cards transactions are recorded against.`,
	}

	cmd.AddCommand(addAccountCmd(v))
	cmd.AddCommand(listAccountsCmd(v))

	return cmd
}

func addAccountCmd(v *viper.Viper) *cobra.Command {
	var (
		accountType string
		currency    string
		balance     string
	)

	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add an account",
		Example: `  finhelper accounts add BCA --type bank --balance 2500000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct := &model.Account{Name: args[0], Currency: currency}
			if accountType != "" {
				t, err := model.ParseAccountType(accountType)
				if err != nil {
					return err
				}
				acct.Type = t
			}
			if balance != "" {
				b, err := parseAmount(balance)
				if err != nil {
					return err
				}
				acct.Balance = b
			}

			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.CreateAccount(cmd.Context(), acct); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s account %q (ID: %d, balance %s %s)",
				acct.Type, acct.Name, acct.ID, acct.Currency, formatMoney(acct.Balance))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&accountType, "type", "t", "", "account type (bank, e_wallet, cash, credit_card)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code (default from accounts.default_currency)")
	cmd.Flags().StringVarP(&balance, "balance", "b", "", "opening balance")
	return cmd
}

func listAccountsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.engine.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No accounts yet. Use 'finhelper accounts add' to create one."))
				return nil
			}

			rows := make([][]string, 0, len(accounts))
			for _, acct := range accounts {
				rows = append(rows, []string{
					strconv.FormatInt(acct.ID, 10),
					acct.Name,
					string(acct.Type),
					acct.Currency,
					formatMoney(acct.Balance),
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Name", "Type", "Currency", "Balance"}, rows))
			return nil
		},
	}
}
