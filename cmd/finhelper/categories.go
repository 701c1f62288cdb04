package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finhelper/internal/cli"
	"github.com/Veraticus/finhelper/internal/model"
)

func categoriesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
		Long:  `List and add the categories transactions and budgets are filed under.`,
	}

	cmd.AddCommand(listCategoriesCmd(v))
	cmd.AddCommand(addCategoryCmd(v))

	return cmd
}

func listCategoriesCmd(v *viper.Viper) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.engine.ListCategories(cmd.Context(), all)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(categories) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No categories found. Use 'finhelper categories add' to create one."))
				return nil
			}

			rows := make([][]string, 0, len(categories))
			for _, cat := range categories {
				row := []string{strconv.FormatInt(cat.ID, 10), strings.TrimSpace(cat.Icon + " " + cat.Name), orDash(cat.Color)}
				if all {
					row = append(row, strconv.FormatBool(cat.IsActive))
				}
				rows = append(rows, row)
			}
			headers := []string{"ID", "Name", "Color"}
			if all {
				headers = append(headers, "Active")
			}
			fmt.Fprintln(out, cli.RenderTable(headers, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive categories")
	return cmd
}

func addCategoryCmd(v *viper.Viper) *cobra.Command {
	var icon, color string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cat := &model.Category{Name: args[0], Icon: icon, Color: color}
			if err := a.engine.CreateCategory(cmd.Context(), cat); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %q (ID: %d)", cat.Name, cat.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&icon, "icon", "", "emoji shown next to the name")
	cmd.Flags().StringVar(&color, "color", "", "display color, e.g. #FF6B6B")
	return cmd
}
