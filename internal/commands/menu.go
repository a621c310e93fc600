package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

// NewMenuCmd creates the menu command.
func NewMenuCmd() *cobra.Command {
	var (
		all    bool
		search string
	)

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Browse the menu",
		Long: `List menu items grouped by section: soups, starters, curries,
rice & breads, sides, sweets and everything else.

Examples:
  preorder menu
  preorder menu --search paneer
  preorder menu --all            # include items that are sold out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			items, err := getList[models.Item](cmd.Context(), app, userItemsPath)
			if err != nil {
				return err
			}
			if !all {
				items = presenter.AvailableOnly(items)
			}
			if search != "" {
				items = presenter.FindItems(items, search)
			}

			sections := presenter.GroupMenu(items)
			var data any = sections
			if app.HumanOutput() {
				data = presenter.MenuRows(sections, app.Money)
			}

			return app.OK(data,
				output.WithSummary(fmt.Sprintf("%s in %s", countLabel(len(items), "item"), countLabel(len(sections), "section"))),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "add", Cmd: "preorder cart add <item> [qty]", Description: "Add an item to your cart",
				}),
			)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include unavailable items")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by item ID or name")

	return cmd
}
