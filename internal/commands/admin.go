package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

// NewAdminCmd creates the admin command group.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Run the kitchen",
		Long: `Manage users, menu items and orders. Requires an account with the ADMIN role.

Examples:
  preorder admin dashboard
  preorder admin orders list --user priya
  preorder admin orders update 665f1c... --status Confirmed
  preorder admin items create --name "Mango Lassi" --price 90 --type SWEET`,
	}

	cmd.AddCommand(
		newAdminDashboardCmd(),
		newAdminUsersCmd(),
		newAdminItemsCmd(),
		newAdminOrdersCmd(),
	)

	return cmd
}

func newAdminDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show users, items and orders at a glance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}

			var (
				users  []models.User
				items  []models.Item
				orders []models.Order
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				users, err = fetchList[models.User](ctx, app, adminUsersPath)
				return err
			})
			g.Go(func() (err error) {
				items, err = fetchList[models.Item](ctx, app, adminItemsPath)
				return err
			})
			g.Go(func() (err error) {
				orders, err = fetchList[models.Order](ctx, app, adminOrdersPath)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			remember(app, users)
			remember(app, items)
			remember(app, orders)

			d := presenter.Summarize(users, items, orders)
			return app.OK(d,
				output.WithSummary(fmt.Sprintf("%s, %s, %s (%d active)",
					countLabel(d.TotalUsers, "user"), countLabel(d.TotalItems, "item"),
					countLabel(d.TotalOrders, "order"), d.ActiveOrders)),
				output.WithBreadcrumbs(
					output.Breadcrumb{Action: "orders", Cmd: "preorder admin orders list", Description: "Work the order queue"},
					output.Breadcrumb{Action: "items", Cmd: "preorder admin items list", Description: "Edit the menu"},
					output.Breadcrumb{Action: "users", Cmd: "preorder admin users list", Description: "Manage accounts"},
				),
			)
		},
	}
}

// adminApp returns the app once the signed-in user is known to be an admin.
func adminApp(cmd *cobra.Command) (*appctx.App, models.User, error) {
	app, err := appFrom(cmd)
	if err != nil {
		return nil, models.User{}, err
	}
	admin, err := auth.RequireAdmin(app.Auth)
	if err != nil {
		return nil, models.User{}, err
	}
	return app, admin, nil
}
