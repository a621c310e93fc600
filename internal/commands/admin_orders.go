package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
	"github.com/preorder/preorder-cli/internal/tui"
)

func newAdminOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Work the order queue",
	}

	cmd.AddCommand(
		newAdminOrdersListCmd(),
		newAdminOrdersShowCmd(),
		newAdminOrdersUpdateCmd(),
	)

	return cmd
}

func newAdminOrdersListCmd() *cobra.Command {
	var (
		user     string
		archived bool
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders from every customer",
		Long: `List orders with open ones first, newest first within each group.

By default only active (pending and confirmed) orders are shown.

Examples:
  preorder admin orders list
  preorder admin orders list --user priya
  preorder admin orders list --archived`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}
			if archived && all {
				return output.ErrUsage("--archived and --all cannot be used together")
			}

			orders, err := getList[models.Order](cmd.Context(), app, adminOrdersPath)
			if err != nil {
				return err
			}
			orders = presenter.FilterByUsername(orders, user)
			presenter.SortForAdmin(orders)

			label := "active order"
			if !all {
				active, closed := presenter.SplitActive(orders)
				orders = active
				if archived {
					orders, label = closed, "archived order"
				}
			} else {
				label = "order"
			}
			if orders == nil {
				orders = []models.Order{}
			}

			return app.OK(orderView(app, orders), output.WithSummary(countLabel(len(orders), label)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "update", Cmd: "preorder admin orders update <id> --status Confirmed", Description: "Move an order along",
				}))
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Only orders whose username contains this text")
	cmd.Flags().BoolVar(&archived, "archived", false, "Show completed and cancelled orders instead")
	cmd.Flags().BoolVar(&all, "all", false, "Show every order")

	return cmd
}

func newAdminOrdersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}
			orders, err := getList[models.Order](cmd.Context(), app, adminOrdersPath)
			if err != nil {
				return err
			}
			order, err := findOrder(orders, args[0])
			if err != nil {
				return err
			}

			var data any = order
			if app.HumanOutput() {
				data = presenter.OrderRows([]models.Order{order}, app.Money, app.Locale)[0]
			}
			return app.OK(data, output.WithSummary(fmt.Sprintf("Order %s for %s: %s, %s",
				order.ID, order.Username, order.StatusOrDefault(), app.Money.Format(order.TotalPrice))))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).OrderCompletion(false)

	return cmd
}

func newAdminOrdersUpdateCmd() *cobra.Command {
	var (
		status string
		people int
		notes  string
		by     string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an order's status or details",
		Long: `Change an order. Only the fields you pass change.

Examples:
  preorder admin orders update 665f1c... --status Confirmed
  preorder admin orders update 665f1c... --people 8 --by "saturday 8pm"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			changed := flags.Changed("status") || flags.Changed("people") || flags.Changed("notes") || flags.Changed("by")
			if !changed && !app.IsInteractive() {
				return output.ErrUsage("Nothing to update: pass --status, --people, --notes or --by")
			}

			orders, err := getList[models.Order](cmd.Context(), app, adminOrdersPath)
			if err != nil {
				return err
			}
			order, err := findOrder(orders, args[0])
			if err != nil {
				return err
			}

			if !changed {
				if status, err = tui.Select("Status", tui.StatusOptions()); err != nil {
					return err
				}
			}
			next := order.StatusOrDefault()
			if status != "" {
				if next, err = models.ParseOrderStatus(status); err != nil {
					return output.ErrUsage(err.Error())
				}
			}
			if flags.Changed("people") {
				if people < 1 {
					return output.ErrValidation("Number of people must be at least 1")
				}
				order.People = people
			}
			if flags.Changed("notes") {
				order.Notes = strings.TrimSpace(notes)
			}
			if flags.Changed("by") {
				t, err := parseRequiredBy(app, by)
				if err != nil {
					return err
				}
				ts := models.NewTimestamp(t)
				order.RequiredByDateTime = &ts
			}

			body := order.Update(next)
			if _, err := app.API.Put(cmd.Context(), "/admin/order/"+url.PathEscape(order.ID.String()), body); err != nil {
				return err
			}

			order.Status = next
			order.TotalPrice = body.TotalPrice
			return app.OK(order, output.WithSummary(fmt.Sprintf("Order %s is %s", order.ID, next)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).OrderCompletion(false)

	cmd.Flags().StringVar(&status, "status", "", "New status (Pending, Confirmed, Completed, Cancelled)")
	cmd.Flags().IntVarP(&people, "people", "n", 0, "Number of people")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for the kitchen")
	cmd.Flags().StringVar(&by, "by", "", "When the order is needed")
	_ = cmd.RegisterFlagCompletionFunc("status", completion.StatusCompletion())

	return cmd
}
