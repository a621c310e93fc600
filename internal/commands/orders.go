package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

// NewOrdersCmd creates the orders command group.
func NewOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Track your orders",
		Long:  "List the orders you have placed and cancel ones the kitchen has not confirmed yet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrdersList(cmd, "")
		},
	}

	cmd.AddCommand(
		newOrdersListCmd(),
		newOrdersShowCmd(),
		newOrdersCancelCmd(),
	)

	return cmd
}

func newOrdersListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrdersList(cmd, status)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only orders with this status (Pending, Confirmed, Completed, Cancelled)")
	_ = cmd.RegisterFlagCompletionFunc("status", completion.StatusCompletion())

	return cmd
}

func runOrdersList(cmd *cobra.Command, status string) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}
	var want models.OrderStatus
	if status != "" {
		if want, err = models.ParseOrderStatus(status); err != nil {
			return output.ErrUsage(err.Error())
		}
	}
	if _, err := auth.RequireUser(app.Auth); err != nil {
		return err
	}

	orders, err := fetchUserOrders(cmd.Context(), app)
	if err != nil {
		return err
	}
	if want != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if o.StatusOrDefault() == want {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	presenter.SortNewestFirst(orders)

	if len(orders) == 0 {
		return app.OK(orderView(app, orders), output.WithSummary("No orders yet"),
			output.WithBreadcrumbs(output.Breadcrumb{
				Action: "menu", Cmd: "preorder menu", Description: "Browse the menu",
			}))
	}
	return app.OK(orderView(app, orders), output.WithSummary(countLabel(len(orders), "order")))
}

func newOrdersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one of your orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			orders, err := fetchUserOrders(cmd.Context(), app)
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
			summary := fmt.Sprintf("Order %s: %s, %s", order.ID, order.StatusOrDefault(), app.Money.Format(order.TotalPrice))
			if !order.Cancellable() {
				return app.OK(data, output.WithSummary(summary))
			}
			return app.OK(data, output.WithSummary(summary),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "cancel", Cmd: "preorder orders cancel " + order.ID.String(), Description: "Cancel this order",
				}))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).OrderCompletion(false)

	return cmd
}

func newOrdersCancelCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending order",
		Long:  "Cancel an order that the kitchen has not confirmed yet.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			orders, err := fetchUserOrders(cmd.Context(), app)
			if err != nil {
				return err
			}
			order, err := findOrder(orders, args[0])
			if err != nil {
				return err
			}
			if !order.Cancellable() {
				return output.ErrValidation(fmt.Sprintf("Order %s is %s and can no longer be cancelled",
					order.ID, order.StatusOrDefault()))
			}
			if err := confirmDestructive(app, force, fmt.Sprintf("Cancel order %s?", order.ID)); err != nil {
				return err
			}

			if _, err := app.API.Put(cmd.Context(), "/user/orders/update/"+order.ID.String(),
				order.Update(models.StatusCancelled)); err != nil {
				return err
			}

			order.Status = models.StatusCancelled
			return app.OK(order, output.WithSummary(fmt.Sprintf("Order %s cancelled", order.ID)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).OrderCompletion(true)

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Don't ask for confirmation")

	return cmd
}
