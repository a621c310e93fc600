package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/cart"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

const addOrderPath = "/user/add_order"

// NewCartCmd creates the cart command group.
func NewCartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Build an order",
		Long: `Collect menu items in a local cart, then check out to place the order.

The cart is kept in the data directory between runs.

Examples:
  preorder cart add "dal makhani" 2
  preorder cart add naan 4
  preorder cart show
  preorder cart checkout --people 6 --by "saturday 7pm" --notes "less spicy"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartShow(cmd)
		},
	}

	cmd.AddCommand(
		newCartShowCmd(),
		newCartAddCmd(),
		newCartRemoveCmd(),
		newCartSetCmd(),
		newCartClearCmd(),
		newCartCheckoutCmd(),
	)

	return cmd
}

// cartView is the cart as reported to the user.
type cartView struct {
	Lines []cart.Line `json:"lines"`
	Count int         `json:"count"`
	Total float64     `json:"total"`
}

func viewCart(c *cart.Cart) cartView {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartView{Lines: lines, Count: c.Count(), Total: c.Total()}
}

func cartRows(c *cart.Cart, money presenter.Money) []presenter.Row {
	rows := make([]presenter.Row, 0, len(c.Lines))
	for _, l := range c.Lines {
		rows = append(rows, presenter.Row{
			"id":       l.ItemID,
			"name":     l.Name,
			"price":    money.Format(l.Price),
			"quantity": l.Quantity,
			"subtotal": money.Format(l.Subtotal()),
		})
	}
	return rows
}

func cartOK(app *appctx.App, c *cart.Cart, summary string) error {
	var data any = viewCart(c)
	if app.HumanOutput() {
		data = cartRows(c, app.Money)
	}
	if c.Empty() {
		return app.OK(data, output.WithSummary(summary),
			output.WithBreadcrumbs(output.Breadcrumb{
				Action: "menu", Cmd: "preorder menu", Description: "Browse the menu",
			}))
	}
	return app.OK(data, output.WithSummary(summary),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action: "checkout", Cmd: `preorder cart checkout --people <n> --by "<when>"`, Description: "Place the order",
		}))
}

func cartSummary(app *appctx.App, c *cart.Cart) string {
	if c.Empty() {
		return "Your cart is empty"
	}
	return fmt.Sprintf("%s, total %s", countLabel(c.Count(), "item"), app.Money.Format(c.Total()))
}

func newCartShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartShow(cmd)
		},
	}
}

func runCartShow(cmd *cobra.Command) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}
	c, err := app.Cart.Load()
	if err != nil {
		return err
	}
	return cartOK(app, c, cartSummary(app, c))
}

func newCartAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <item> [quantity]",
		Short: "Add an item to the cart",
		Long:  "Add a menu item by ID or name. Adding an item already in the cart increases its quantity.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = parseQuantity(args[1]); err != nil {
					return err
				}
				if qty < 1 {
					return output.ErrValidation("Quantity must be at least 1")
				}
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			items, err := getList[models.Item](cmd.Context(), app, userItemsPath)
			if err != nil {
				return err
			}
			item, err := resolveItem(items, args[0])
			if err != nil {
				return err
			}
			if !item.Available {
				return output.ErrValidation(fmt.Sprintf("%s is not available right now", item.Name))
			}

			var line cart.Line
			c, err := app.Cart.Update(func(c *cart.Cart) error {
				line = c.Add(item, qty)
				return nil
			})
			if err != nil {
				return err
			}
			return cartOK(app, c, fmt.Sprintf("%s × %d in cart. %s", line.Name, line.Quantity, cartSummary(app, c)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).ItemCompletion(true)

	return cmd
}

func newCartRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <item>",
		Aliases: []string{"rm"},
		Short:   "Remove an item from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			var removed cart.Line
			c, err := app.Cart.Update(func(c *cart.Cart) error {
				line, err := resolveLine(c, args[0])
				if err != nil {
					return err
				}
				removed = line
				c.Remove(line.ItemID)
				return nil
			})
			if err != nil {
				return err
			}
			return cartOK(app, c, fmt.Sprintf("Removed %s. %s", removed.Name, cartSummary(app, c)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).CartCompletion()

	return cmd
}

func newCartSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <item> <quantity>",
		Short: "Change the quantity of an item",
		Long:  "Change the quantity of an item already in the cart. A quantity of 0 removes it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			if qty < 0 {
				return output.ErrValidation("Quantity cannot be negative")
			}

			var name string
			c, err := app.Cart.Update(func(c *cart.Cart) error {
				line, err := resolveLine(c, args[0])
				if err != nil {
					return err
				}
				name = line.Name
				c.SetQuantity(line.ItemID, qty)
				return nil
			})
			if err != nil {
				return err
			}
			return cartOK(app, c, fmt.Sprintf("%s × %d. %s", name, qty, cartSummary(app, c)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).CartCompletion()

	return cmd
}

func newCartClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.Cart.Clear(); err != nil {
				return err
			}
			return cartOK(app, &cart.Cart{}, "Cart cleared")
		},
	}
}

func newCartCheckoutCmd() *cobra.Command {
	var (
		people int
		by     string
		notes  string
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart",
		Long: `Place the order and empty the cart.

--by accepts natural language: "tomorrow 7pm", "friday at 19:30",
"next saturday noon", "+3 18:00" or "2025-06-01 18:00".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			c, err := app.Cart.Load()
			if err != nil {
				return err
			}
			if c.Empty() {
				return output.ErrValidation("Your cart is empty")
			}
			requiredBy, err := parseRequiredBy(app, by)
			if err != nil {
				return err
			}
			order, err := c.ToOrder(people, requiredBy, strings.TrimSpace(notes), app.Now())
			if err != nil {
				return err
			}

			resp, err := app.API.Post(cmd.Context(), addOrderPath, order)
			if err != nil {
				return err
			}
			if err := app.Cart.Clear(); err != nil {
				return fmt.Errorf("order placed but the cart could not be cleared: %w", err)
			}

			var placed models.Order
			if err := resp.UnmarshalData(&placed); err != nil || placed.ID == "" {
				placed = models.Order{
					Items:              order.Items,
					TotalPrice:         order.TotalPrice,
					People:             order.People,
					Status:             models.StatusPending,
					RequiredByDateTime: &order.RequiredByDateTime,
					Notes:              order.Notes,
				}
			}

			summary := fmt.Sprintf("Order placed: %s for %d, needed by %s",
				app.Money.Format(order.TotalPrice), order.People,
				app.Locale.FormatDateTime(requiredBy))
			return app.OK(placed, output.WithSummary(summary),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "orders", Cmd: "preorder orders list", Description: "Track your orders",
				}))
		},
	}

	cmd.Flags().IntVarP(&people, "people", "n", 1, "Number of people")
	cmd.Flags().StringVar(&by, "by", "", "When the order is needed")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for the kitchen")

	return cmd
}

// resolveLine finds the cart line matching query the way menu items match.
func resolveLine(c *cart.Cart, query string) (cart.Line, error) {
	items := make([]models.Item, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = models.Item{ID: models.ID(l.ItemID), Name: l.Name}
	}
	item, err := resolveItem(items, query)
	if err != nil {
		if e := output.AsError(err); e.Code == output.CodeNotFound {
			return cart.Line{}, output.ErrNotFoundHint("cart item", query, "Run `preorder cart show` to see your cart")
		}
		return cart.Line{}, err
	}
	line, _ := c.Find(item.ID.String())
	return line, nil
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, output.ErrUsage(fmt.Sprintf("Quantity must be a whole number, got %q", s))
	}
	return n, nil
}
