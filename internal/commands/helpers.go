package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/dateparse"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
	"github.com/preorder/preorder-cli/internal/tui"
)

// Backend endpoints used by more than one command.
const (
	userItemsPath   = "/user/items"
	userOrdersPath  = "/user/orders"
	adminUsersPath  = "/admin/users"
	adminItemsPath  = "/admin/items"
	adminOrdersPath = "/admin/orders"
)

// appFrom returns the app stored on the command's context.
func appFrom(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

// getList fetches a JSON array and remembers it for tab completion.
func getList[T any](ctx context.Context, app *appctx.App, path string) ([]T, error) {
	out, err := fetchList[T](ctx, app, path)
	if err != nil {
		return nil, err
	}
	remember(app, out)
	return out, nil
}

// fetchList fetches a JSON array. An empty body reads as an empty list.
func fetchList[T any](ctx context.Context, app *appctx.App, path string) ([]T, error) {
	resp, err := app.API.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if len(strings.TrimSpace(string(resp.Data))) == 0 {
		return out, nil
	}
	if err := resp.UnmarshalData(&out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

// remember refreshes the tab completion cache from a listing. This is
// best-effort: a failed write never fails the command.
func remember(app *appctx.App, list any) {
	store := completion.NewStore(app.Config.DataDir)
	switch v := list.(type) {
	case []models.Item:
		_ = store.UpdateItems(v)
	case []models.User:
		_ = store.UpdateUsers(v)
	case []models.Order:
		_ = store.UpdateOrders(v)
	}
}

// fetchUserOrders lists the signed-in user's orders. The backend answers 404
// when the user has never ordered.
func fetchUserOrders(ctx context.Context, app *appctx.App) ([]models.Order, error) {
	orders, err := getList[models.Order](ctx, app, userOrdersPath)
	if err != nil {
		if e := output.AsError(err); e.HTTPStatus == http.StatusNotFound {
			return []models.Order{}, nil
		}
		return nil, err
	}
	return orders, nil
}

// findOrder looks an order up by ID.
func findOrder(orders []models.Order, id string) (models.Order, error) {
	for _, o := range orders {
		if o.ID.String() == id {
			return o, nil
		}
	}
	return models.Order{}, output.ErrNotFound("order", id)
}

// resolveItem picks exactly one menu item for query.
func resolveItem(items []models.Item, query string) (models.Item, error) {
	matches := presenter.FindItems(items, query)
	switch len(matches) {
	case 0:
		return models.Item{}, output.ErrNotFoundHint("item", query, "Run `preorder menu` to see what's available")
	case 1:
		return matches[0], nil
	default:
		return models.Item{}, output.ErrAmbiguous("item", presenter.ItemNames(matches))
	}
}

// sendMessage performs req and returns the backend's acknowledgement message,
// or fallback when the body carries none.
func sendMessage(ctx context.Context, app *appctx.App, req *api.Request, fallback string) (string, error) {
	resp, err := app.API.Send(ctx, req)
	if err != nil {
		return "", err
	}
	if msg := gjson.GetBytes(resp.Data, "message").String(); msg != "" {
		return msg, nil
	}
	return fallback, nil
}

// readSecret reads a password from stdin when fromStdin is set, otherwise
// prompts for it at a terminal.
func readSecret(app *appctx.App, fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(app.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", output.ErrUsage("No password on stdin")
		}
		return line, nil
	}
	if !app.IsInteractive() {
		return "", output.ErrUsage("Password required: pass --password-stdin or run in a terminal")
	}
	return tui.Password(prompt)
}

// confirmDestructive asks before irreversible changes unless force is set.
func confirmDestructive(app *appctx.App, force bool, message string) error {
	if force {
		return nil
	}
	if !app.IsInteractive() {
		return output.ErrUsageHint(message, "Pass --force to confirm")
	}
	ok, err := tui.ConfirmDangerous(message)
	if err != nil {
		return err
	}
	if !ok {
		return output.ErrUsage("Cancelled")
	}
	return nil
}

// parseRequiredBy turns a --by value into a deadline and checks it is ahead.
func parseRequiredBy(app *appctx.App, value string) (time.Time, error) {
	now := app.Now()
	if strings.TrimSpace(value) == "" {
		return time.Time{}, models.ValidateRequiredBy(time.Time{}, now)
	}
	t, err := dateparse.ParseFrom(value, now)
	if err != nil {
		return time.Time{}, output.ErrUsageHint(
			fmt.Sprintf("Can't read %q as a date", value),
			`Try "tomorrow 7pm", "friday at 19:30" or "2025-06-01 18:00"`)
	}
	if err := models.ValidateRequiredBy(t, now); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// orderView picks the human or the raw rendering of orders.
func orderView(app *appctx.App, orders []models.Order) any {
	if app.HumanOutput() {
		return presenter.OrderRows(orders, app.Money, app.Locale)
	}
	return orders
}

// countLabel renders "1 order" or "3 orders".
func countLabel(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
