package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

// NewCompletionCmd creates the completion command group.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for preorder.

To load completions:

Bash:
  $ source <(preorder completion bash)

Zsh:
  $ preorder completion zsh > "${fpath[1]}/_preorder"

Fish:
  $ preorder completion fish > ~/.config/fish/completions/preorder.fish

PowerShell:
  PS> preorder completion powershell | Out-String | Invoke-Expression

Item names, usernames and order IDs complete from a local cache that is
filled whenever you list the menu or orders. Run "preorder completion refresh"
to fill it in one go.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd, args[0])
		},
	}

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		cmd.AddCommand(newCompletionShellCmd(shell))
	}
	cmd.AddCommand(newCompletionRefreshCmd())
	cmd.AddCommand(newCompletionStatusCmd())

	return cmd
}

func runCompletion(cmd *cobra.Command, shell string) error {
	root, out := cmd.Root(), cmd.OutOrStdout()
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "zsh":
		return root.GenZshCompletion(out)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	default:
		return output.ErrUsage(fmt.Sprintf("unknown shell: %s", shell))
	}
}

func newCompletionShellCmd(shell string) *cobra.Command {
	return &cobra.Command{
		Use:                   shell,
		Short:                 fmt.Sprintf("Generate %s completion script", shell),
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd, shell)
		},
	}
}

// completionSource fetches cache contents from the backend. Customers see
// only the menu and their own orders.
type completionSource struct {
	app   *appctx.App
	admin bool
}

func (s completionSource) Items(ctx context.Context) ([]models.Item, error) {
	if s.admin {
		return fetchList[models.Item](ctx, s.app, adminItemsPath)
	}
	return fetchList[models.Item](ctx, s.app, userItemsPath)
}

func (s completionSource) Users(ctx context.Context) ([]models.User, error) {
	if !s.admin {
		return nil, nil
	}
	return fetchList[models.User](ctx, s.app, adminUsersPath)
}

func (s completionSource) Orders(ctx context.Context) ([]models.Order, error) {
	if s.admin {
		return fetchList[models.Order](ctx, s.app, adminOrdersPath)
	}
	orders, err := fetchList[models.Order](ctx, s.app, userOrdersPath)
	if err != nil && output.AsError(err).HTTPStatus == http.StatusNotFound {
		return []models.Order{}, nil
	}
	return orders, err
}

func newCompletionRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the completion cache",
		Long: `Fetch the menu and orders (and, for admins, users) and store them for
tab completion. Requires login.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			user, err := auth.RequireUser(app.Auth)
			if err != nil {
				return err
			}

			store := completion.NewStore(app.Config.DataDir)
			result := completion.NewRefresher(store, completionSource{app: app, admin: user.IsAdmin()}).
				RefreshAll(cmd.Context())
			if result.ItemsErr != nil && result.OrdersErr != nil {
				return fmt.Errorf("refresh failed: %w", result.Error())
			}

			cache, err := store.Load()
			if err != nil {
				return fmt.Errorf("refresh completed but failed to read cache: %w", err)
			}
			data := map[string]any{
				"items":      len(cache.Items),
				"users":      len(cache.Users),
				"orders":     len(cache.Orders),
				"cache_path": store.Path(),
			}
			summary := fmt.Sprintf("Cached %s, %s and %s",
				countLabel(len(cache.Items), "item"), countLabel(len(cache.Orders), "order"), countLabel(len(cache.Users), "user"))
			if result.HasError() {
				data["error"] = result.Error().Error()
				summary += fmt.Sprintf(" (warning: %v)", result.Error())
			}
			return app.OK(data, output.WithSummary(summary))
		},
	}
}

func newCompletionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show completion cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			store := completion.NewStore(app.Config.DataDir)
			cache, err := store.Load()
			if err != nil {
				return err
			}

			status := "fresh"
			switch {
			case len(cache.Items) == 0 && len(cache.Orders) == 0 && len(cache.Users) == 0:
				status = "empty"
			case store.IsStale(completion.DefaultMaxAge):
				status = "stale"
			}
			age := "never"
			if !cache.ItemsUpdatedAt.IsZero() {
				age = time.Since(cache.ItemsUpdatedAt).Round(time.Second).String()
			}

			return app.OK(map[string]any{
				"items":      len(cache.Items),
				"users":      len(cache.Users),
				"orders":     len(cache.Orders),
				"status":     status,
				"menu_age":   age,
				"cache_path": store.Path(),
			},
				output.WithSummary(fmt.Sprintf("Completion cache is %s", status)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "refresh", Cmd: "preorder completion refresh", Description: "Refresh the cache",
				}),
			)
		},
	}
}
