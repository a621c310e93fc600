package completion

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/cart"
	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/models"
)

// DataDirFunc returns the data directory holding the cache and the cart.
type DataDirFunc func(cmd *cobra.Command) string

// DefaultDataDirFunc resolves the data directory by checking, in order, the
// --data-dir flag, the app on the context, PREORDER_DATA_DIR and the default.
//
// During __complete PersistentPreRunE doesn't run, so config files are not
// read and a data_dir set there is not honored.
func DefaultDataDirFunc(cmd *cobra.Command) string {
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("data-dir"); flag != nil && flag.Changed {
			return flag.Value.String()
		}
	}
	if app := appctx.FromContext(cmd.Context()); app != nil {
		return app.Config.DataDir
	}
	if v := os.Getenv("PREORDER_DATA_DIR"); v != "" {
		return v
	}
	return config.Default().DataDir
}

// Completer provides tab completion functions. It reads the file cache and
// the cart and never calls the backend.
type Completer struct {
	dataDir DataDirFunc
}

// NewCompleter creates a Completer. A nil dataDir uses DefaultDataDirFunc.
func NewCompleter(dataDir DataDirFunc) *Completer {
	if dataDir == nil {
		dataDir = DefaultDataDirFunc
	}
	return &Completer{dataDir: dataDir}
}

func (c *Completer) store(cmd *cobra.Command) *Store {
	return NewStore(c.dataDir(cmd))
}

// matches reports whether any of the candidates contains prefix, case-insensitive.
func matches(toComplete string, candidates ...string) bool {
	q := strings.ToLower(toComplete)
	for _, s := range candidates {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// firstArgOnly wraps fn so it only completes the first positional argument.
func firstArgOnly(fn cobra.CompletionFunc) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fn(cmd, args, toComplete)
	}
}

// ItemCompletion completes menu item names. With availableOnly set, sold out
// items are left out.
func (c *Completer) ItemCompletion(availableOnly bool) cobra.CompletionFunc {
	return firstArgOnly(func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		items := c.store(cmd).Items()
		sorted := make([]CachedItem, 0, len(items))
		for _, it := range items {
			if availableOnly && !it.Available {
				continue
			}
			sorted = append(sorted, it)
		}
		sort.Slice(sorted, func(i, j int) bool {
			return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
		})

		var completions []cobra.Completion
		for _, it := range sorted {
			if matches(toComplete, it.Name) {
				// Return name as-is; Cobra's completion scripts handle escaping
				completions = append(completions, cobra.Completion(it.Name))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// CartCompletion completes the names of items already in the cart.
func (c *Completer) CartCompletion() cobra.CompletionFunc {
	return firstArgOnly(func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		current, err := cart.NewStore(c.dataDir(cmd)).Load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var completions []cobra.Completion
		for _, line := range current.Lines {
			if matches(toComplete, line.Name) {
				completions = append(completions, cobra.Completion(line.Name))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// UserCompletion completes usernames, described by the account's name.
func (c *Completer) UserCompletion() cobra.CompletionFunc {
	return firstArgOnly(func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		users := c.store(cmd).Users()
		sorted := make([]CachedUser, len(users))
		copy(sorted, users)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Username < sorted[j].Username })

		var completions []cobra.Completion
		for _, u := range sorted {
			if !matches(toComplete, u.Username, u.Name) {
				continue
			}
			if u.Name != "" {
				completions = append(completions, cobra.CompletionWithDesc(u.Username, u.Name))
			} else {
				completions = append(completions, cobra.Completion(u.Username))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// OrderCompletion completes order IDs, described by owner and status. With
// openOnly set, completed and cancelled orders are left out.
func (c *Completer) OrderCompletion(openOnly bool) cobra.CompletionFunc {
	return firstArgOnly(func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		var completions []cobra.Completion
		for _, o := range c.store(cmd).Orders() {
			if openOnly && models.OrderStatus(o.Status).Closed() {
				continue
			}
			if !strings.HasPrefix(o.ID, toComplete) {
				continue
			}
			desc := o.Status
			if o.Username != "" {
				desc = o.Username + ", " + o.Status
			}
			completions = append(completions, cobra.CompletionWithDesc(o.ID, desc))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// StatusCompletion completes order statuses.
func StatusCompletion() cobra.CompletionFunc {
	names := make([]string, len(models.OrderStatuses))
	for i, st := range models.OrderStatuses {
		names[i] = string(st)
	}
	return cobra.FixedCompletions(names, cobra.ShellCompDirectiveNoFileComp)
}

// ItemTypeCompletion completes menu sections, described by their heading.
func ItemTypeCompletion() cobra.CompletionFunc {
	completions := make([]cobra.Completion, len(models.ItemTypes))
	for i, t := range models.ItemTypes {
		completions[i] = cobra.CompletionWithDesc(strings.ToLower(string(t)), t.DisplayName())
	}
	return cobra.FixedCompletions(completions, cobra.ShellCompDirectiveNoFileComp)
}
