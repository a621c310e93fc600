package commands

import (
	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Ordering",
			Commands: []CommandInfo{
				{Name: "menu", Category: "ordering", Description: "Browse the menu"},
				{Name: "cart", Category: "ordering", Description: "Build an order", Actions: []string{"show", "add", "remove", "set", "clear", "checkout"}},
				{Name: "orders", Category: "ordering", Description: "Track your orders", Actions: []string{"list", "show", "cancel"}},
			},
		},
		{
			Name: "Account",
			Commands: []CommandInfo{
				{Name: "auth", Category: "account", Description: "Sign in and manage your session", Actions: []string{"login", "logout", "status", "refresh", "token", "register", "forgot-password", "reset-password", "verify-email"}},
				{Name: "profile", Category: "account", Description: "View and edit your profile", Actions: []string{"show", "update"}},
			},
		},
		{
			Name: "Kitchen",
			Commands: []CommandInfo{
				{Name: "admin", Category: "kitchen", Description: "Manage users, items and orders", Actions: []string{"dashboard", "users", "items", "orders"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "config", Category: "additional", Description: "Manage configuration", Actions: []string{"show", "path", "set", "unset"}},
				{Name: "completion", Category: "additional", Description: "Generate shell completion scripts", Actions: []string{"bash", "zsh", "fish", "powershell", "refresh", "status"}},
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	categories := commandCategories()
	total := 0
	for _, cat := range categories {
		total += len(cat.Commands)
	}
	names := make([]string, 0, total)
	for _, cat := range categories {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available preorder commands organized by category.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			return app.OK(commandCategories(),
				output.WithSummary("All available preorder commands"),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "help",
						Cmd:         "preorder --help",
						Description: "View help",
					},
				),
			)
		},
	}
}
