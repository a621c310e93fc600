package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/tui"
)

const addAdminPath = "/admin/add_admin"

func adminUserPath(username string) string {
	return "/admin/user/" + url.PathEscape(username)
}

func newAdminUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage accounts",
	}

	cmd.AddCommand(
		newAdminUsersListCmd(),
		newAdminUsersUpdateCmd(),
		newAdminUsersDeleteCmd(),
		newAdminUsersAddAdminCmd(),
	)

	return cmd
}

func newAdminUsersListCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}

			users, err := getList[models.User](cmd.Context(), app, adminUsersPath)
			if err != nil {
				return err
			}
			if role != "" {
				filtered := users[:0]
				for _, u := range users {
					if strings.EqualFold(string(u.Role), role) {
						filtered = append(filtered, u)
					}
				}
				users = filtered
			}

			return app.OK(users, output.WithSummary(countLabel(len(users), "user")),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "update", Cmd: "preorder admin users update <username> --role ADMIN", Description: "Change an account",
				}))
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only users with this role (USER, ADMIN)")
	_ = cmd.RegisterFlagCompletionFunc("role", cobra.FixedCompletions([]string{"USER", "ADMIN"}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

// findUser looks an account up by username.
func findUser(users []models.User, username string) (models.User, error) {
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, output.ErrNotFoundHint("user", username, "Run `preorder admin users list` to see accounts")
}

func newAdminUsersUpdateCmd() *cobra.Command {
	var (
		name  string
		email string
		phone string
		role  string
	)

	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Change an account's details or role",
		Long: `Change an account. Only the fields you pass change.

Examples:
  preorder admin users update priya --role ADMIN
  preorder admin users update ravi --phone 9876543210`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, admin, err := adminApp(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("email") && !flags.Changed("phone") && !flags.Changed("role") {
				return output.ErrUsage("Nothing to update: pass --name, --email, --phone or --role")
			}
			if flags.Changed("name") && strings.TrimSpace(name) == "" {
				return output.ErrValidation("Name cannot be empty")
			}
			patch := models.ProfileUpdate{
				Name:   strings.TrimSpace(name),
				Email:  strings.TrimSpace(email),
				Number: models.Phone(strings.TrimSpace(phone)),
				Role:   models.Role(strings.ToUpper(strings.TrimSpace(role))),
			}
			if err := patch.Validate(); err != nil {
				return err
			}

			users, err := getList[models.User](cmd.Context(), app, adminUsersPath)
			if err != nil {
				return err
			}
			target, err := findUser(users, args[0])
			if err != nil {
				return err
			}
			if target.Username == admin.Username && target.IsAdmin() && patch.Role == models.RoleUser {
				return output.ErrForbidden("You cannot remove your own admin role.")
			}

			updated := patch.Apply(target)
			if _, err := app.API.Put(cmd.Context(), adminUserPath(target.Username), models.ProfileUpdate{
				Name:   updated.Name,
				Email:  updated.Email,
				Number: updated.Number,
				Role:   updated.Role,
			}); err != nil {
				return err
			}

			if target.Username == admin.Username {
				if _, err := app.Auth.UpdateUser(patch); err != nil {
					return err
				}
			}
			return app.OK(updated, output.WithSummary(fmt.Sprintf("Updated %s", updated.Username)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).UserCompletion()

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (10 digits)")
	cmd.Flags().StringVar(&role, "role", "", "Role (USER or ADMIN)")
	_ = cmd.RegisterFlagCompletionFunc("role", cobra.FixedCompletions([]string{"USER", "ADMIN"}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

func newAdminUsersDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete an account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, admin, err := adminApp(cmd)
			if err != nil {
				return err
			}
			username := strings.TrimSpace(args[0])
			if username == admin.Username {
				return output.ErrForbidden("You cannot delete your own account.")
			}
			if err := confirmDestructive(app, force, fmt.Sprintf("Delete user %s?", username)); err != nil {
				return err
			}

			msg, err := sendMessage(cmd.Context(), app, &api.Request{
				Method: http.MethodDelete,
				Path:   adminUserPath(username),
			}, fmt.Sprintf("Deleted %s", username))
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"username": username, "message": msg}, output.WithSummary(msg))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).UserCompletion()

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Don't ask for confirmation")

	return cmd
}

func newAdminUsersAddAdminCmd() *cobra.Command {
	var (
		name          string
		username      string
		email         string
		phone         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add-admin",
		Short: "Create another admin account",
		Long: `Create an account with the ADMIN role.

Examples:
  preorder admin users add-admin --name "Asha" --username asha
  echo "$PW" | preorder admin users add-admin --name Asha --username asha --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}

			if app.IsInteractive() {
				if name == "" {
					if name, err = tui.InputRequired("Name", ""); err != nil {
						return err
					}
				}
				if username == "" {
					if username, err = tui.InputRequired("Username", ""); err != nil {
						return err
					}
				}
			}

			var password, confirm string
			if passwordStdin {
				if password, err = readSecret(app, true, ""); err != nil {
					return err
				}
				confirm = password
			} else {
				if !app.IsInteractive() {
					return output.ErrUsage("Password required: pass --password-stdin or run in a terminal")
				}
				if password, err = tui.NewPassword(); err != nil {
					return err
				}
				confirm = password
			}

			body := models.NewAdmin{
				Name:     strings.TrimSpace(name),
				Username: strings.TrimSpace(username),
				Password: password,
				Email:    strings.TrimSpace(email),
				Number:   models.Phone(strings.TrimSpace(phone)),
			}
			if err := body.Validate(confirm); err != nil {
				return err
			}

			msg, err := sendMessage(cmd.Context(), app, &api.Request{
				Method: http.MethodPost,
				Path:   addAdminPath,
				Body:   body,
			}, fmt.Sprintf("Admin %s created", body.Username))
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"username": body.Username, "message": msg}, output.WithSummary(msg))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (10 digits)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}
