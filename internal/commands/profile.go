package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

const userPath = "/user"

// NewProfileCmd creates the profile command group.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View and edit your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileShow(cmd)
		},
	}

	cmd.AddCommand(
		newProfileShowCmd(),
		newProfileUpdateCmd(),
	)

	return cmd
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileShow(cmd)
		},
	}
}

func runProfileShow(cmd *cobra.Command) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}
	user, err := auth.RequireUser(app.Auth)
	if err != nil {
		return err
	}
	return app.OK(user, output.WithSummary(displayName(user)),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action: "update", Cmd: "preorder profile update --name <name>", Description: "Edit your details",
		}))
}

func newProfileUpdateCmd() *cobra.Command {
	var (
		name  string
		email string
		phone string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update your name, email or phone number",
		Long: `Update your profile. Only the fields you pass change.

Examples:
  preorder profile update --name "Priya S."
  preorder profile update --phone 9876543210`,
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

			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("email") && !flags.Changed("phone") {
				return output.ErrUsage("Nothing to update: pass --name, --email or --phone")
			}
			patch := models.ProfileUpdate{
				Name:   name,
				Email:  strings.TrimSpace(email),
				Number: models.Phone(strings.TrimSpace(phone)),
			}
			if flags.Changed("name") && strings.TrimSpace(name) == "" {
				return output.ErrValidation("Name cannot be empty")
			}
			if err := patch.Validate(); err != nil {
				return err
			}
			patch.Name = strings.TrimSpace(patch.Name)

			// The backend replaces the profile, so unchanged fields are sent as they are.
			body := patch.Apply(user)
			if _, err := app.API.Put(cmd.Context(), userPath, models.ProfileUpdate{
				Name:   body.Name,
				Email:  body.Email,
				Number: body.Number,
			}); err != nil {
				return err
			}

			updated, err := app.Auth.UpdateUser(patch)
			if err != nil {
				return err
			}
			return app.OK(updated, output.WithSummary("Profile updated"))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (10 digits)")

	return cmd
}
