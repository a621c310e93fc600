package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/tui"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Sign in and out, create an account, and recover a password.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
		newAuthRegisterCmd(),
		newAuthForgotPasswordCmd(),
		newAuthResetPasswordCmd(),
		newAuthVerifyEmailCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		username      string
		passwordStdin bool
		oauthCode     string
		browser       bool
		noBrowser     bool
		port          int
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in with a username (or email) and password, or with Google.

Examples:
  preorder auth login --username priya --password-stdin < pw.txt
  preorder auth login --browser
  preorder auth login --oauth-code 4/0AbCd...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if oauthCode != "" && browser {
				return output.ErrUsage("--oauth-code and --browser cannot be combined")
			}

			var user models.User
			switch {
			case oauthCode != "":
				user, err = app.Auth.ExchangeOAuthCode(cmd.Context(), oauthCode)
			case browser:
				user, err = app.Auth.LoginWithBrowser(cmd.Context(), auth.BrowserLoginOptions{
					NoBrowser: noBrowser,
					Port:      port,
					Out:       app.Stderr,
				})
			default:
				var password string
				if username == "" && !passwordStdin && app.IsInteractive() {
					username, password, err = tui.Login("")
					if err != nil {
						return err
					}
				} else {
					if username == "" {
						return output.ErrUsage("--username is required")
					}
					password, err = readSecret(app, passwordStdin, "Password")
					if err != nil {
						return err
					}
				}
				user, err = app.Auth.Login(cmd.Context(), username, password)
			}
			if err != nil {
				return err
			}

			return app.OK(user,
				output.WithSummary(fmt.Sprintf("Logged in as %s", displayName(user))),
				output.WithBreadcrumbs(
					output.Breadcrumb{Action: "menu", Cmd: "preorder menu", Description: "Browse the menu"},
					output.Breadcrumb{Action: "orders", Cmd: "preorder orders list", Description: "See your orders"},
				),
			)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().StringVar(&oauthCode, "oauth-code", "", "Exchange a Google authorization code")
	cmd.Flags().BoolVar(&browser, "browser", false, "Sign in with Google in a browser")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening it")
	cmd.Flags().IntVar(&port, "port", auth.DefaultCallbackPort, "Local port for the sign-in callback")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Logout(); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			storage := "file"
			if app.Auth.UsingKeyring() {
				storage = "keyring"
			}
			status := map[string]any{
				"authenticated": app.Auth.IsAuthenticated(),
				"origin":        app.Auth.Origin(),
				"storage":       storage,
			}

			user, ok := app.Auth.User()
			if !ok || !app.Auth.IsAuthenticated() {
				return app.OK(status, output.WithSummary("Not authenticated"),
					output.WithBreadcrumbs(output.Breadcrumb{
						Action: "login", Cmd: "preorder auth login", Description: "Sign in",
					}))
			}

			status["username"] = user.Username
			status["name"] = user.Name
			status["role"] = string(user.Role)
			status["can_refresh"] = app.Auth.RefreshToken() != ""

			summary := fmt.Sprintf("Logged in as %s", displayName(user))
			if user.IsAdmin() {
				summary += " (admin)"
			}
			if exp, ok := auth.TokenExpiry(app.Auth.AccessToken()); ok {
				status["expires_at"] = exp.Format(time.RFC3339)
				if !exp.After(app.Now()) {
					summary += "; access token expired, it will be refreshed on the next request"
				}
			}
			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long:  "Exchange the stored refresh token for a new access token now.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if _, err := auth.RequireUser(app.Auth); err != nil {
				return err
			}

			if err := app.API.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Access token refreshed"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the current access token",
		Long:  "Print the access token for use with other tools, e.g. curl -H \"Authorization: Bearer $(preorder auth token -q)\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			token := app.Auth.AccessToken()
			if token == "" {
				return output.ErrAuth("Not logged in")
			}
			return app.OK(token)
		},
	}
}

func newAuthRegisterCmd() *cobra.Command {
	var (
		reg           models.Registration
		phone         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create a customer account. The backend emails a verification link.

Examples:
  preorder auth register
  preorder auth register --name "Priya Shah" --username priya --email p@example.com --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			reg.Number = models.Phone(strings.TrimSpace(phone))

			var confirm string
			if passwordStdin {
				reg.Password, err = readSecret(app, true, "")
				if err != nil {
					return err
				}
				confirm = reg.Password
			} else {
				if !app.IsInteractive() {
					return output.ErrUsage("Pass --password-stdin or run in a terminal")
				}
				if reg, err = tui.Registration(reg); err != nil {
					return err
				}
				if reg.Password, err = tui.NewPassword(); err != nil {
					return err
				}
				confirm = reg.Password
			}

			if err := reg.Validate(confirm); err != nil {
				return err
			}

			msg, err := app.Auth.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Registration successful. Check your email to verify your account."
			}
			return app.OK(map[string]string{
				"username": reg.Username,
				"message":  msg,
			}, output.WithSummary(msg),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "verify", Cmd: "preorder auth verify-email <token>", Description: "Confirm your email",
				}))
		},
	}

	cmd.Flags().StringVar(&reg.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&reg.Username, "username", "", "Username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (10 digits)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func newAuthForgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Email a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			email := strings.TrimSpace(args[0])
			if email == "" {
				return output.ErrValidation("Email is required")
			}

			msg, err := app.Auth.ForgotPassword(cmd.Context(), email)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "If an account exists for that email, a reset link is on its way."
			}
			return app.OK(map[string]string{"message": msg}, output.WithSummary(msg))
		},
	}
}

func newAuthResetPasswordCmd() *cobra.Command {
	var (
		token         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password from a reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if token == "" {
				return output.ErrUsage("--token is required")
			}

			var password string
			if passwordStdin {
				password, err = readSecret(app, true, "")
				if err == nil {
					err = models.ValidatePassword(password, password)
				}
			} else if app.IsInteractive() {
				password, err = tui.NewPassword()
			} else {
				err = output.ErrUsage("Pass --password-stdin or run in a terminal")
			}
			if err != nil {
				return err
			}

			msg, err := app.Auth.ResetPassword(cmd.Context(), token, password)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Password updated. You can sign in now."
			}
			return app.OK(map[string]string{"message": msg}, output.WithSummary(msg),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "login", Cmd: "preorder auth login", Description: "Sign in",
				}))
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Token from the reset link")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the new password from stdin")

	return cmd
}

func newAuthVerifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <token>",
		Short: "Confirm an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			msg, err := app.Auth.VerifyEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Email verified"
			}
			return app.OK(map[string]string{"message": msg}, output.WithSummary(msg))
		},
	}
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
