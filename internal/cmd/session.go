package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const passwordEnvVar = "AUTH_PASSWORD"

func newLoginCmd(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnvVar)
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			if err := app.console.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			user := app.console.Sessions.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			fmt.Fprintf(cmd.OutOrStdout(), "Location: %s\n", app.console.Gate.Location())
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (default $"+passwordEnvVar+")")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear the persisted record",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			app.console.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

type whoami struct {
	State        string      `json:"state"`
	User         *users.User `json:"user,omitempty"`
	IsAdmin      bool        `json:"isAdmin"`
	IsSuperAdmin bool        `json:"isSuperAdmin"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session and capabilities",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			caps := app.console.Capabilities()
			out := whoami{
				State:        app.console.Sessions.State().String(),
				User:         app.console.Sessions.User(),
				IsAdmin:      caps.IsAdmin,
				IsSuperAdmin: caps.IsSuperAdmin,
			}
			if s := app.console.Sessions.Session(); s != nil && !s.ExpiresAt.IsZero() {
				out.ExpiresAt = &s.ExpiresAt
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}),
	}
}
