package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/models"
)

var (
	loginUsername      string
	loginPassword      string
	loginPasswordStdin bool

	currentPassword string
	newPassword     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Authenticates against the API and stores the access token and refresh cookie
in the configured session store.`,
	RunE: withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	RunE:  withApp(runLogout),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  withApp(runWhoami),
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	RunE:  withApp(runPasswd),
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the access token",
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the server whether the stored token is still valid",
	RunE:  withApp(runTokenValidate),
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, passwdCmd, tokenCmd)
	tokenCmd.AddCommand(tokenValidateCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "user name (prompted when empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when empty)")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")

	passwdCmd.Flags().StringVar(&currentPassword, "current", "", "current password (prompted when empty)")
	passwdCmd.Flags().StringVar(&newPassword, "new", "", "new password (prompted when empty)")
}

func runLogin(cmd *cobra.Command, args []string, a *app) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	username := loginUsername
	if username == "" {
		var err error
		if username, err = prompt(in, out, "Username: "); err != nil {
			return err
		}
	}

	password := loginPassword
	if password == "" {
		label := "Password: "
		if loginPasswordStdin {
			label = ""
		}
		var err error
		if password, err = prompt(in, out, label); err != nil {
			return err
		}
	}

	session, err := a.session.Login(cmd.Context(), username, password)
	if err != nil {
		if apiErr, ok := api.AsAPIError(err); ok && apiErr.Detail != "" {
			return fmt.Errorf("login failed: %s", apiErr.Detail)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	return render(cmd.OutOrStdout(), session, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("User", session.UserID)
		t.Append("Role", string(session.Role))
		t.Append("Expires", formatTime(session.ExpiresAt))
	})
}

func runLogout(cmd *cobra.Command, args []string, a *app) error {
	a.session.Logout()
	return nil
}

func runWhoami(cmd *cobra.Command, args []string, a *app) error {
	user, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (*models.User, error) {
		return a.client.Me(ctx, creds)
	})
	if err != nil {
		return err
	}

	session := a.session.Session()
	return render(cmd.OutOrStdout(), user, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("User ID", user.UserID)
		t.Append("Username", user.Username)
		t.Append("Email", orDash(user.Email))
		t.Append("Role", string(user.Role))
		if session != nil {
			t.Append("Session expires", formatTime(session.ExpiresAt))
		}
	})
}

func runPasswd(cmd *cobra.Command, args []string, a *app) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	current, next := currentPassword, newPassword
	var err error
	if current == "" {
		if current, err = prompt(in, out, "Current password: "); err != nil {
			return err
		}
	}
	if next == "" {
		if next, err = prompt(in, out, "New password: "); err != nil {
			return err
		}
	}

	err = auth.Do(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) error {
		return a.client.ChangePassword(ctx, creds, current, next)
	})
	if apiErr, ok := api.AsAPIError(err); ok && apiErr.IsValidation() {
		return errors.New(apiErr.Detail)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
	return nil
}

func runTokenValidate(cmd *cobra.Command, args []string, a *app) error {
	valid, err := auth.Call(cmd.Context(), a.session, a.client.ValidateToken)
	if err != nil {
		return err
	}

	result := map[string]bool{"is_valid": valid}
	return render(cmd.OutOrStdout(), result, func(t *tablewriter.Table) {
		t.Header("Valid")
		t.Append(fmt.Sprintf("%t", valid))
	})
}

// prompt reads one line; an empty label reads silently from piped input
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	if label != "" {
		fmt.Fprint(out, label)
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
