package cmd

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/auth"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users (admins only)",
	RunE:  withApp(runUsers),
}

func init() {
	rootCmd.AddCommand(usersCmd)
}

func runUsers(cmd *cobra.Command, args []string, a *app) error {
	users, err := auth.Call(cmd.Context(), a.session, a.client.ListUsers)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), users, func(t *tablewriter.Table) {
		t.Header("User ID", "Username", "Email", "Role", "Disabled", "Created")
		for _, u := range users {
			disabled := "no"
			if u.Disabled {
				disabled = "yes"
			}
			t.Append(u.UserID, u.Username, orDash(u.Email), string(u.Role), disabled, formatTime(u.CreatedAt))
		}
	})
}
