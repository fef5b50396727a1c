package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// NewUsersCmd returns the "users" command group for managing recipients.
func NewUsersCmd(cfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage notification recipients",
	}
	cmd.AddCommand(newUsersAddCmd(cfg), newUsersShowCmd(cfg))
	return cmd
}

func newUsersAddCmd(cfg *config.AppConfig) *cobra.Command {
	var u storage.User
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if u.Role != storage.RoleUser && u.Role != storage.RoleAdmin {
				return fmt.Errorf("invalid role %q: want %s or %s", u.Role, storage.RoleUser, storage.RoleAdmin)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				if err := a.users.CreateUser(ctx, &u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %d (%s).\n", u.Role, u.ID, u.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&u.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&u.Mobile, "mobile", "", "Mobile number")
	cmd.Flags().StringVar(&u.Role, "role", storage.RoleUser, "Role (user, admin)")
	cmd.Flags().StringSliceVar(&u.OptOuts, "opt-out", nil, "Notification categories the user opted out of")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUsersShowCmd(cfg *config.AppConfig) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				u, err := a.users.GetUser(ctx, id)
				if err != nil {
					return err
				}
				if u == nil {
					return fmt.Errorf("user %d not found", id)
				}
				t := newTable("ID", "Name", "Role", "Email", "Mobile", "Opt-outs")
				t.Row(fmt.Sprintf("%d", u.ID), u.Name, u.Role, u.Email, u.Mobile, fmt.Sprintf("%v", u.OptOuts))
				fmt.Fprintln(cmd.OutOrStdout(), t.Render())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "User id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
