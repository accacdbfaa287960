package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"doclocker/internal/config"
	"doclocker/internal/http/middleware"
	"doclocker/internal/model"
)

// NewTokenCommand issues a bearer token signed with JWT_SECRET. Intended for
// local development and smoke tests; production tokens come from the
// identity service.
func NewTokenCommand() *cobra.Command {
	var (
		subject    string
		role       string
		department string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}

			auth, err := middleware.NewAuthenticator(config.Load().Auth)
			if err != nil {
				return err
			}
			token, err := auth.Sign(model.Actor{ID: subject, Role: r, Department: department}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user id carried as the token subject")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "admin, supervisor or user")
	cmd.Flags().StringVar(&department, "department", "", "user department")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
