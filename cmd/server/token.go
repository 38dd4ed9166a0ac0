package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gympay/internal/auth"
	"gympay/internal/config"
	"gympay/internal/domain"
)

// tokenCmd issues bearer tokens for local testing and operator scripts.
func tokenCmd() *cobra.Command {
	var principal domain.Principal
	var role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			principal.Role = domain.Role(role)
			authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			token, err := authenticator.Issue(principal)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&principal.ID, "id", "", "subject of the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleParent), "parent, staff or admin")
	cmd.Flags().StringVar(&principal.Email, "email", "", "email claim")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
