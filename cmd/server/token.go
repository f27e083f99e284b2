package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zchat-signal/internal/security"
	"zchat-signal/internal/service"
)

func newTokenCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			tokens := security.NewTokenService(rt.cfg.JWTSecret, rt.cfg.AccessTokenTTL())
			auth := service.NewAuthService(rt.repos.Users, tokens, security.NewPasswordHasher(0))
			token, err := auth.IssueToken(cmd.Context(), username)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "User to mint the token for")
	return cmd
}
