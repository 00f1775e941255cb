package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/utils/auth"
	"github.com/spf13/cobra"
)

func parseUserID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return uint(id), nil
}

func newTokenCmd() *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.env.JWT_SECRET == "" {
				return fmt.Errorf("JWT_SECRET environment variable is not set")
			}

			var user model.User
			if err := rt.store.GetDB().WithContext(cmd.Context()).First(&user, userID).Error; err != nil {
				return fmt.Errorf("failed to load user %d: %w", userID, err)
			}

			manager := auth.NewJWTManager(auth.JWTConfig{
				Secret: rt.env.JWT_SECRET,
				Expiry: expiry,
				Issuer: rt.env.JWT_ISSUER,
			})
			token, _, err := manager.GenerateAccessToken(user.ID, user.Email, user.OrganizationID, user.TokenVersion)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	return cmd
}

func newRevokeTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-tokens <user-id>",
		Short: "Invalidate every token issued to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			blacklist := auth.NewBlacklistService(rt.store.GetDB())
			if err := blacklist.RevokeAllUserTokens(cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked all tokens for user %d\n", userID)
			return nil
		},
	}
}
