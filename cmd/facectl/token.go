package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facechanger/internal/auth"
)

var (
	tokenOperator string
	tokenRole     string
	tokenExpiry   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the operator API",
	RunE: func(cmd *cobra.Command, args []string) error {
		expiry := tokenExpiry
		if expiry <= 0 {
			expiry = time.Duration(cfg.JWTExpirationMinutes) * time.Minute
		}
		manager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
		if err != nil {
			return err
		}
		token, expiresAt, err := manager.GenerateToken(strings.TrimSpace(tokenOperator), tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenOperator, "operator", "o", "", "Operator name recorded in the token")
	tokenCmd.Flags().StringVarP(&tokenRole, "role", "r", auth.RoleOperator, "Role: operator or admin")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", 0, "Token lifetime (default JWT_EXPIRATION_MINUTES)")
	_ = tokenCmd.MarkFlagRequired("operator")
}
