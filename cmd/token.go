package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/auth"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/config"
)

// tokenCmd mints an access token for a (user, team) pair. Deployments with
// an identity provider in front never need this; it covers local setups and
// smoke tests.
func tokenCmd() *cobra.Command {
	var (
		userID int64
		teamID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user and team",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("CODESK_AUTH_SECRET is not set")
			}
			tok, err := auth.IssueAccessToken(cfg.Auth.Secret, userID, teamID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user ID")
	cmd.Flags().Int64Var(&teamID, "team", 0, "team ID")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("team")
	return cmd
}
