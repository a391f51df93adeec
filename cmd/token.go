package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Mint a bearer token for a user",
	Long:  "Mint a bearer token signed with CODEQUIZ_JWT_SECRET. Intended for local development and testing.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		auth, err := api.NewAuthenticator(cfg.Server.JWTSecret)
		if err != nil {
			return err
		}
		token, err := auth.Issue(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", api.DefaultTokenTTL, "Token lifetime")
}
