package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"amici-chat/internal/auth"
)

var tokenEmail string

// tokenCmd mints a session token with the configured secret, for local
// testing against a running server.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print a signed session token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL).GenerateToken(args[0], tokenEmail)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	rootCmd.AddCommand(tokenCmd)
}
