package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardianentry/sessiongate/internal/config"
	"github.com/guardianentry/sessiongate/internal/token"
)

var (
	tokenSubject string
	tokenEmail   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer credential for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return err
		}
		raw, err := m.Sign(tokenSubject, tokenEmail)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Identity-provider subject")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "E-mail claim")
	tokenCmd.MarkFlagRequired("subject")
}
