package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sessiongate",
	Short: "Single-device session gate",
	Long: `sessiongate admits logins so that each account holds at most one live
session, bound to the device it was created on, and enforces role policies
for staff accounts. Configuration is read from the environment and .env.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
