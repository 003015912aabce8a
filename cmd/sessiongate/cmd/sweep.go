package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardianentry/sessiongate/internal/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		gate, b, err := openGate(cfg, logger)
		if err != nil {
			return err
		}
		defer b.closeAccounts()
		defer gate.Close()

		res, err := gate.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d, failed %d\n", res.Scanned, res.Deleted, res.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
