package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guardianentry/sessiongate/internal/config"
	"github.com/guardianentry/sessiongate/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage user accounts",
}

var (
	accountID      string
	accountSubject string
	accountEmail   string
	accountName    string
	accountRole    string
)

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreDriver == config.DriverMemory {
			return fmt.Errorf("accounts cannot be persisted with the %s driver", config.DriverMemory)
		}

		b, err := openBackends(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		account := &store.Account{
			ID:       accountID,
			Subject:  accountSubject,
			Email:    strings.ToLower(strings.TrimSpace(accountEmail)),
			FullName: accountName,
			Role:     strings.ToLower(accountRole),
		}
		if err := b.accounts.PutAccount(cmd.Context(), account); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account %s saved (role %s)\n", account.ID, account.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd)

	f := accountsAddCmd.Flags()
	f.StringVar(&accountID, "id", "", "Account document ID")
	f.StringVar(&accountSubject, "subject", "", "Identity-provider subject")
	f.StringVar(&accountEmail, "email", "", "E-mail address")
	f.StringVar(&accountName, "name", "", "Full name")
	f.StringVar(&accountRole, "role", "student", "Role")
	accountsAddCmd.MarkFlagRequired("id")
}
