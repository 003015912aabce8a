package cmd

import (
	"errors"
	"fmt"

	"github.com/guardianentry/sessiongate/internal/config"
	"github.com/guardianentry/sessiongate/store"
)

// backends holds the opened session and account stores. They may be the
// same value when one database serves both.
type backends struct {
	sessions store.SessionStore
	accounts store.AccountStore
	shared   bool
}

func openBackends(cfg *config.Config) (*backends, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return &backends{sessions: s, accounts: s, shared: true}, nil

	case config.DriverMySQL:
		s, err := store.NewMySQLFromDSN(cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql store: %w", err)
		}
		return &backends{sessions: s, accounts: s, shared: true}, nil

	case config.DriverMemory:
		return &backends{
			sessions: store.NewMemorySessionStore(),
			accounts: store.NewMemoryAccountStore(),
		}, nil
	}

	var sessions store.SessionStore
	switch cfg.StoreDriver {
	case config.DriverRedis:
		s, err := store.NewRedisFromConfig(store.RedisConfig{URL: cfg.RedisURL, KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		sessions = s
	case config.DriverBolt:
		s, err := store.NewBoltFromFile(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		sessions = s
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	// Accounts stay in SQLite for the session-only backends.
	accounts, err := store.NewSQLite(cfg.SQLitePath)
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("failed to open sqlite account store: %w", err)
	}
	return &backends{sessions: sessions, accounts: accounts}, nil
}

// closeAccounts closes the account store when it is not also the session
// store; the Gate owns the session store.
func (b *backends) closeAccounts() error {
	if b.shared {
		return nil
	}
	return b.accounts.Close()
}

func (b *backends) Close() error {
	err := b.sessions.Close()
	return errors.Join(err, b.closeAccounts())
}
