package sessiongate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate/store"
)

// Account IDs of the legacy staff documents that may lack a subject and are
// matched by e-mail instead.
const (
	DeveloperAccountID = "Developer"
	AdminAccountID     = "Admin"
)

const defaultRole = "student"

// Credential is a verified bearer credential.
type Credential struct {
	Subject string
	Email   string
}

// Identity is the account a credential resolves to.
type Identity struct {
	UserID  string
	Role    string
	Subject string
	Email   string
	Account *store.Account
}

// Directory resolves credentials to accounts and records login events.
type Directory struct {
	accounts store.AccountStore
	log      *zap.Logger
	now      func() time.Time
}

// NewDirectory returns a Directory over accounts. A nil logger is replaced
// with a no-op logger.
func NewDirectory(accounts store.AccountStore, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		accounts: accounts,
		log:      logger.Named("directory"),
		now:      time.Now,
	}
}

// Resolve maps cred to an account: first by subject, then by e-mail against
// the Developer and Admin documents. It returns ErrAccountNotFound when
// nothing matches.
func (d *Directory) Resolve(ctx context.Context, cred Credential) (*Identity, error) {
	account, err := d.accounts.GetAccountBySubject(ctx, cred.Subject)
	switch {
	case err == nil:
		return newIdentity(account, cred, account.Role), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("sessiongate: failed to look up account: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(cred.Email))
	if email == "" {
		return nil, ErrAccountNotFound
	}

	staff := []struct{ id, role string }{
		{DeveloperAccountID, "developer"},
		{AdminAccountID, "admin"},
	}
	for _, s := range staff {
		account, err := d.accounts.GetAccount(ctx, s.id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sessiongate: failed to look up %s account: %w", s.id, err)
		}
		if strings.EqualFold(strings.TrimSpace(account.Email), email) {
			return newIdentity(account, cred, s.role), nil
		}
	}

	return nil, ErrAccountNotFound
}

func newIdentity(account *store.Account, cred Credential, role string) *Identity {
	role = strings.ToLower(role)
	if role == "" {
		role = defaultRole
	}
	return &Identity{
		UserID:  account.ID,
		Role:    role,
		Subject: cred.Subject,
		Email:   cred.Email,
		Account: account,
	}
}

// RecordLogin stamps the account's last login time and, when non-empty,
// stores the push token.
func (d *Directory) RecordLogin(ctx context.Context, userID, pushToken string) error {
	if err := d.accounts.RecordLogin(ctx, userID, d.now(), pushToken); err != nil {
		return fmt.Errorf("sessiongate: failed to record login: %w", err)
	}
	return nil
}

// RecordLogout clears the account's last login time. Failures are logged only.
func (d *Directory) RecordLogout(ctx context.Context, userID string) {
	if err := d.accounts.ClearLogin(ctx, userID); err != nil {
		d.log.Warn("failed to clear last login", zap.String("user_id", userID), zap.Error(err))
	}
}

// Account returns the stored account for userID.
func (d *Directory) Account(ctx context.Context, userID string) (*store.Account, error) {
	account, err := d.accounts.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessiongate: failed to load account: %w", err)
	}
	return account, nil
}
