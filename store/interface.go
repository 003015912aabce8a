package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get-style lookups when no record exists.
var ErrNotFound = errors.New("store: record not found")

// Session is the persisted record asserting that a user is logged in on a device.
// There is at most one Session per UserID.
type Session struct {
	UserID       string
	Role         string
	DeviceID     string
	DeviceLabel  string
	IP           string
	City         string
	Country      string
	LoginTime    time.Time
	LastActivity time.Time
}

// IsExpired reports whether the session has been idle for longer than timeout.
// A zero LastActivity (missing or unparseable timestamp) counts as expired.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	if s.LastActivity.IsZero() {
		return true
	}
	return now.Sub(s.LastActivity) > timeout
}

// Clone returns a copy that does not alias the receiver.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// SessionStore defines the interface for session storage backends.
// Implementations must be safe for concurrent use. Writes to different
// users are independent; no cross-record transaction is assumed.
type SessionStore interface {
	// Get returns the session for userID or ErrNotFound.
	Get(ctx context.Context, userID string) (*Session, error)

	// Put creates the session or overwrites the existing one for the same user.
	Put(ctx context.Context, session *Session) error

	// PutIfAdmissible writes session only if no record exists for the user,
	// the existing record is owned by the same DeviceID, or the existing
	// record's LastActivity is before staleBefore. It reports whether the
	// write happened. The check and the write are atomic per record.
	PutIfAdmissible(ctx context.Context, session *Session, staleBefore time.Time) (bool, error)

	// Touch advances LastActivity to at if the record exists and its
	// LastActivity is not before staleBefore. It never creates a record,
	// never revives an expired one and never moves LastActivity backwards.
	Touch(ctx context.Context, userID string, at, staleBefore time.Time) error

	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, userID string) error

	// DeleteIfStale removes the session only if its LastActivity is zero or
	// before staleBefore, and reports whether it did. The check and the
	// delete are atomic per record, so a session written after the caller
	// read the stale one survives.
	DeleteIfStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error)

	// List returns every stored session, expired ones included.
	List(ctx context.Context) ([]*Session, error)

	// ListByRole returns every stored session with the given role, expired ones included.
	ListByRole(ctx context.Context, role string) ([]*Session, error)

	// Close releases any resources held by the store.
	Close() error
}

// Account is a user document from the accounts collection.
type Account struct {
	ID          string
	Subject     string
	Email       string
	FullName    string
	Role        string
	LastLoginAt *time.Time
	PushToken   string
}

// AccountStore reads and updates user documents.
// Implementations must be safe for concurrent use.
type AccountStore interface {
	// GetAccount returns the account with the given document ID or ErrNotFound.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// GetAccountBySubject returns the account bound to an identity-provider
	// subject or ErrNotFound.
	GetAccountBySubject(ctx context.Context, subject string) (*Account, error)

	// PutAccount creates or replaces an account.
	PutAccount(ctx context.Context, account *Account) error

	// RecordLogin sets LastLoginAt and, when pushToken is non-empty, the push token.
	RecordLogin(ctx context.Context, id string, at time.Time, pushToken string) error

	// ClearLogin resets LastLoginAt.
	ClearLogin(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// isStale reports whether session's activity is missing or before staleBefore.
func isStale(session *Session, staleBefore time.Time) bool {
	return session.LastActivity.IsZero() || session.LastActivity.Before(staleBefore)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
