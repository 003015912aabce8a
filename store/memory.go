package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySessionStore implements SessionStore using an in-memory map.
// This is useful for testing but not recommended for production.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // userID -> Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
	}
}

// Get returns a copy of the stored session.
func (s *MemorySessionStore) Get(_ context.Context, userID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// Put stores a copy of session.
func (s *MemorySessionStore) Put(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.UserID] = session.Clone()
	return nil
}

// PutIfAdmissible stores session unless a fresh record owned by another device exists.
func (s *MemorySessionStore) PutIfAdmissible(_ context.Context, session *Session, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.UserID]; ok {
		if existing.DeviceID != session.DeviceID && !existing.LastActivity.Before(staleBefore) {
			return false, nil
		}
	}
	s.sessions[session.UserID] = session.Clone()
	return true, nil
}

// Touch advances LastActivity if the session exists and has not gone stale.
func (s *MemorySessionStore) Touch(_ context.Context, userID string, at, staleBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok || isStale(session, staleBefore) {
		return nil
	}
	if at.After(session.LastActivity) {
		session.LastActivity = at
	}
	return nil
}

// Delete removes a session by user ID.
func (s *MemorySessionStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

// DeleteIfStale removes the session if it has gone stale.
func (s *MemorySessionStore) DeleteIfStale(_ context.Context, userID string, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok || !isStale(session, staleBefore) {
		return false, nil
	}
	delete(s.sessions, userID)
	return true, nil
}

// List returns copies of all sessions ordered by user ID.
func (s *MemorySessionStore) List(_ context.Context) ([]*Session, error) {
	return s.filter(func(*Session) bool { return true }), nil
}

// ListByRole returns copies of all sessions with the given role ordered by user ID.
func (s *MemorySessionStore) ListByRole(_ context.Context, role string) ([]*Session, error) {
	return s.filter(func(session *Session) bool { return session.Role == role }), nil
}

func (s *MemorySessionStore) filter(keep func(*Session) bool) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}

// MemoryAccountStore implements AccountStore using an in-memory map.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // ID -> Account
}

// NewMemoryAccountStore creates an account store seeded with accounts.
func NewMemoryAccountStore(accounts ...*Account) *MemoryAccountStore {
	s := &MemoryAccountStore{accounts: make(map[string]*Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = copyAccount(a)
	}
	return s
}

func (s *MemoryAccountStore) GetAccount(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

func (s *MemoryAccountStore) GetAccountBySubject(_ context.Context, subject string) (*Account, error) {
	if subject == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Subject == subject {
			return copyAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) PutAccount(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *MemoryAccountStore) RecordLogin(_ context.Context, id string, at time.Time, pushToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.LastLoginAt = &at
	if pushToken != "" {
		a.PushToken = pushToken
	}
	return nil
}

func (s *MemoryAccountStore) ClearLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[id]; ok {
		a.LastLoginAt = nil
	}
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryAccountStore) Close() error {
	return nil
}

func copyAccount(a *Account) *Account {
	c := *a
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
