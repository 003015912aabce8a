package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// BoltStore implements SessionStore on an embedded BBolt database.
// Each session is a JSON document keyed by user ID.
type BoltStore struct {
	db *bbolt.DB
}

var _ SessionStore = (*BoltStore)(nil)

// boltSession is the on-disk document.
type boltSession struct {
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
	DeviceID     string    `json:"deviceId"`
	DeviceLabel  string    `json:"deviceLabel,omitempty"`
	IP           string    `json:"ip,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
}

// NewBolt returns a store backed by the given BBolt database.
func NewBolt(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: failed to create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// NewBoltFromFile opens a BBolt database at path and returns a new store.
func NewBoltFromFile(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: failed to open database: %w", err)
	}
	s, err := NewBolt(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Get returns the session for userID. A document that fails to decode is
// returned with zero timestamps so callers treat it as expired.
func (s *BoltStore) Get(_ context.Context, userID string) (*Session, error) {
	var session *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(userID))
		if data == nil {
			return ErrNotFound
		}
		session = decodeBoltSession(userID, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Put creates or overwrites the user's document.
func (s *BoltStore) Put(_ context.Context, session *Session) error {
	data, err := encodeBoltSession(session)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(session.UserID), data)
	})
	if err != nil {
		return fmt.Errorf("bolt: failed to save session: %w", err)
	}
	return nil
}

// PutIfAdmissible checks and writes inside one read-write transaction.
func (s *BoltStore) PutIfAdmissible(_ context.Context, session *Session, staleBefore time.Time) (bool, error) {
	data, err := encodeBoltSession(session)
	if err != nil {
		return false, err
	}

	written := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if existing := b.Get([]byte(session.UserID)); existing != nil {
			current := decodeBoltSession(session.UserID, existing)
			if current.DeviceID != session.DeviceID && !current.LastActivity.Before(staleBefore) {
				return nil
			}
		}
		written = true
		return b.Put([]byte(session.UserID), data)
	})
	if err != nil {
		return false, fmt.Errorf("bolt: failed to save session: %w", err)
	}
	return written, nil
}

// Touch advances LastActivity if the document exists and has not gone stale.
func (s *BoltStore) Touch(_ context.Context, userID string, at, staleBefore time.Time) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		existing := b.Get([]byte(userID))
		if existing == nil {
			return nil
		}
		session := decodeBoltSession(userID, existing)
		if isStale(session, staleBefore) || !at.After(session.LastActivity) {
			return nil
		}
		session.LastActivity = at
		data, err := encodeBoltSession(session)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
	if err != nil {
		return fmt.Errorf("bolt: failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the user's document.
func (s *BoltStore) Delete(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(userID))
	})
	if err != nil {
		return fmt.Errorf("bolt: failed to delete session: %w", err)
	}
	return nil
}

// DeleteIfStale removes the document inside one update transaction if it
// has gone stale.
func (s *BoltStore) DeleteIfStale(_ context.Context, userID string, staleBefore time.Time) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		existing := b.Get([]byte(userID))
		if existing == nil || !isStale(decodeBoltSession(userID, existing), staleBefore) {
			return nil
		}
		deleted = true
		return b.Delete([]byte(userID))
	})
	if err != nil {
		return false, fmt.Errorf("bolt: failed to delete stale session: %w", err)
	}
	return deleted, nil
}

// List returns every document in key order.
func (s *BoltStore) List(_ context.Context) ([]*Session, error) {
	return s.scan(func(*Session) bool { return true })
}

// ListByRole returns every document with the given role in key order.
func (s *BoltStore) ListByRole(_ context.Context, role string) ([]*Session, error) {
	return s.scan(func(session *Session) bool { return session.Role == role })
}

func (s *BoltStore) scan(keep func(*Session) bool) ([]*Session, error) {
	var sessions []*Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			session := decodeBoltSession(string(k), v)
			if keep(session) {
				sessions = append(sessions, session)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the underlying BBolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeBoltSession(session *Session) ([]byte, error) {
	data, err := json.Marshal(boltSession(*session))
	if err != nil {
		return nil, fmt.Errorf("bolt: failed to encode session: %w", err)
	}
	return data, nil
}

func decodeBoltSession(userID string, data []byte) *Session {
	var doc boltSession
	if err := json.Unmarshal(data, &doc); err != nil {
		return &Session{UserID: userID}
	}
	session := Session(doc)
	session.UserID = userID
	return &session
}
