package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore and AccountStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ SessionStore = (*SQLiteStore)(nil)
	_ AccountStore = (*SQLiteStore)(nil)
)

// NewSQLite creates a new SQLite store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// A single connection serialises writers so concurrent requests never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id       TEXT PRIMARY KEY,
		role          TEXT NOT NULL,
		device_id     TEXT NOT NULL,
		device_label  TEXT,
		ip            TEXT,
		city          TEXT,
		country       TEXT,
		login_time    INTEGER,
		last_activity INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_role ON sessions (role);

	CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		subject       TEXT,
		email         TEXT,
		full_name     TEXT,
		role          TEXT NOT NULL,
		last_login_at INTEGER,
		push_token    TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_subject ON accounts (subject);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

const sessionColumns = `user_id, role, device_id, device_label, ip, city, country, login_time, last_activity`

// Get returns the session for userID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE user_id = ?", userID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return session, nil
}

// Put creates or overwrites the user's session.
func (s *SQLiteStore) Put(ctx context.Context, session *Session) error {
	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		role = excluded.role,
		device_id = excluded.device_id,
		device_label = excluded.device_label,
		ip = excluded.ip,
		city = excluded.city,
		country = excluded.country,
		login_time = excluded.login_time,
		last_activity = excluded.last_activity
	`

	if _, err := s.db.ExecContext(ctx, query, sessionArgs(session)...); err != nil {
		return fmt.Errorf("sqlite: failed to save session: %w", err)
	}
	return nil
}

// PutIfAdmissible upserts the session unless a fresh row owned by another device exists.
func (s *SQLiteStore) PutIfAdmissible(ctx context.Context, session *Session, staleBefore time.Time) (bool, error) {
	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		role = excluded.role,
		device_id = excluded.device_id,
		device_label = excluded.device_label,
		ip = excluded.ip,
		city = excluded.city,
		country = excluded.country,
		login_time = excluded.login_time,
		last_activity = excluded.last_activity
	WHERE sessions.device_id = excluded.device_id
		OR sessions.last_activity IS NULL
		OR sessions.last_activity < ?
	`

	args := append(sessionArgs(session), toMillis(staleBefore))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Touch advances last_activity for an existing row that has not gone stale.
func (s *SQLiteStore) Touch(ctx context.Context, userID string, at, staleBefore time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_activity = MAX(last_activity, ?) WHERE user_id = ? AND last_activity > 0 AND last_activity >= ?",
		toMillis(at), userID, toMillis(staleBefore),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the user's session row.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("sqlite: failed to delete session: %w", err)
	}
	return nil
}

// DeleteIfStale removes the user's row only if it has gone stale.
func (s *SQLiteStore) DeleteIfStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id = ? AND (last_activity IS NULL OR last_activity <= 0 OR last_activity < ?)",
		userID, toMillis(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to delete stale session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns all session rows.
func (s *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	return s.query(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY user_id")
}

// ListByRole returns all session rows with the given role.
func (s *SQLiteStore) ListByRole(ctx context.Context, role string) ([]*Session, error) {
	return s.query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE role = ? ORDER BY user_id", role)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating sessions: %w", err)
	}

	return sessions, nil
}

const accountColumns = `id, subject, email, full_name, role, last_login_at, push_token`

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return s.account(row)
}

func (s *SQLiteStore) GetAccountBySubject(ctx context.Context, subject string) (*Account, error) {
	if subject == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE subject = ? LIMIT 1", subject)
	return s.account(row)
}

func (s *SQLiteStore) account(row *sql.Row) (*Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) PutAccount(ctx context.Context, a *Account) error {
	query := `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		subject = excluded.subject,
		email = excluded.email,
		full_name = excluded.full_name,
		role = excluded.role,
		last_login_at = excluded.last_login_at,
		push_token = excluded.push_token
	`
	if _, err := s.db.ExecContext(ctx, query, accountArgs(a)...); err != nil {
		return fmt.Errorf("sqlite: failed to save account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordLogin(ctx context.Context, id string, at time.Time, pushToken string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET last_login_at = ?, push_token = CASE WHEN ? = '' THEN push_token ELSE ? END WHERE id = ?",
		toMillis(at), pushToken, pushToken, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ClearLogin(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE accounts SET last_login_at = NULL WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: failed to clear login: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func sessionArgs(s *Session) []any {
	return []any{
		s.UserID,
		s.Role,
		s.DeviceID,
		s.DeviceLabel,
		s.IP,
		s.City,
		s.Country,
		toMillis(s.LoginTime),
		toMillis(s.LastActivity),
	}
}

// scanSession scans a session row. NULL or non-positive timestamps become
// zero times, which readers treat as expired.
func scanSession(row scanner) (*Session, error) {
	var (
		session                  Session
		label, ip, city, country sql.NullString
		loginTime, lastActivity  sql.NullInt64
	)
	err := row.Scan(
		&session.UserID,
		&session.Role,
		&session.DeviceID,
		&label,
		&ip,
		&city,
		&country,
		&loginTime,
		&lastActivity,
	)
	if err != nil {
		return nil, err
	}
	session.DeviceLabel = label.String
	session.IP = ip.String
	session.City = city.String
	session.Country = country.String
	session.LoginTime = fromMillis(loginTime.Int64)
	session.LastActivity = fromMillis(lastActivity.Int64)
	return &session, nil
}

func accountArgs(a *Account) []any {
	var lastLogin any
	if a.LastLoginAt != nil {
		lastLogin = toMillis(*a.LastLoginAt)
	}
	return []any{a.ID, a.Subject, a.Email, a.FullName, a.Role, lastLogin, a.PushToken}
}

func scanAccount(row scanner) (*Account, error) {
	var (
		a                               Account
		subject, email, name, pushToken sql.NullString
		lastLogin                       sql.NullInt64
	)
	if err := row.Scan(&a.ID, &subject, &email, &name, &a.Role, &lastLogin, &pushToken); err != nil {
		return nil, err
	}
	a.Subject = subject.String
	a.Email = email.String
	a.FullName = name.String
	a.PushToken = pushToken.String
	if lastLogin.Valid && lastLogin.Int64 > 0 {
		t := fromMillis(lastLogin.Int64)
		a.LastLoginAt = &t
	}
	return &a, nil
}
