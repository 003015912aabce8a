package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements SessionStore and AccountStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

var (
	_ SessionStore = (*MySQLStore)(nil)
	_ AccountStore = (*MySQLStore)(nil)
)

// NewMySQL creates a new MySQL store on an open database handle.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	statements := []string{`
	CREATE TABLE IF NOT EXISTS sessions (
		user_id       VARCHAR(255) PRIMARY KEY,
		role          VARCHAR(32) NOT NULL,
		device_id     VARCHAR(255) NOT NULL,
		device_label  VARCHAR(255),
		ip            VARCHAR(45),
		city          VARCHAR(100),
		country       VARCHAR(100),
		login_time    BIGINT,
		last_activity BIGINT,

		INDEX idx_sessions_role (role)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`, `
	CREATE TABLE IF NOT EXISTS accounts (
		id            VARCHAR(255) PRIMARY KEY,
		subject       VARCHAR(255),
		email         VARCHAR(255),
		full_name     VARCHAR(255),
		role          VARCHAR(32) NOT NULL,
		last_login_at BIGINT NULL DEFAULT NULL,
		push_token    VARCHAR(512),

		INDEX idx_accounts_subject (subject)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("mysql: failed to create schema: %w", err)
		}
	}
	return nil
}

// Get returns the session for userID.
func (s *MySQLStore) Get(ctx context.Context, userID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE user_id = ?", userID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to scan session: %w", err)
	}
	return session, nil
}

// Put creates or overwrites the user's session.
func (s *MySQLStore) Put(ctx context.Context, session *Session) error {
	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		role = VALUES(role),
		device_id = VALUES(device_id),
		device_label = VALUES(device_label),
		ip = VALUES(ip),
		city = VALUES(city),
		country = VALUES(country),
		login_time = VALUES(login_time),
		last_activity = VALUES(last_activity)
	`

	if _, err := s.db.ExecContext(ctx, query, sessionArgs(session)...); err != nil {
		return fmt.Errorf("mysql: failed to save session: %w", err)
	}
	return nil
}

// PutIfAdmissible inserts the row if absent, otherwise updates it only when the
// stored row belongs to the same device or has gone stale. Both statements are
// atomic on their own; a row deleted between them reports false and the caller
// re-reads.
func (s *MySQLStore) PutIfAdmissible(ctx context.Context, session *Session, staleBefore time.Time) (bool, error) {
	insert := `INSERT IGNORE INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, insert, sessionArgs(session)...)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	update := `
	UPDATE sessions SET
		role = ?, device_label = ?, ip = ?, city = ?, country = ?,
		login_time = ?, last_activity = ?, device_id = ?
	WHERE user_id = ?
		AND (device_id = ? OR last_activity IS NULL OR last_activity < ?)
	`
	res, err = s.db.ExecContext(ctx, update,
		session.Role,
		session.DeviceLabel,
		session.IP,
		session.City,
		session.Country,
		toMillis(session.LoginTime),
		toMillis(session.LastActivity),
		session.DeviceID,
		session.UserID,
		session.DeviceID,
		toMillis(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Touch advances last_activity for an existing row that has not gone stale.
func (s *MySQLStore) Touch(ctx context.Context, userID string, at, staleBefore time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_activity = GREATEST(last_activity, ?) WHERE user_id = ? AND last_activity > 0 AND last_activity >= ?",
		toMillis(at), userID, toMillis(staleBefore),
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the user's session row.
func (s *MySQLStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("mysql: failed to delete session: %w", err)
	}
	return nil
}

// DeleteIfStale removes the user's row only if it has gone stale.
func (s *MySQLStore) DeleteIfStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id = ? AND (last_activity IS NULL OR last_activity <= 0 OR last_activity < ?)",
		userID, toMillis(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to delete stale session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns all session rows.
func (s *MySQLStore) List(ctx context.Context) ([]*Session, error) {
	return s.query(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY user_id")
}

// ListByRole returns all session rows with the given role.
func (s *MySQLStore) ListByRole(ctx context.Context, role string) ([]*Session, error) {
	return s.query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE role = ? ORDER BY user_id", role)
}

func (s *MySQLStore) query(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (s *MySQLStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return s.account(row)
}

func (s *MySQLStore) GetAccountBySubject(ctx context.Context, subject string) (*Account, error) {
	if subject == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE subject = ? LIMIT 1", subject)
	return s.account(row)
}

func (s *MySQLStore) account(row *sql.Row) (*Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to scan account: %w", err)
	}
	return a, nil
}

func (s *MySQLStore) PutAccount(ctx context.Context, a *Account) error {
	query := `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		subject = VALUES(subject),
		email = VALUES(email),
		full_name = VALUES(full_name),
		role = VALUES(role),
		last_login_at = VALUES(last_login_at),
		push_token = VALUES(push_token)
	`
	if _, err := s.db.ExecContext(ctx, query, accountArgs(a)...); err != nil {
		return fmt.Errorf("mysql: failed to save account: %w", err)
	}
	return nil
}

func (s *MySQLStore) RecordLogin(ctx context.Context, id string, at time.Time, pushToken string) error {
	set := []string{"last_login_at = ?"}
	args := []any{toMillis(at)}
	if pushToken != "" {
		set = append(set, "push_token = ?")
		args = append(args, pushToken)
	}
	args = append(args, id)

	query := "UPDATE accounts SET " + strings.Join(set, ", ") + " WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mysql: failed to record login: %w", err)
	}
	return nil
}

func (s *MySQLStore) ClearLogin(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE accounts SET last_login_at = NULL WHERE id = ?", id); err != nil {
		return fmt.Errorf("mysql: failed to clear login: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
