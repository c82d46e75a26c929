// store.go implements the repository methods for accounts, API keys,
// sessions, and generation history.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// ErrConflict is returned when an insert collides with a uniqueness
// constraint, e.g. registering an email that already has an account.
var ErrConflict = errors.New("db: conflict")

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite exposes these as plain errors carrying the SQLite
// message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// User is a row in the users table.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// APIKey is a row in the api_keys table. The secret is stored only as a
// bcrypt digest; the raw value is shown once at mint time and never kept.
type APIKey struct {
	ID         string
	UserID     string
	SecretHash string
	Label      string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Session is a row in the sessions table.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// GenerationRecord is a row in the generation_history table.
type GenerationRecord struct {
	ID          int64
	UserID      string
	ConfigJSON  string
	ImageName   string
	Transparent bool
	CreatedAt   time.Time
}

// Store provides typed access to the application tables.
//
// Thread Safety: Store is safe for concurrent use; it holds no state
// beyond the connection pool.
type Store struct {
	conn *sql.DB
}

// NewStore creates a Store over an open connection.
func NewStore(conn *sql.DB) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("db: connection cannot be nil")
	}
	return &Store{conn: conn}, nil
}

// Conn exposes the underlying connection for components that run their own
// transactions, such as the credit ledger.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// CreateUser inserts a user together with its zeroed balance row in one
// transaction, so every user always has a balance to deduct from.
func (s *Store) CreateUser(ctx context.Context, user User) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q is already registered: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("db: failed to insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO balances (user_id) VALUES (?)`, user.ID); err != nil {
		return fmt.Errorf("db: failed to insert balance row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: failed to commit user creation: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by email. Returns ErrNotFound when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email))
}

// GetUserByID looks a user up by ID. Returns ErrNotFound when absent.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: failed to scan user: %w", err)
	}
	return &u, nil
}

// InsertAPIKey stores a freshly minted key digest.
func (s *Store) InsertAPIKey(ctx context.Context, key APIKey) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, secret_hash, label) VALUES (?, ?, ?, ?)`,
		key.ID, key.UserID, key.SecretHash, key.Label)
	if err != nil {
		return fmt.Errorf("db: failed to insert API key: %w", err)
	}
	return nil
}

// GetAPIKey fetches a key by its public ID, revoked or not. Callers decide
// what a revoked key means for them.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, secret_hash, label, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE id = ?`, id)
	return s.scanAPIKey(row)
}

// ListAPIKeys returns every key for a user, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, secret_hash, label, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := s.scanAPIKeyRow(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: failed to iterate API keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks a key revoked. The user scoping prevents revoking
// another user's key by guessing its ID. Returns ErrNotFound when the key
// does not exist, belongs to someone else, or is already revoked.
func (s *Store) RevokeAPIKey(ctx context.Context, userID, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND revoked_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("db: failed to revoke API key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db: failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAPIKey updates a key's last-used timestamp. Best effort.
func (s *Store) TouchAPIKey(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("db: failed to touch API key: %w", err)
	}
	return nil
}

func (s *Store) scanAPIKey(row *sql.Row) (*APIKey, error) {
	var key APIKey
	var lastUsed, revoked sql.NullTime
	err := row.Scan(&key.ID, &key.UserID, &key.SecretHash, &key.Label,
		&key.CreatedAt, &lastUsed, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: failed to scan API key: %w", err)
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}
	if revoked.Valid {
		key.RevokedAt = &revoked.Time
	}
	return &key, nil
}

func (s *Store) scanAPIKeyRow(rows *sql.Rows) (*APIKey, error) {
	var key APIKey
	var lastUsed, revoked sql.NullTime
	if err := rows.Scan(&key.ID, &key.UserID, &key.SecretHash, &key.Label,
		&key.CreatedAt, &lastUsed, &revoked); err != nil {
		return nil, fmt.Errorf("db: failed to scan API key: %w", err)
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}
	if revoked.Valid {
		key.RevokedAt = &revoked.Time
	}
	return &key, nil
}

// CreateSession stores a login session.
func (s *Store) CreateSession(ctx context.Context, session Session) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		session.Token, session.UserID, session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("db: failed to insert session: %w", err)
	}
	return nil
}

// GetSession fetches a live session. Expired sessions report ErrNotFound.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.conn.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&session.Token, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: failed to scan session: %w", err)
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &session, nil
}

// DeleteSession removes a session (logout). Deleting an unknown token is
// not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("db: failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every expired session and reports how many
// were deleted.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("db: failed to delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db: failed to count deleted sessions: %w", err)
	}
	return affected, nil
}

// InsertGeneration records a completed generation.
func (s *Store) InsertGeneration(ctx context.Context, record GenerationRecord) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO generation_history (user_id, config_json, image_name, transparent)
		 VALUES (?, ?, ?, ?)`,
		record.UserID, record.ConfigJSON, record.ImageName, record.Transparent)
	if err != nil {
		return fmt.Errorf("db: failed to insert generation record: %w", err)
	}
	return nil
}

// ListGenerations returns a user's most recent generations, newest first.
func (s *Store) ListGenerations(ctx context.Context, userID string, limit int) ([]GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, config_json, image_name, transparent, created_at
		 FROM generation_history WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list generations: %w", err)
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var r GenerationRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.ConfigJSON, &r.ImageName,
			&r.Transparent, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: failed to scan generation record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: failed to iterate generation records: %w", err)
	}
	return records, nil
}
