package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/groupchat/pkg/crypto"
	"github.com/NicolasHaas/groupchat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// UserRecord is a stored user as listed by administrators.
type UserRecord struct {
	Username  string    `json:"username"`
	Hashed    bool      `json:"hashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SQLite is a credential database. The server never writes to it; it takes a
// Snapshot at startup. Writes come from the admin CLI.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite credential database and runs migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("userstore: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userstore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" while the CLI and server overlap
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userstore: set busy_timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userstore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("init schema_migrations: %w", err)
		}
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version: 1,
			statements: []string{`
			CREATE TABLE IF NOT EXISTS users (
				username   TEXT NOT NULL PRIMARY KEY CHECK(length(username) > 0 AND length(username) <= 32),
				secret     TEXT NOT NULL CHECK(length(secret) > 0),
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`},
		},
		{
			version: 2,
			statements: []string{
				"ALTER TABLE users ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''",
				"UPDATE users SET updated_at = created_at WHERE updated_at = ''",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// CreateUser stores a new user. The secret is stored as given; callers hash
// it first unless they deliberately keep a plain-text password.
func (s *SQLite) CreateUser(username, secret string) error {
	if err := validateCredential(model.Credential{Username: username, Secret: secret}); err != nil {
		return fmt.Errorf("userstore: create user: %w", err)
	}
	now := formatDBTime(time.Now())
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, secret, created_at, updated_at) VALUES (?, ?, ?, ?)",
		username, secret, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("userstore: create user %q: %w", username, ErrDuplicateUser)
		}
		return fmt.Errorf("userstore: create user: %w", err)
	}
	return nil
}

// SetSecret replaces a user's secret.
func (s *SQLite) SetSecret(username, secret string) error {
	if secret == "" {
		return fmt.Errorf("userstore: set secret: %w", model.ErrEmptyArgument)
	}
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE users SET secret = ?, updated_at = ? WHERE username = ?",
		secret, formatDBTime(time.Now()), username)
	if err != nil {
		return fmt.Errorf("userstore: set secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("userstore: set secret %q: %w", username, model.ErrUserNotFound)
	}
	return nil
}

// DeleteUser removes a user.
func (s *SQLite) DeleteUser(username string) error {
	res, err := s.db.ExecContext(context.Background(), "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("userstore: delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("userstore: delete user %q: %w", username, model.ErrUserNotFound)
	}
	return nil
}

// Lookup retrieves a credential by username.
func (s *SQLite) Lookup(username string) (model.Credential, error) {
	var c model.Credential
	err := s.db.QueryRowContext(context.Background(),
		"SELECT username, secret FROM users WHERE username = ?", username).
		Scan(&c.Username, &c.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("userstore: lookup: %w", err)
	}
	return c, nil
}

// ListUsers returns all users ordered by username, without secrets.
func (s *SQLite) ListUsers() ([]UserRecord, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT username, secret, created_at, updated_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("userstore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []UserRecord
	for rows.Next() {
		var u UserRecord
		var secret, createdAt, updatedAt string
		if err := rows.Scan(&u.Username, &secret, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("userstore: scan user: %w", err)
		}
		u.Hashed = crypto.IsHashed(secret)
		if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("userstore: scan user: %w", err)
		}
		if u.UpdatedAt, err = parseDBTime(updatedAt); err != nil {
			return nil, fmt.Errorf("userstore: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Import inserts or replaces every credential in one transaction and
// returns how many rows were written.
func (s *SQLite) Import(creds []model.Credential) (int, error) {
	for _, c := range creds {
		if err := validateCredential(c); err != nil {
			return 0, fmt.Errorf("userstore: import: %w", err)
		}
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("userstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatDBTime(time.Now())
	for _, c := range creds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (username, secret, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(username) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at`,
			c.Username, c.Secret, now, now)
		if err != nil {
			return 0, fmt.Errorf("userstore: import %q: %w", c.Username, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("userstore: commit: %w", err)
	}
	return len(creds), nil
}

// Snapshot loads every credential into an immutable Memory store.
func (s *SQLite) Snapshot() (*Memory, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT username, secret FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("userstore: snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.Username, &c.Secret); err != nil {
			return nil, fmt.Errorf("userstore: snapshot: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userstore: snapshot: %w", err)
	}
	return NewMemory(creds...)
}
