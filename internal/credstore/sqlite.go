package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mjansen/ledgerlink/internal/credential"
)

const schema = `
CREATE TABLE IF NOT EXISTS credential_sets (
	subject_id    TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    INTEGER NOT NULL,
	scope         TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore persists credential sets in a SQLite database, one row per
// subject. Suitable for remote multi-tenant mode.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check to ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLiteStore opens (creating if necessary) a SQLite credential store
// at the given path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the credential set for the subject, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, subjectID string) (credential.Set, error) {
	var (
		set       credential.Set
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subject_id, access_token, refresh_token, expires_at, scope
		FROM credential_sets WHERE subject_id = ?`,
		subjectID,
	).Scan(&set.SubjectID, &set.AccessToken, &set.RefreshToken, &expiresAt, &set.Scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Set{}, ErrNotFound
		}
		return credential.Set{}, fmt.Errorf("query credential set: %w", err)
	}
	set.ExpiresAt = fromMillis(expiresAt)
	return set, nil
}

// Put replaces the credential set for the subject. The upsert writes the
// full record in one statement, so readers never observe a partial update.
func (s *SQLiteStore) Put(ctx context.Context, set credential.Set) error {
	if set.SubjectID == "" {
		return fmt.Errorf("credential set has no subject id")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credential_sets (subject_id, access_token, refresh_token, expires_at, scope)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope`,
		set.SubjectID, set.AccessToken, set.RefreshToken, toMillis(set.ExpiresAt), set.Scope,
	)
	if err != nil {
		return fmt.Errorf("store credential set: %w", err)
	}
	return nil
}

// Delete removes the credential set for the subject.
func (s *SQLiteStore) Delete(ctx context.Context, subjectID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credential_sets WHERE subject_id = ?`, subjectID)
	if err != nil {
		return fmt.Errorf("delete credential set: %w", err)
	}
	return nil
}
