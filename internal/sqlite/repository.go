// Package sqlite implements the session repository and an alternative post
// document store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/journal/internal/docstore"
	"github.com/blackmichael/journal/internal/domain"
)

// Compile-time assertions.
var (
	_ domain.SessionRepository = (*Repository)(nil)
	_ domain.DocumentStore     = (*DocumentStore)(nil)
)

// Repository implements domain.SessionRepository and hands out document
// stores backed by the same database.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. The caller should call Close when the repository is no longer
// needed.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			role        TEXT NOT NULL,
			remember    INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at);`,
		`CREATE TABLE IF NOT EXISTS documents (
			key         TEXT PRIMARY KEY,
			body        BLOB NOT NULL,
			updated_at  INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, s domain.Session) error {
	remember := 0
	if s.Remember {
		remember = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, role, remember, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		string(s.Role),
		remember,
		s.CreatedAt.UnixMilli(),
		s.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID, or domain.ErrNotFound.
func (r *Repository) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s                  domain.Session
		role               string
		remember           int64
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, role, remember, created_at, expires_at
		FROM sessions
		WHERE id = ?`, id,
	).Scan(&s.ID, &role, &remember, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("query session: %w", err)
	}

	s.Role = domain.Role(role)
	s.Remember = remember != 0
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return s, nil
}

// TouchSession moves a session's expiry.
func (r *Repository) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, expiresAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session by ID.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now. Returns
// the number of rows deleted.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Document returns a document store that keeps the post log under key.
func (r *Repository) Document(key string) *DocumentStore {
	return &DocumentStore{db: r.db, key: key}
}

// DocumentStore stores the post log as one row of the documents table, using
// the same versioned JSON layout as the file store.
type DocumentStore struct {
	db  *sql.DB
	key string
}

// Read returns the stored posts, or domain.ErrNotFound.
func (d *DocumentStore) Read(ctx context.Context) ([]domain.Post, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, d.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document %q: %w", d.key, err)
	}

	posts, err := docstore.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode document %q: %w", d.key, err)
	}
	return posts, nil
}

// Write upserts the document.
func (d *DocumentStore) Write(ctx context.Context, posts []domain.Post) error {
	body, err := docstore.Encode(posts)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		d.key, body, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", d.key, err)
	}
	return nil
}
