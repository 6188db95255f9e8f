package domain

import (
	"context"
	"io"
	"time"
)

// PostStore owns the ordered post log.
type PostStore interface {
	// Append sanitizes text, prepends a new post and persists the log before
	// returning. A failed flush returns an error wrapping ErrPersistence.
	Append(ctx context.Context, text string) (Post, error)

	// List returns a snapshot of all posts, newest first.
	List() []Post
}

// DocumentStore is the durable copy of the post log.
type DocumentStore interface {
	// Read returns the stored posts, newest first. It returns ErrNotFound if
	// nothing has been written yet.
	Read(ctx context.Context) ([]Post, error)

	// Write replaces the stored posts.
	Write(ctx context.Context, posts []Post) error
}

// SessionRepository persists server-side session records.
type SessionRepository interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns the session with the given ID, or ErrNotFound.
	GetSession(ctx context.Context, id string) (Session, error)

	// TouchSession moves the expiry of a session.
	TouchSession(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteSession removes a session. Deleting a missing session is not an
	// error.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes sessions that expired before now and
	// returns how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// BlobStore stores uploaded files.
type BlobStore interface {
	// Save stores the content of r and returns a URL it can be fetched from.
	// It returns ErrPayloadTooLarge or ErrBadFile for rejected uploads.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

// PostListener is notified after a post has been persisted. Delivery is best
// effort; listeners must not block for long.
type PostListener interface {
	PostCreated(ctx context.Context, post Post)
}
