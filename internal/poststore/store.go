// Package poststore keeps the journal's ordered post log in memory and
// mirrors it to a durable document.
package poststore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/blackmichael/journal/internal/domain"
)

// Compile-time assertion that Store implements domain.PostStore.
var _ domain.PostStore = (*Store)(nil)

// Store is the in-process cache of the post log, newest first. Writes are
// serialized by writeMu and flushed to the document store before the cache
// is swapped, so readers never observe a post that is not durable.
type Store struct {
	doc    domain.DocumentStore
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	writeMu sync.Mutex

	mu    sync.RWMutex
	posts []domain.Post
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp new posts.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the ULID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty Store backed by doc. Call Load before serving reads.
func New(doc domain.DocumentStore, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		doc:    doc,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fills the cache from the document store. A missing document yields an
// empty log; any other read error is returned so an unreadable document is
// never overwritten.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	posts, err := s.doc.Read(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("no post document found, starting empty")
		posts = nil
	} else if err != nil {
		return fmt.Errorf("read posts: %w", err)
	}

	s.swap(posts)
	s.logger.Info("posts loaded", "count", len(posts))
	return nil
}

// Reload replaces the cache with the current durable copy. It is used when
// the document changes outside this process.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	posts, err := s.doc.Read(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		posts = nil
	} else if err != nil {
		return fmt.Errorf("reload posts: %w", err)
	}

	before := s.Len()
	s.swap(posts)
	s.logger.Info("posts reloaded", "before", before, "after", len(posts))
	return nil
}

// Append sanitizes text, prepends a new post and persists the log. The post
// only becomes visible to List once the flush succeeded.
func (s *Store) Append(ctx context.Context, text string) (domain.Post, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	post, err := domain.NewPost(s.newID(), text, s.now())
	if err != nil {
		return domain.Post{}, err
	}

	s.mu.RLock()
	next := make([]domain.Post, 0, len(s.posts)+1)
	next = append(next, post)
	next = append(next, s.posts...)
	s.mu.RUnlock()

	if err := s.doc.Write(ctx, next); err != nil {
		s.logger.Error("flush posts failed", "id", post.ID, "count", len(next), "error", err)
		return domain.Post{}, fmt.Errorf("%w: write posts: %w", domain.ErrPersistence, err)
	}

	s.swap(next)
	return post, nil
}

// List returns a copy of the log, newest first.
func (s *Store) List() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Len returns the number of posts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

func (s *Store) swap(posts []domain.Post) {
	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()
}
