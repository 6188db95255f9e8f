package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// JournalService is the core domain service. It applies the authorization
// guards, reads page windows from the post store, creates posts and notifies
// listeners, and hands uploads to the blob store.
type JournalService struct {
	posts     PostStore
	blobs     BlobStore
	media     *MediaMatcher
	listeners []PostListener
	pageSize  int
	logger    *slog.Logger
}

// ServiceOption configures a JournalService.
type ServiceOption func(*JournalService)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) ServiceOption {
	return func(s *JournalService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMediaMatcher sets the matcher used by MediaKind.
func WithMediaMatcher(m *MediaMatcher) ServiceOption {
	return func(s *JournalService) {
		if m != nil {
			s.media = m
		}
	}
}

// WithListeners registers listeners notified after each created post.
func WithListeners(listeners ...PostListener) ServiceOption {
	return func(s *JournalService) {
		s.listeners = append(s.listeners, listeners...)
	}
}

// NewJournalService creates a JournalService. blobs may be nil, in which case
// uploads are rejected.
func NewJournalService(posts PostStore, blobs BlobStore, logger *slog.Logger, opts ...ServiceOption) *JournalService {
	s := &JournalService{
		posts:    posts,
		blobs:    blobs,
		media:    NewMediaMatcher(nil, nil),
		pageSize: DefaultPageSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageSize returns the configured page size.
func (s *JournalService) PageSize() int {
	return s.pageSize
}

// Page returns the requested page window for an authenticated session.
func (s *JournalService) Page(ctx context.Context, sess Session, page int) (*Page, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}

	window := Paginate(s.posts.List(), page, s.pageSize)
	s.logger.Debug("page served", "requested", page, "page", window.Page, "items", len(window.Items))

	return &Page{
		PageWindow: window,
		Role:       sess.Role,
		IsEdit:     sess.Role == RoleEditor,
	}, nil
}

// CreatePost validates and appends a post for an editor session, then
// notifies listeners. Validation and authorization failures never reach the
// store; listener failures never fail the write.
func (s *JournalService) CreatePost(ctx context.Context, sess Session, text string) (Post, error) {
	if err := RequireEditor(sess); err != nil {
		return Post{}, err
	}
	if _, err := ValidateText(text); err != nil {
		return Post{}, err
	}

	post, err := s.posts.Append(ctx, text)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			s.logger.Error("post not persisted", "session", sess.ID, "error", err)
		}
		return Post{}, fmt.Errorf("append post: %w", err)
	}

	s.logger.Info("post created", "id", post.ID, "listeners", len(s.listeners))
	s.notify(ctx, post)
	return post, nil
}

// Upload stores a file for an editor session and returns its URL.
func (s *JournalService) Upload(ctx context.Context, sess Session, filename string, r io.Reader) (string, error) {
	if err := RequireEditor(sess); err != nil {
		return "", err
	}
	if s.blobs == nil {
		return "", fmt.Errorf("%w: uploads are disabled", ErrBadFile)
	}

	url, err := s.blobs.Save(ctx, filename, r)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	s.logger.Info("upload stored", "filename", filename, "url", url)
	return url, nil
}

// MediaKind classifies post text for presentation.
func (s *JournalService) MediaKind(text string) MediaKind {
	return s.media.Kind(text)
}

func (s *JournalService) notify(ctx context.Context, post Post) {
	for _, l := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("post listener panicked", "id", post.ID, "panic", r)
				}
			}()
			l.PostCreated(ctx, post)
		}()
	}
}
