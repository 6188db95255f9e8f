// Package session establishes, resolves and destroys viewer/editor sessions.
//
// A session is a server-side record (the repository is authoritative) and a
// signed token carried by the client. The token names the record; it never
// grants anything on its own.
package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/hkdf"

	"github.com/blackmichael/journal/internal/domain"
)

const (
	// DefaultRememberFor is the validity of a "remember me" session.
	DefaultRememberFor = 30 * 24 * time.Hour

	// DefaultIdleTimeout is the validity of a non-persistent session since
	// its last use.
	DefaultIdleTimeout = 12 * time.Hour

	tokenIssuer = "journal"
	keyInfo     = "journal session token v1"
)

// Config configures a Manager.
type Config struct {
	// Secret is the server secret the token signing key is derived from.
	Secret string

	// RememberFor is the fixed lifetime of remembered sessions.
	RememberFor time.Duration

	// IdleTimeout is the sliding lifetime of other sessions.
	IdleTimeout time.Duration

	// CookieName is the name of the session cookie.
	CookieName string

	// SecureCookie marks the cookie Secure (HTTPS only).
	SecureCookie bool
}

// Manager implements the session lifecycle.
type Manager struct {
	gate   *domain.Gate
	repo   domain.SessionRepository
	cfg    Config
	key    []byte
	now    func() time.Time
	logger *slog.Logger
}

// claims is the token payload.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewManager creates a Manager. The signing key is derived from cfg.Secret
// with HKDF-SHA256.
func NewManager(gate *domain.Gate, repo domain.SessionRepository, cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.RememberFor <= 0 {
		cfg.RememberFor = DefaultRememberFor
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.Secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	return &Manager{
		gate:   gate,
		repo:   repo,
		cfg:    cfg,
		key:    key,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Login classifies credential and, on success, stores a new session and
// returns it with its token. A remembered session lasts RememberFor; any
// other session expires after IdleTimeout without use.
func (m *Manager) Login(ctx context.Context, credential string, remember bool) (domain.Session, string, error) {
	role := m.gate.Classify(credential)
	if !role.Valid() {
		m.logger.Warn("login rejected")
		return domain.Session{}, "", domain.ErrInvalidCredential
	}

	now := m.now().UTC()
	sess := domain.Session{
		ID:        ulid.Make().String(),
		Role:      role,
		Remember:  remember,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.IdleTimeout),
	}
	if remember {
		sess.ExpiresAt = now.Add(m.cfg.RememberFor)
	}

	token, err := m.sign(sess)
	if err != nil {
		return domain.Session{}, "", err
	}
	if err := m.repo.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, "", fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("session created", "session", sess.ID, "role", string(role), "remember", remember)
	return sess, token, nil
}

// Resolve returns the session named by token. Missing, forged, revoked or
// expired tokens resolve to the zero Session with a nil error; an error is
// only returned when the repository fails. Non-persistent sessions have
// their idle window refreshed once half of it has elapsed.
func (m *Manager) Resolve(ctx context.Context, token string) (domain.Session, error) {
	sess, err := m.lookup(ctx, token)
	if err != nil || sess.ID == "" {
		return sess, err
	}

	now := m.now().UTC()
	if !sess.Remember && sess.ExpiresAt.Sub(now) < m.cfg.IdleTimeout/2 {
		sess.ExpiresAt = now.Add(m.cfg.IdleTimeout)
		if err := m.repo.TouchSession(ctx, sess.ID, sess.ExpiresAt); err != nil {
			m.logger.Warn("refresh session failed", "session", sess.ID, "error", err)
		}
	}
	return sess, nil
}

// lookup resolves token like Resolve but never moves the expiry.
func (m *Manager) lookup(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, nil
	}

	id, role, ok := m.verify(token)
	if !ok {
		return domain.Session{}, nil
	}

	sess, err := m.repo.GetSession(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}

	if !m.now().UTC().Before(sess.ExpiresAt) || sess.Role != role || !sess.Role.Valid() {
		return domain.Session{}, nil
	}
	return sess, nil
}

// Logout deletes the session named by token and returns it. Unknown tokens
// are not an error.
func (m *Manager) Logout(ctx context.Context, token string) (domain.Session, error) {
	sess, err := m.Resolve(ctx, token)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.ID == "" {
		return domain.Session{}, nil
	}
	if err := m.repo.DeleteSession(ctx, sess.ID); err != nil {
		return domain.Session{}, fmt.Errorf("delete session: %w", err)
	}
	m.logger.Info("session destroyed", "session", sess.ID)
	return sess, nil
}

// StartCleanupJob removes expired sessions immediately and then at every
// interval. It blocks until ctx is cancelled.
func (m *Manager) StartCleanupJob(ctx context.Context, interval time.Duration) {
	m.runCleanup(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCleanup(ctx)
		}
	}
}

func (m *Manager) runCleanup(ctx context.Context) {
	deleted, err := m.repo.DeleteExpiredSessions(ctx, m.now().UTC())
	if err != nil {
		m.logger.Error("session cleanup failed", "error", err)
	} else if deleted > 0 {
		m.logger.Info("session cleanup complete", "deleted", deleted)
	}
}

func (m *Manager) sign(sess domain.Session) (string, error) {
	c := claims{
		Role: string(sess.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       sess.ID,
			Issuer:   tokenIssuer,
			IssuedAt: jwt.NewNumericDate(sess.CreatedAt),
		},
	}
	if sess.Remember {
		c.ExpiresAt = jwt.NewNumericDate(sess.ExpiresAt)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (m *Manager) verify(token string) (id string, role domain.Role, ok bool) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || c.ID == "" {
		return "", domain.RoleNone, false
	}
	return c.ID, domain.Role(c.Role), true
}
