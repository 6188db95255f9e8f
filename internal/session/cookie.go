package session

import (
	"net/http"

	"github.com/blackmichael/journal/internal/domain"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "journal_session"

// FromRequest resolves the session carried by the request's cookie. It also
// returns the raw token so callers can log out with it.
func (m *Manager) FromRequest(r *http.Request) (domain.Session, string, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return domain.Session{}, "", nil
	}
	sess, err := m.Resolve(r.Context(), c.Value)
	return sess, c.Value, err
}

// SetCookie writes the session cookie. Remembered sessions get a persistent
// cookie; others end with the browser session.
func (m *Manager) SetCookie(w http.ResponseWriter, token string, sess domain.Session) {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Remember {
		c.Expires = sess.ExpiresAt
		c.MaxAge = int(sess.ExpiresAt.Sub(m.now()).Seconds())
	}
	http.SetCookie(w, c)
}

// ClearCookie expires the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// CurrentRole returns the role of the request's session, or RoleNone. It
// only reads the session and never extends it.
func (m *Manager) CurrentRole(r *http.Request) (domain.Role, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return domain.RoleNone, nil
	}
	sess, err := m.lookup(r.Context(), c.Value)
	if err != nil {
		return domain.RoleNone, err
	}
	return sess.Role, nil
}
