package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"
)

// Role is the privilege level bound to a session. The string values match
// the wire format of the session and login endpoints.
type Role string

const (
	RoleNone   Role = ""
	RoleViewer Role = "view"
	RoleEditor Role = "edit"
)

// Valid reports whether r is one of the authenticated roles.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleEditor
}

// Session binds an identity to a role. The zero Session is unauthenticated.
type Session struct {
	ID        string
	Role      Role
	Remember  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the session carries a role.
func (s Session) Authenticated() bool {
	return s.Role.Valid()
}

// RequireSession passes for any authenticated session.
func RequireSession(s Session) error {
	if !s.Authenticated() {
		return ErrUnauthorized
	}
	return nil
}

// RequireEditor passes only for editor sessions. An unauthenticated session
// gets ErrUnauthorized, a viewer gets ErrForbidden.
func RequireEditor(s Session) error {
	if err := RequireSession(s); err != nil {
		return err
	}
	if s.Role != RoleEditor {
		return ErrForbidden
	}
	return nil
}

// Gate classifies credentials against the two configured shared secrets.
type Gate struct {
	editor [sha256.Size]byte
	viewer [sha256.Size]byte
}

// NewGate creates a Gate. Both secrets are required and must differ.
func NewGate(editorSecret, viewerSecret string) (*Gate, error) {
	if editorSecret == "" || viewerSecret == "" {
		return nil, errors.New("editor and viewer secrets are required")
	}
	if editorSecret == viewerSecret {
		return nil, errors.New("editor and viewer secrets must differ")
	}
	return &Gate{
		editor: sha256.Sum256([]byte(editorSecret)),
		viewer: sha256.Sum256([]byte(viewerSecret)),
	}, nil
}

// Classify returns the role granted by credential, or RoleNone. Both secrets
// are always compared in constant time so timing does not reveal which one
// was closer.
func (g *Gate) Classify(credential string) Role {
	if credential == "" {
		return RoleNone
	}
	sum := sha256.Sum256([]byte(credential))
	isEditor := subtle.ConstantTimeCompare(sum[:], g.editor[:])
	isViewer := subtle.ConstantTimeCompare(sum[:], g.viewer[:])
	switch {
	case isEditor == 1:
		return RoleEditor
	case isViewer == 1:
		return RoleViewer
	default:
		return RoleNone
	}
}
