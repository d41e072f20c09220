package session

import (
	"errors"
	"time"
)

var (
	// errors
	ErrSessionNotFound = errors.New("Session not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrDeactivated     = errors.New("account deactivated")
)

// Session is the server-side record anchoring a login; it is the root of trust
// for all access/refresh tokens. Exactly one live row exists per token (ID) and
// ExpiresAt never goes backwards across refreshes.
type Session struct {
	ID          string    `json:"id"` // opaque session token
	UserID      string    `json:"user_id"`
	UserType    string    `json:"user_type"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"` // UTC
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (s Session) Expired() bool {
	return nowFunc().After(s.ExpiresAt)
}

func (s Session) HasPermission(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the session holds at least one of perms;
// an empty required set always passes.
func (s Session) HasAnyPermission(perms ...string) bool {
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if s.HasPermission(p) {
			return true
		}
	}
	return false
}

// Validation is the per-request authentication decision.
// RefreshRequired is only set when a silent refresh can still succeed: the
// session row exists but either the presented access token or the session
// itself has expired. Every other failure requires full re-authentication.
type Validation struct {
	Valid           bool     `json:"valid"`
	RefreshRequired bool     `json:"refresh_required,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	UserType        string   `json:"user_type,omitempty"`
	Session         *Session `json:"session,omitempty"`
}
