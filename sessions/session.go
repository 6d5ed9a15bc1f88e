// Package sessions owns the authenticated session: the bearer token, the user it
// belongs to, the persisted mirror of both, and the lifecycle that ties them together.
package sessions

import (
	"time"

	"github.com/jrsteele09/go-auth-client/users"
)

// State is the lifecycle state of the Manager.
type State int

const (
	Hydrating State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session binds an opaque bearer token to the user it was issued for.
// A Session is never modified after creation; login replaces it wholesale.
type Session struct {
	Token     string      // Opaque bearer credential
	User      *users.User // Identity returned with the token
	ExpiresAt time.Time   // Best effort, read from an unverified JWT exp claim; zero when unknown
}

func newSession(token string, user *users.User) *Session {
	expiresAt, _ := PeekExpiry(token)
	return &Session{Token: token, User: user, ExpiresAt: expiresAt}
}

// clone returns a copy that shares nothing mutable with s.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{Token: s.Token, User: s.User.Clone(), ExpiresAt: s.ExpiresAt}
}
