package routegate

import (
	"sync"

	"github.com/jrsteele09/go-auth-client/authz"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog/log"
)

// SessionSource is the read side of the session manager.
type SessionSource interface {
	// Snapshot returns the state and user as of one moment.
	Snapshot() (sessions.State, *users.User)
	Watch(fn func(sessions.State)) func()
}

// Gate holds the current location and re-evaluates it whenever the location or
// the session state changes. It implements sessions.Navigator.
type Gate struct {
	session SessionSource
	policy  *authz.Policy
	routes  Routes

	lock      sync.Mutex
	location  string
	decision  Decision
	observers []func(location string, d Decision)
	unwatch   func()
}

var _ sessions.Navigator = (*Gate)(nil)

// New creates a Gate at initial and starts watching session.
func New(session SessionSource, policy *authz.Policy, routes Routes, initial string) *Gate {
	g := &Gate{
		session:  session,
		policy:   policy,
		routes:   routes,
		location: initial,
	}
	g.unwatch = session.Watch(func(sessions.State) {
		g.Visit(g.Location())
	})
	g.Visit(initial)
	return g
}

// Observe registers fn to receive every evaluated location and its decision.
func (g *Gate) Observe(fn func(location string, d Decision)) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.observers = append(g.observers, fn)
}

// Navigate implements sessions.Navigator.
func (g *Gate) Navigate(route string) {
	g.Visit(route)
}

// Visit evaluates location and applies the decision. A redirect moves the gate
// to the target; the returned decision is the one made for location.
func (g *Gate) Visit(location string) Decision {
	state, user := g.session.Snapshot()
	caps := g.policy.Capabilities(user)
	d := Decide(state, location, caps, g.routes)

	current := location
	if d.Action == ActionRedirect {
		current = d.Target
		if next := Decide(state, current, caps, g.routes); next.Action == ActionRedirect {
			log.Error().Str("from", location).Str("to", current).Str("next", next.Target).Msg("Route decision did not settle")
		}
		log.Debug().Str("from", location).Str("to", current).Str("state", state.String()).Msg("Redirecting")
	}

	g.lock.Lock()
	g.location = current
	g.decision = d
	observers := make([]func(string, Decision), len(g.observers))
	copy(observers, g.observers)
	g.lock.Unlock()

	for _, fn := range observers {
		fn(location, d)
	}
	return d
}

// Location returns where the gate currently is.
func (g *Gate) Location() string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.location
}

// Decision returns the last decision made.
func (g *Gate) Decision() Decision {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.decision
}

// Capabilities returns the current user's capabilities for UI decisions.
func (g *Gate) Capabilities() authz.Capabilities {
	_, user := g.session.Snapshot()
	return g.policy.Capabilities(user)
}

// Close stops watching the session.
func (g *Gate) Close() {
	g.lock.Lock()
	unwatch := g.unwatch
	g.unwatch = nil
	g.lock.Unlock()
	if unwatch != nil {
		unwatch()
	}
}
