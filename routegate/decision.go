// Package routegate turns the session state, the current location and the user's
// capabilities into a navigation decision.
package routegate

import (
	"strings"

	"github.com/jrsteele09/go-auth-client/authz"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/sessions"
)

type Action int

const (
	ActionRender   Action = iota // Show the requested location
	ActionLoading                // Session not known yet, show a neutral placeholder
	ActionRedirect               // Navigate to Target
)

func (a Action) String() string {
	switch a {
	case ActionRender:
		return "render"
	case ActionLoading:
		return "loading"
	case ActionRedirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is computed on demand and never persisted.
type Decision struct {
	Action Action
	Target string // Set for ActionRedirect
}

// Routes are the fixed locations the gate redirects to.
type Routes struct {
	Login        string
	Home         string
	Unauthorized string
}

// RoutesFromConfig reads the routes from configuration.
func RoutesFromConfig(c config.RouteConfig) Routes {
	return Routes{
		Login:        c.GetLoginRoute(),
		Home:         c.GetHomeRoute(),
		Unauthorized: c.GetUnauthorizedRoute(),
	}
}

// Landing is where an authenticated user lands after leaving the login route.
// Users without console access land directly on the unauthorized route.
func (r Routes) Landing(caps authz.Capabilities) string {
	if caps.IsAdmin {
		return r.Home
	}
	return r.Unauthorized
}

// Decide applies the rules in order, first match wins:
//
//  1. Hydrating: loading, no navigation
//  2. Unauthenticated away from the login route: redirect to login
//  3. Authenticated on the login route: redirect to the landing route
//  4. Authenticated without admin rights away from the unauthorized route: redirect there
//  5. otherwise render the location
//
// Every redirect target satisfies none of the rules that lead away from it, so
// the gate settles after at most one hop.
func Decide(state sessions.State, location string, caps authz.Capabilities, routes Routes) Decision {
	path := pathOf(location)
	switch {
	case state == sessions.Hydrating:
		return Decision{Action: ActionLoading}
	case state != sessions.Authenticated:
		if path != routes.Login {
			return redirect(routes.Login)
		}
	case path == routes.Login:
		return redirect(routes.Landing(caps))
	case !caps.IsAdmin && path != routes.Unauthorized:
		return redirect(routes.Unauthorized)
	}
	return Decision{Action: ActionRender}
}

func redirect(target string) Decision {
	return Decision{Action: ActionRedirect, Target: target}
}

// pathOf drops any query or fragment.
func pathOf(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	if location == "" {
		return "/"
	}
	return location
}
