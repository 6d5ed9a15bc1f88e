package routegate_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-client/authz"
	"github.com/jrsteele09/go-auth-client/expiry"
	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/routegate"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/storefakes"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

var routes = routegate.Routes{Login: "/login", Home: "/", Unauthorized: "/unauthorized"}

var (
	admin    = authz.Capabilities{IsAdmin: true}
	super    = authz.Capabilities{IsAdmin: true, IsSuperAdmin: true}
	nonAdmin = authz.Capabilities{}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		state    sessions.State
		location string
		caps     authz.Capabilities
		want     routegate.Decision
	}{
		{"hydrating", sessions.Hydrating, "/dashboard", admin, routegate.Decision{Action: routegate.ActionLoading}},
		{"hydrating on login", sessions.Hydrating, "/login", nonAdmin, routegate.Decision{Action: routegate.ActionLoading}},
		{"anonymous elsewhere", sessions.Unauthenticated, "/dashboard", nonAdmin, routegate.Decision{Action: routegate.ActionRedirect, Target: "/login"}},
		{"anonymous on login", sessions.Unauthenticated, "/login", nonAdmin, routegate.Decision{Action: routegate.ActionRender}},
		{"anonymous on login with query", sessions.Unauthenticated, "/login?next=/sites", nonAdmin, routegate.Decision{Action: routegate.ActionRender}},
		{"admin on login", sessions.Authenticated, "/login", admin, routegate.Decision{Action: routegate.ActionRedirect, Target: "/"}},
		{"non-admin on login", sessions.Authenticated, "/login", nonAdmin, routegate.Decision{Action: routegate.ActionRedirect, Target: "/unauthorized"}},
		{"non-admin on dashboard", sessions.Authenticated, "/dashboard", nonAdmin, routegate.Decision{Action: routegate.ActionRedirect, Target: "/unauthorized"}},
		{"non-admin on unauthorized", sessions.Authenticated, "/unauthorized", nonAdmin, routegate.Decision{Action: routegate.ActionRender}},
		{"admin on dashboard", sessions.Authenticated, "/dashboard", admin, routegate.Decision{Action: routegate.ActionRender}},
		{"superadmin on unauthorized", sessions.Authenticated, "/unauthorized", super, routegate.Decision{Action: routegate.ActionRender}},
		{"empty location is home", sessions.Authenticated, "", admin, routegate.Decision{Action: routegate.ActionRender}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, routegate.Decide(tt.state, tt.location, tt.caps, routes))
		})
	}
}

func TestDecide_SettlesInOneHop(t *testing.T) {
	states := []sessions.State{sessions.Hydrating, sessions.Unauthenticated, sessions.Authenticated}
	locations := []string{"/login", "/", "/unauthorized", "/dashboard", "/sites/7?tab=map", ""}
	capsets := []authz.Capabilities{nonAdmin, admin, super}

	for _, state := range states {
		for _, location := range locations {
			for _, caps := range capsets {
				d := routegate.Decide(state, location, caps, routes)
				if d.Action != routegate.ActionRedirect {
					continue
				}
				next := routegate.Decide(state, d.Target, caps, routes)
				require.NotEqual(t, routegate.ActionRedirect, next.Action,
					"state=%s location=%q caps=%+v redirected to %q then %q", state, location, caps, d.Target, next.Target)
			}
		}
	}
}

// fakeSession is a SessionSource with settable state.
type fakeSession struct {
	state    sessions.State
	user     *users.User
	watchers []func(sessions.State)
}

func (s *fakeSession) Snapshot() (sessions.State, *users.User) { return s.state, s.user }
func (s *fakeSession) Watch(fn func(sessions.State)) func() {
	s.watchers = append(s.watchers, fn)
	return func() { s.watchers = nil }
}

func (s *fakeSession) set(state sessions.State, user *users.User) {
	s.state, s.user = state, user
	for _, fn := range s.watchers {
		fn(state)
	}
}

func TestGate_FollowsSessionChanges(t *testing.T) {
	s := &fakeSession{state: sessions.Hydrating}
	g := routegate.New(s, authz.New(nil), routes, "/dashboard")
	t.Cleanup(g.Close)

	require.Equal(t, routegate.ActionLoading, g.Decision().Action)
	require.Equal(t, "/dashboard", g.Location())

	s.set(sessions.Authenticated, &users.User{ID: "u1", Role: users.RoleAdmin})
	require.Equal(t, "/dashboard", g.Location())
	require.Equal(t, routegate.ActionRender, g.Decision().Action)

	s.set(sessions.Unauthenticated, nil)
	require.Equal(t, "/login", g.Location())
}

func TestGate_NonAdminAccess(t *testing.T) {
	s := &fakeSession{state: sessions.Authenticated, user: &users.User{ID: "u2", Role: users.RoleTechnician}}
	g := routegate.New(s, authz.New(nil), routes, "/")
	t.Cleanup(g.Close)

	d := g.Visit("/dashboard")
	require.Equal(t, routegate.Decision{Action: routegate.ActionRedirect, Target: "/unauthorized"}, d)
	require.Equal(t, "/unauthorized", g.Location())
	require.False(t, g.Capabilities().IsAdmin)
}

func TestGate_Observe(t *testing.T) {
	s := &fakeSession{state: sessions.Unauthenticated}
	g := routegate.New(s, authz.New(nil), routes, "/login")
	t.Cleanup(g.Close)

	var seen []string
	g.Observe(func(location string, d routegate.Decision) {
		seen = append(seen, location+"->"+d.Action.String())
	})
	g.Navigate("/sites")

	require.Equal(t, []string{"/sites->redirect"}, seen)
}

func TestGate_CloseStopsWatching(t *testing.T) {
	s := &fakeSession{state: sessions.Authenticated, user: &users.User{ID: "u1", Role: users.RoleAdmin}}
	g := routegate.New(s, authz.New(nil), routes, "/dashboard")
	g.Close()
	g.Close()

	s.set(sessions.Unauthenticated, nil)
	require.Equal(t, "/dashboard", g.Location())
}

type staticRequester struct {
	body string
}

func (r staticRequester) Post(context.Context, string, any) *gateway.Response {
	return &gateway.Response{Status: http.StatusOK, Body: []byte(r.body)}
}

func TestGate_WithManager(t *testing.T) {
	ctx := context.Background()
	channel := expiry.New()
	requester := staticRequester{body: `{"success":true,"data":{"token":"tok-1","user":{"id":"u1","role":"admin"}}}`}
	m, err := sessions.NewManager(requester, storefakes.NewFakeStore(), channel)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	g := routegate.New(m, authz.New(nil), routes, "/sites")
	t.Cleanup(g.Close)
	require.Equal(t, routegate.ActionLoading, g.Decision().Action)

	m.Hydrate(ctx)
	require.Equal(t, "/login", g.Location())

	require.NoError(t, m.Login(ctx, "a", "b"))
	require.Equal(t, "/", g.Location())

	channel.Publish()
	require.Equal(t, "/login", g.Location())
	require.Equal(t, sessions.Unauthenticated, m.State())
}

func TestGate_AdminNeverSentToUnauthorizedDuringTeardown(t *testing.T) {
	ctx := context.Background()
	requester := staticRequester{body: `{"success":true,"data":{"token":"tok-1","user":{"id":"u1","role":"admin"}}}`}
	m, err := sessions.NewManager(requester, storefakes.NewFakeStore(), expiry.New())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	m.Hydrate(ctx)

	g := routegate.New(m, authz.New(nil), routes, "/dashboard")
	t.Cleanup(g.Close)

	var lock sync.Mutex
	var targets []string
	g.Observe(func(_ string, d routegate.Decision) {
		lock.Lock()
		defer lock.Unlock()
		targets = append(targets, d.Target)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := m.Login(ctx, "a", "b"); err != nil {
				t.Error(err)
				return
			}
			m.Logout(ctx)
		}
	}()
	for i := 0; i < 200; i++ {
		g.Visit("/dashboard")
	}
	wg.Wait()

	lock.Lock()
	defer lock.Unlock()
	require.NotContains(t, targets, "/unauthorized")
}
