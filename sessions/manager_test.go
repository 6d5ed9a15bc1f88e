package sessions_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/expiry"
	"github.com/jrsteele09/go-auth-client/gateway"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/storefakes"
	"github.com/stretchr/testify/require"
)

const (
	loginOK    = `{"success":true,"data":{"token":"tok-1","user":{"id":"u1","name":"Ada","email":"ada@example.com","role":"admin","isSuperAdmin":false}}}`
	loginOther = `{"success":true,"data":{"token":"tok-2","user":{"id":"u2","name":"Bo","email":"bo@example.com","role":"viewer","isSuperAdmin":false}}}`
	loginFail  = `{"success":false,"error":"Invalid email or password"}`
)

// fakeRequester answers every Post with the configured response.
type fakeRequester struct {
	status int
	body   string
	paths  []string
	bodies []any
}

func (r *fakeRequester) Post(_ context.Context, path string, body any) *gateway.Response {
	r.paths = append(r.paths, path)
	r.bodies = append(r.bodies, body)
	return &gateway.Response{Status: r.status, StatusText: http.StatusText(r.status), Body: []byte(r.body)}
}

type testFixture struct {
	requester *fakeRequester
	store     *storefakes.FakeStore
	channel   *expiry.Channel
	manager   *sessions.Manager
	routes    []string
	states    []sessions.State
}

func setupTestFixture(t *testing.T, options ...sessions.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		requester: &fakeRequester{status: http.StatusOK, body: loginOK},
		store:     storefakes.NewFakeStore(),
		channel:   expiry.New(),
	}
	nav := sessions.NavigatorFunc(func(route string) {
		f.routes = append(f.routes, route)
	})
	opts := append([]sessions.ManagerOption{sessions.WithNavigator(nav)}, options...)

	m, err := sessions.NewManager(f.requester, f.store, f.channel, opts...)
	require.NoError(t, err)
	m.Watch(func(s sessions.State) {
		f.states = append(f.states, s)
	})
	t.Cleanup(m.Close)
	f.manager = m
	return f
}

// requireConsistent checks that the persisted record and the in-memory session agree.
func (f *testFixture) requireConsistent(t *testing.T) {
	t.Helper()
	snapshot := f.store.Snapshot()
	_, hasToken := snapshot["token"]
	_, hasUser := snapshot["user"]
	require.Equal(t, hasToken, hasUser, "partial persisted record")

	session := f.manager.Session()
	require.Equal(t, session != nil, hasToken)
	if session != nil {
		require.Equal(t, session.Token, snapshot["token"])
		require.Equal(t, sessions.Authenticated, f.manager.State())
	}
}

func TestNewManager_RequiredDependencies(t *testing.T) {
	store := storefakes.NewFakeStore()
	ch := expiry.New()
	req := &fakeRequester{}

	_, err := sessions.NewManager(nil, store, ch)
	require.Error(t, err)
	_, err = sessions.NewManager(req, nil, ch)
	require.Error(t, err)
	_, err = sessions.NewManager(req, store, nil)
	require.Error(t, err)
	_, err = sessions.NewManager(req, store, ch, sessions.WithKeys(sessions.Keys{Token: "k", User: "k"}))
	require.Error(t, err)
}

func TestManager_StartsHydrating(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, sessions.Hydrating, f.manager.State())
	require.Equal(t, 1, f.channel.Len())

	_, err := f.manager.Token()
	require.ErrorIs(t, err, apperrors.ErrNoSession)
}

func TestManager_Hydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		f := setupTestFixture(t)
		require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
		require.Equal(t, []sessions.State{sessions.Unauthenticated}, f.states)
		require.Empty(t, f.routes)
	})

	t.Run("complete record", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(ctx, "token", "tok-9"))
		require.NoError(t, f.store.Set(ctx, "user", `{"id":"u9","role":"technician"}`))

		require.Equal(t, sessions.Authenticated, f.manager.Hydrate(ctx))
		require.Equal(t, "u9", f.manager.User().ID)
		tok, err := f.manager.Token()
		require.NoError(t, err)
		require.Equal(t, "tok-9", tok.AccessToken)
		f.requireConsistent(t)
	})

	t.Run("corrupt user entry", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(ctx, "token", "tok-9"))
		require.NoError(t, f.store.Set(ctx, "user", `{not-json`))

		require.NotPanics(t, func() {
			require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
		})
		require.Empty(t, f.store.Snapshot())
		f.requireConsistent(t)
	})

	t.Run("partial record", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(ctx, "token", "tok-9"))

		require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
		require.Empty(t, f.store.Snapshot())
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.store.FailOn("get", "token")

		require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
	})

	t.Run("only once", func(t *testing.T) {
		f := setupTestFixture(t)
		require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
		require.NoError(t, f.store.Set(ctx, "token", "tok-9"))
		require.NoError(t, f.store.Set(ctx, "user", `{"id":"u9"}`))

		require.Equal(t, sessions.Unauthenticated, f.manager.Hydrate(ctx))
		require.Len(t, f.states, 1)
	})
}

func TestManager_LoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, sessions.WithRoutes("/login", "/dashboard"), sessions.WithLoginPath("/v2/login"))
	f.manager.Hydrate(ctx)

	require.NoError(t, f.manager.Login(ctx, "ada@example.com", "secret"))

	require.Equal(t, []string{"/v2/login"}, f.requester.paths)
	require.Equal(t, sessions.Authenticated, f.manager.State())
	require.Equal(t, []string{"/dashboard"}, f.routes)
	require.Equal(t, []sessions.State{sessions.Unauthenticated, sessions.Authenticated}, f.states)

	snapshot := f.store.Snapshot()
	require.Equal(t, "tok-1", snapshot["token"])
	require.JSONEq(t, `{"id":"u1","name":"Ada","email":"ada@example.com","role":"admin","isSuperAdmin":false}`, snapshot["user"])
	f.requireConsistent(t)
}

func TestManager_LoginFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("server message", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Hydrate(ctx)
		f.requester.status, f.requester.body = http.StatusUnauthorized, loginFail

		err := f.manager.Login(ctx, "ada@example.com", "wrong")

		require.EqualError(t, err, "Invalid email or password")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		var loginErr *sessions.LoginError
		require.True(t, errors.As(err, &loginErr))
		require.Equal(t, sessions.Unauthenticated, f.manager.State())
		require.Empty(t, f.store.Snapshot())
		require.Empty(t, f.routes)
	})

	t.Run("generic fallback", func(t *testing.T) {
		f := setupTestFixture(t)
		f.requester.status, f.requester.body = http.StatusBadRequest, `{"success":false}`

		require.EqualError(t, f.manager.Login(ctx, "a", "b"), "Login failed")
	})

	t.Run("success without token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.requester.body = `{"success":true,"data":{"user":{"id":"u1"}}}`

		require.ErrorIs(t, f.manager.Login(ctx, "a", "b"), apperrors.ErrInvalidCredentials)
		require.Empty(t, f.store.Snapshot())
	})

	t.Run("success without user", func(t *testing.T) {
		f := setupTestFixture(t)
		f.requester.body = `{"success":true,"data":{"token":"tok-1"}}`

		require.ErrorIs(t, f.manager.Login(ctx, "a", "b"), apperrors.ErrInvalidCredentials)
		require.Empty(t, f.store.Snapshot())
	})

	t.Run("failure keeps an existing session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Hydrate(ctx)
		require.NoError(t, f.manager.Login(ctx, "a", "b"))
		f.requester.status, f.requester.body = http.StatusUnauthorized, loginFail

		require.Error(t, f.manager.Login(ctx, "a", "wrong"))
		require.Equal(t, sessions.Authenticated, f.manager.State())
		require.Equal(t, "tok-1", f.store.Snapshot()["token"])
	})

	t.Run("persistence failure rolls back", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Hydrate(ctx)
		f.store.FailOn("set", "user")

		err := f.manager.Login(ctx, "a", "b")
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Equal(t, sessions.Unauthenticated, f.manager.State())
		require.Empty(t, f.store.Snapshot())
		f.requireConsistent(t)
	})

	t.Run("failed re-login restores the previous record", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Hydrate(ctx)
		require.NoError(t, f.manager.Login(ctx, "a", "b"))
		f.requester.body = loginOther
		f.store.FailOnce("set", "user")

		err := f.manager.Login(ctx, "b", "c")
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Equal(t, sessions.Authenticated, f.manager.State())
		require.Equal(t, "tok-1", f.manager.Session().Token)
		require.Equal(t, "u1", f.manager.User().ID)
		require.Contains(t, f.store.Snapshot()["user"], `"id":"u1"`)
		f.requireConsistent(t)
	})

	t.Run("failed re-login that cannot restore drops the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Hydrate(ctx)
		require.NoError(t, f.manager.Login(ctx, "a", "b"))
		f.requester.body = loginOther
		f.store.FailOn("set", "user")

		err := f.manager.Login(ctx, "b", "c")
		require.Error(t, err)
		require.Equal(t, sessions.Unauthenticated, f.manager.State())
		require.Nil(t, f.manager.Session())
		require.Empty(t, f.store.Snapshot())
		require.Equal(t, []string{"/", "/login"}, f.routes)
		require.Equal(t, sessions.Unauthenticated, f.states[len(f.states)-1])
		f.requireConsistent(t)
	})
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))

	f.manager.Logout(ctx)
	require.Equal(t, sessions.Unauthenticated, f.manager.State())
	require.Nil(t, f.manager.Session())
	require.Empty(t, f.store.Snapshot())
	require.Equal(t, []string{"/", "/login"}, f.routes)
	f.requireConsistent(t)

	f.manager.Logout(ctx)
	require.Equal(t, []string{"/", "/login"}, f.routes)
	require.Equal(t, []sessions.State{sessions.Unauthenticated, sessions.Authenticated, sessions.Unauthenticated}, f.states)
}

func TestManager_LogoutWhileHydrating(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.Logout(context.Background())
	require.Equal(t, sessions.Unauthenticated, f.manager.State())
}

func TestManager_ExpirySignal(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))

	f.channel.Publish()
	f.channel.Publish()

	require.Equal(t, sessions.Unauthenticated, f.manager.State())
	require.Empty(t, f.store.Snapshot())
	require.Equal(t, []string{"/", "/login"}, f.routes)
	f.requireConsistent(t)
}

func TestManager_LogoutClearFailureStillEndsSession(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))
	f.store.FailOn("delete", "token")

	f.manager.Logout(ctx)

	require.Equal(t, sessions.Unauthenticated, f.manager.State())
	_, err := f.manager.Token()
	require.ErrorIs(t, err, apperrors.ErrNoSession)

	// the user entry is still removed, so what remains is a partial record
	snapshot := f.store.Snapshot()
	require.NotContains(t, snapshot, "user")
	require.Contains(t, snapshot, "token")

	f.store.ClearFailures()
	next, err := sessions.NewManager(f.requester, f.store, f.channel)
	require.NoError(t, err)
	t.Cleanup(next.Close)
	require.Equal(t, sessions.Unauthenticated, next.Hydrate(ctx))
	require.Empty(t, f.store.Snapshot())
}

func TestManager_SessionSequencesStayConsistent(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)

	steps := []func(){
		func() { require.NoError(t, f.manager.Login(ctx, "a", "b")) },
		func() { f.channel.Publish() },
		func() { f.manager.Logout(ctx) },
		func() { require.NoError(t, f.manager.Login(ctx, "a", "b")) },
		func() { require.NoError(t, f.manager.Login(ctx, "a", "b")) },
		func() { f.manager.Logout(ctx) },
		func() { f.channel.Publish() },
	}
	for _, step := range steps {
		step()
		f.requireConsistent(t)
	}
}

func TestManager_SessionIsACopy(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))

	s := f.manager.Session()
	s.User.Role = "technician"
	s.Token = "forged"

	require.Equal(t, "admin", string(f.manager.User().Role))
	tok, err := f.manager.Token()
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
}

func TestManager_Snapshot(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	state, user := f.manager.Snapshot()
	require.Equal(t, sessions.Hydrating, state)
	require.Nil(t, user)

	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))
	state, user = f.manager.Snapshot()
	require.Equal(t, sessions.Authenticated, state)
	require.Equal(t, "u1", user.ID)

	user.Name = "changed"
	require.Equal(t, "Ada", f.manager.User().Name)

	f.manager.Logout(ctx)
	state, user = f.manager.Snapshot()
	require.Equal(t, sessions.Unauthenticated, state)
	require.Nil(t, user)
}

func TestManager_WatchCancel(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	var seen int
	cancel := f.manager.Watch(func(sessions.State) { seen++ })

	f.manager.Hydrate(ctx)
	cancel()
	require.NoError(t, f.manager.Login(ctx, "a", "b"))

	require.Equal(t, 1, seen)
}

func TestManager_CloseUnsubscribes(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx)
	require.NoError(t, f.manager.Login(ctx, "a", "b"))

	f.manager.Close()
	f.manager.Close()
	require.Equal(t, 0, f.channel.Len())

	f.channel.Publish()
	require.Equal(t, sessions.Authenticated, f.manager.State())
}

func TestManager_SessionExpiryPeek(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	f := setupTestFixture(t)
	require.NoError(t, f.store.Set(ctx, "token", signed))
	require.NoError(t, f.store.Set(ctx, "user", `{"id":"u1"}`))
	f.manager.Hydrate(ctx)

	require.True(t, exp.Equal(f.manager.Session().ExpiresAt))
}

func TestPeekExpiry(t *testing.T) {
	_, ok := sessions.PeekExpiry("opaque-token")
	require.False(t, ok)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok = sessions.PeekExpiry(noExp)
	require.False(t, ok)
}
