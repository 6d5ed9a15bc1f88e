package sessions

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-client/expiry"
	"github.com/jrsteele09/go-auth-client/gateway"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultLoginPath    = "/auth/login"
	defaultLoginRoute   = "/login"
	defaultHomeRoute    = "/"
	genericLoginFailure = "Login failed"
)

// Requester is the part of the gateway the Manager needs to log in.
type Requester interface {
	Post(ctx context.Context, path string, body any) *gateway.Response
}

// ExpirySource is where the Manager listens for expired credentials.
type ExpirySource interface {
	Subscribe(s expiry.Subscriber)
	Unsubscribe(s expiry.Subscriber)
}

// Navigator receives the navigation the Manager signals after login and logout.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

// LoginError is returned by Login when the backend rejects the credentials.
// Error returns the server message unchanged.
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return apperrors.ErrInvalidCredentials
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

type watcher struct {
	id int
	fn func(State)
}

// Manager is the only writer of the session and its persisted mirror.
// It is safe for concurrent use; watchers, the navigator and the store are
// never called while another goroutine can observe a half-applied transition.
type Manager struct {
	requester  Requester
	store      Store
	expiry     ExpirySource
	keys       Keys
	loginPath  string
	loginRoute string
	homeRoute  string

	lock      sync.Mutex
	state     State
	session   *Session
	navigator Navigator
	watchers  []watcher
	nextID    int
	closed    bool
}

var (
	_ expiry.Subscriber  = (*Manager)(nil)
	_ oauth2.TokenSource = (*Manager)(nil)
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNavigator sets the navigator signalled after login and logout.
func WithNavigator(n Navigator) ManagerOption {
	return func(m *Manager) {
		m.navigator = n
	}
}

// WithKeys sets the persisted entry names.
func WithKeys(keys Keys) ManagerOption {
	return func(m *Manager) {
		m.keys = keys
	}
}

// WithLoginPath sets the backend authentication endpoint.
func WithLoginPath(path string) ManagerOption {
	return func(m *Manager) {
		m.loginPath = path
	}
}

// WithRoutes sets the login route and the route navigated to after login.
func WithRoutes(loginRoute, homeRoute string) ManagerOption {
	return func(m *Manager) {
		m.loginRoute = loginRoute
		m.homeRoute = homeRoute
	}
}

// NewManager creates a Manager in the Hydrating state and subscribes it to
// expirySource for its lifetime. Call Hydrate to load the persisted session.
func NewManager(requester Requester, store Store, expirySource ExpirySource, options ...ManagerOption) (*Manager, error) {
	if requester == nil {
		return nil, errors.New("[NewManager] requester is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if expirySource == nil {
		return nil, errors.New("[NewManager] expiry source is required")
	}

	m := &Manager{
		requester:  requester,
		store:      store,
		expiry:     expirySource,
		keys:       DefaultKeys,
		loginPath:  defaultLoginPath,
		loginRoute: defaultLoginRoute,
		homeRoute:  defaultHomeRoute,
		state:      Hydrating,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.keys.Token == "" || m.keys.User == "" || m.keys.Token == m.keys.User {
		return nil, errors.New("[NewManager] token and user keys must be distinct and non-empty")
	}

	expirySource.Subscribe(m)
	return m, nil
}

// Hydrate loads the persisted session. A missing, partial or unreadable record
// leaves the Manager Unauthenticated; Hydrate never fails. It only has an effect
// while the Manager is still Hydrating.
func (m *Manager) Hydrate(ctx context.Context) State {
	m.lock.Lock()
	if m.state != Hydrating {
		state := m.state
		m.lock.Unlock()
		return state
	}

	session, err := m.readPersisted(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Discarding persisted session")
		m.clearPersisted(ctx)
		m.state = Unauthenticated
	case session == nil:
		m.state = Unauthenticated
	default:
		m.session = session
		m.state = Authenticated
	}
	state := m.state
	watchers := m.snapshotWatchers()
	m.lock.Unlock()

	event := log.Info().Str("state", state.String())
	if session != nil && err == nil {
		event = event.Str("user_id", session.User.ID)
		if !session.ExpiresAt.IsZero() {
			event = event.Time("expires_at", session.ExpiresAt)
		}
	}
	event.Msg("Session hydrated")

	notify(watchers, state)
	return state
}

// readPersisted returns nil, nil when there is no complete record.
func (m *Manager) readPersisted(ctx context.Context) (*Session, error) {
	token, hasToken, err := m.store.Get(ctx, m.keys.Token)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreUnavailable, "[readPersisted] token: %s", err.Error())
	}
	rawUser, hasUser, err := m.store.Get(ctx, m.keys.User)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreUnavailable, "[readPersisted] user: %s", err.Error())
	}

	if !hasToken && !hasUser {
		return nil, nil
	}
	if !hasToken || !hasUser || strings.TrimSpace(token) == "" {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptSession, "[readPersisted] partial record")
	}

	user, err := users.Decode([]byte(rawUser))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptSession, "[readPersisted] %s", err.Error())
	}
	return newSession(token, user), nil
}

// Login exchanges credentials for a session. A failure envelope is returned as a
// *LoginError carrying the server message and leaves the session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	resp := m.requester.Post(ctx, m.loginPath, loginRequest{Email: email, Password: password})
	env := gateway.SafeDecode(resp)
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = genericLoginFailure
		}
		log.Info().Int("status", resp.Status).Str("reason", msg).Msg("Login rejected")
		return &LoginError{Message: msg}
	}

	var payload loginPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || strings.TrimSpace(payload.Token) == "" {
		log.Warn().Int("status", resp.Status).Msg("Login response carried no token")
		return &LoginError{Message: genericLoginFailure}
	}
	user, err := users.Decode(payload.User)
	if err != nil {
		log.Warn().Err(err).Msg("Login response carried an invalid user")
		return &LoginError{Message: genericLoginFailure}
	}
	rawUser, err := user.Encode()
	if err != nil {
		return errors.Wrap(err, "[Login] encode user")
	}

	m.lock.Lock()
	if err := m.writePersisted(ctx, payload.Token, string(rawUser)); err != nil {
		if m.restorePersisted(ctx) {
			m.lock.Unlock()
			return errors.Wrap(err, "[Login] persist session")
		}
		m.session = nil
		m.state = Unauthenticated
		watchers := m.snapshotWatchers()
		m.lock.Unlock()

		log.Warn().Err(err).Msg("Session dropped after a failed write")
		notify(watchers, Unauthenticated)
		m.navigate(m.loginRoute)
		return errors.Wrap(err, "[Login] persist session")
	}
	session := newSession(payload.Token, user)
	m.session = session
	m.state = Authenticated
	watchers := m.snapshotWatchers()
	m.lock.Unlock()

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("Logged in")
	notify(watchers, Authenticated)
	m.navigate(m.homeRoute)
	return nil
}

func (m *Manager) writePersisted(ctx context.Context, token, rawUser string) error {
	if err := m.store.Set(ctx, m.keys.Token, token); err != nil {
		return errors.Wrap(err, "[writePersisted] token")
	}
	if err := m.store.Set(ctx, m.keys.User, rawUser); err != nil {
		return errors.Wrap(err, "[writePersisted] user")
	}
	return nil
}

// restorePersisted puts back the record of the current session after a failed
// write. When that is not possible both entries are cleared and it returns
// false; the caller must then drop the in-memory session. Called with the lock held.
func (m *Manager) restorePersisted(ctx context.Context) bool {
	if m.session == nil {
		m.clearPersisted(ctx)
		return true
	}
	rawUser, err := m.session.User.Encode()
	if err == nil {
		err = m.writePersisted(ctx, m.session.Token, string(rawUser))
	}
	if err != nil {
		log.Err(err).Msg("Failed to restore persisted session")
		m.clearPersisted(ctx)
		return false
	}
	return true
}

// clearPersisted removes both entries. Each delete is attempted even when the
// other fails, and a failed delete is retried once. Anything left behind is a
// partial record, which the next Hydrate discards.
func (m *Manager) clearPersisted(ctx context.Context) {
	for _, key := range []string{m.keys.User, m.keys.Token} {
		err := m.store.Delete(ctx, key)
		if err != nil {
			err = m.store.Delete(ctx, key)
		}
		if err != nil {
			log.Err(err).Str("key", key).Msg("Failed to clear persisted session entry")
		}
	}
}

// Logout tears the session down. Calling it without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.teardown(ctx, "logout")
}

// CredentialExpired tears the session down in response to an expiry signal.
// Redundant signals are ignored.
func (m *Manager) CredentialExpired() {
	m.teardown(context.Background(), "expired")
}

func (m *Manager) teardown(ctx context.Context, reason string) {
	m.lock.Lock()
	if m.state == Unauthenticated {
		m.lock.Unlock()
		return
	}
	m.clearPersisted(ctx)
	var userID string
	if m.session != nil {
		userID = m.session.User.ID
	}
	m.session = nil
	m.state = Unauthenticated
	watchers := m.snapshotWatchers()
	m.lock.Unlock()

	log.Info().Str("reason", reason).Str("user_id", userID).Msg("Session ended")
	notify(watchers, Unauthenticated)
	m.navigate(m.loginRoute)
}

// Token implements oauth2.TokenSource. It reads the current session on every call
// and returns ErrNoSession when there is none.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return nil, apperrors.ErrNoSession
	}
	return &oauth2.Token{AccessToken: m.session.Token, TokenType: "Bearer"}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.session.clone()
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *users.User {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return nil
	}
	return m.session.User.Clone()
}

// Snapshot returns the state and a copy of the user from a single read, so the
// two always describe the same moment.
func (m *Manager) Snapshot() (State, *users.User) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return m.state, nil
	}
	return m.state, m.session.User.Clone()
}

// Watch registers fn to be called with the new state after every transition.
// The returned function removes the registration.
func (m *Manager) Watch(fn func(State)) func() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.nextID++
	id := m.nextID
	m.watchers = append(m.watchers, watcher{id: id, fn: fn})
	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		for i, w := range m.watchers {
			if w.id == id {
				m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
				return
			}
		}
	}
}

// Close unsubscribes from expiry signals. The session itself is left as is.
func (m *Manager) Close() {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return
	}
	m.closed = true
	m.lock.Unlock()
	m.expiry.Unsubscribe(m)
}

// SetNavigator replaces the navigator, for composition roots where the
// navigator itself watches the Manager.
func (m *Manager) SetNavigator(n Navigator) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.navigator = n
}

func (m *Manager) navigate(route string) {
	m.lock.Lock()
	n := m.navigator
	m.lock.Unlock()
	if n != nil && route != "" {
		n.Navigate(route)
	}
}

func (m *Manager) snapshotWatchers() []func(State) {
	fns := make([]func(State), len(m.watchers))
	for i, w := range m.watchers {
		fns[i] = w.fn
	}
	return fns
}

func notify(watchers []func(State), state State) {
	for _, fn := range watchers {
		fn(state)
	}
}
