// Package console is the composition root: it builds the expiry channel, the
// gateway, the session manager, the authorization policy and the route gate,
// and connects them so that none of them reaches for another through globals.
package console

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authz"
	"github.com/jrsteele09/go-auth-client/expiry"
	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/routegate"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/filestore"
	"github.com/jrsteele09/go-auth-client/sessions/memstore"
	"github.com/jrsteele09/go-auth-client/sessions/redisstore"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Console struct {
	Config   config.Config
	Expiry   *expiry.Channel
	Gateway  *gateway.Gateway
	Sessions *sessions.Manager
	Policy   *authz.Policy
	Gate     *routegate.Gate

	closers []func() error
}

type options struct {
	store      sessions.Store
	httpClient *http.Client
	location   string
}

// Option configures New.
type Option func(*options)

// WithStore uses store instead of the configured backend.
func WithStore(store sessions.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithHTTPClient sets the client the gateway uses.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLocation sets the location the route gate starts at. Defaults to the home route.
func WithLocation(location string) Option {
	return func(o *options) {
		o.location = location
	}
}

// New wires the components and hydrates the session from the persisted store.
func New(ctx context.Context, c config.Config, opts ...Option) (*Console, error) {
	o := options{location: c.GetHomeRoute()}
	for _, opt := range opts {
		opt(&o)
	}

	con := &Console{Config: c, Expiry: expiry.New()}

	store := o.store
	if store == nil {
		s, closer, err := NewStore(c)
		if err != nil {
			return nil, errors.Wrap(err, "[console.New] session store")
		}
		store = s
		if closer != nil {
			con.closers = append(con.closers, closer)
		}
	}

	var gwOpts []gateway.Option
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	con.Gateway = gateway.NewFromConfig(c, con.Expiry, gwOpts...)

	manager, err := sessions.NewManager(con.Gateway, store, con.Expiry,
		sessions.WithKeys(sessions.Keys{Token: c.GetTokenKey(), User: c.GetUserKey()}),
		sessions.WithLoginPath(c.GetLoginPath()),
		sessions.WithRoutes(c.GetLoginRoute(), c.GetHomeRoute()),
	)
	if err != nil {
		con.Close()
		return nil, errors.Wrap(err, "[console.New] session manager")
	}
	con.Sessions = manager
	con.Gateway.SetTokenSource(manager)

	con.Policy = authz.NewFromConfig(c)
	con.Gate = routegate.New(manager, con.Policy, routegate.RoutesFromConfig(c), o.location)
	manager.SetNavigator(con.Gate)

	manager.Hydrate(ctx)
	return con, nil
}

// NewStore builds the configured persisted store. The returned closer, if any,
// releases the store's connections.
func NewStore(c config.SessionConfig) (sessions.Store, func() error, error) {
	switch c.GetStoreBackend() {
	case config.StoreMemory:
		return memstore.New(), nil, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})
		return redisstore.New(rdb, c.GetRedisPrefix()), rdb.Close, nil
	case config.StoreFile:
		return filestore.New(c.GetStoreFile()), nil, nil
	}
	return nil, nil, errors.Errorf("[NewStore] unknown store backend %q", c.GetStoreBackend())
}

// Login logs in through the session manager.
func (con *Console) Login(ctx context.Context, email, password string) error {
	return con.Sessions.Login(ctx, email, password)
}

// Logout ends the session.
func (con *Console) Logout(ctx context.Context) {
	con.Sessions.Logout(ctx)
}

// Capabilities returns the current user's capabilities.
func (con *Console) Capabilities() authz.Capabilities {
	return con.Policy.Capabilities(con.Sessions.User())
}

// Visit asks the route gate for location.
func (con *Console) Visit(location string) routegate.Decision {
	return con.Gate.Visit(location)
}

// Close tears the wiring down. The persisted session is kept.
func (con *Console) Close() {
	if con.Gate != nil {
		con.Gate.Close()
	}
	if con.Sessions != nil {
		con.Sessions.Close()
	}
	for _, closer := range con.closers {
		if err := closer(); err != nil {
			log.Err(err).Msg("Failed to close session store")
		}
	}
	con.closers = nil
}
