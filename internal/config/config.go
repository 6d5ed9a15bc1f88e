package config

import (
	"os"
	"time"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	GatewayConfig
	SessionConfig
	RouteConfig
	AuthzConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetDataFolder() string
	GetLogLevel() string
}

type GatewayConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetLoginPath() string
	GetExpiredSentinel() string
	GetRateLimitMessage() string
}

type SessionConfig interface {
	GetStoreBackend() StoreBackend
	GetTokenKey() string
	GetUserKey() string
	GetStoreFile() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type RouteConfig interface {
	GetLoginRoute() string
	GetHomeRoute() string
	GetUnauthorizedRoute() string
}

type AuthzConfig interface {
	GetSuperAdminEmails() []string
}

type mainConfig struct {
	EnvVars
	Gateway
	Session
	Routes
	Authz
}

// New returns a Config backed by environment variables and defaults.
func New() Config {
	return newConfig(&values{})
}

// Load returns a Config that also reads a flat YAML file of VARIABLE: value pairs.
// Environment variables take precedence over the file, the file over the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[config.Load] read config file")
	}
	file := make(map[string]string)
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] parse %s: %s", path, err.Error())
	}
	return newConfig(&values{file: file}), nil
}

// FromEnv loads the file named by CONFIG_FILE, if set.
func FromEnv() (Config, error) {
	return Load(os.Getenv(configFileVar))
}

func newConfig(v *values) Config {
	return mainConfig{
		EnvVars: EnvVars{v},
		Gateway: Gateway{v},
		Session: Session{v},
		Routes:  Routes{v},
		Authz:   Authz{v},
	}
}
