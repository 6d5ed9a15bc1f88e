package config

import (
	"strings"
	"time"
)

const (
	apiBaseURLVar       = "API_BASE_URL"
	requestTimeoutVar   = "REQUEST_TIMEOUT"
	loginPathVar        = "LOGIN_PATH"
	expiredSentinelVar  = "EXPIRED_SENTINEL"
	rateLimitMessageVar = "RATE_LIMIT_MESSAGE"

	defaultRequestTimeout = 30 * time.Second
)

type Gateway struct {
	v *values
}

var _ GatewayConfig = Gateway{}

// GetAPIBaseURL returns the backend base URL without a trailing slash.
func (g Gateway) GetAPIBaseURL() string {
	return strings.TrimRight(g.v.get(apiBaseURLVar, "http://localhost:8080/api"), "/")
}

func (g Gateway) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(g.v.get(requestTimeoutVar, defaultRequestTimeout.String()))
	if err != nil || d <= 0 {
		return defaultRequestTimeout
	}
	return d
}

func (g Gateway) GetLoginPath() string {
	return g.v.get(loginPathVar, "/auth/login")
}

// GetExpiredSentinel is the error value a 401 body carries when the token has expired.
func (g Gateway) GetExpiredSentinel() string {
	return g.v.get(expiredSentinelVar, "Token expired")
}

func (g Gateway) GetRateLimitMessage() string {
	return g.v.get(rateLimitMessageVar, "Too many requests. Please try again later.")
}
