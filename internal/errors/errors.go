package errors

import (
	"errors"
	"fmt"
)

// Error kinds for the session and authorization control plane
var (
	// Login errors
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Session errors
	ErrNoSession         = errors.New("no session")
	ErrCorruptSession    = errors.New("corrupt persisted session")
	ErrCredentialExpired = errors.New("credential expired")

	// Transport errors, absorbed into envelopes by the gateway
	ErrNetworkFailure     = errors.New("network failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrMalformedResponse  = errors.New("malformed response body")
	ErrUnsupportedPayload = errors.New("unsupported request payload")

	// Persistence errors
	ErrStoreUnavailable = errors.New("session store unavailable")

	// General errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
