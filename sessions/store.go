package sessions

import "context"

// Store is the persisted mirror of the session: two independent string entries,
// the raw token and the JSON user record. Only the Manager writes to it.
type Store interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set creates or replaces the value
	Set(ctx context.Context, key, value string) error

	// Delete removes the key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// Keys names the two persisted entries.
type Keys struct {
	Token string
	User  string
}

// DefaultKeys are the entry names used when none are configured.
var DefaultKeys = Keys{Token: "token", User: "user"}
