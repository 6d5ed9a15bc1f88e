// Package expiry carries the "credential expired" notification from the code that
// detects it (the request gateway) to the code that reacts to it (the session manager).
package expiry

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscriber receives expiry notifications. Implementations must be comparable
// (typically a pointer) so that registration can be deduplicated.
type Subscriber interface {
	CredentialExpired()
}

// Publisher is the side of the channel the gateway depends on.
type Publisher interface {
	Publish()
}

// Channel is a multi-subscriber signal without payload. The zero value is ready to use.
type Channel struct {
	mu          sync.Mutex
	subscribers []Subscriber
}

var _ Publisher = (*Channel)(nil)

// New returns an empty Channel.
func New() *Channel {
	return &Channel{}
}

// Subscribe registers s. Registering the same subscriber twice has no effect.
func (c *Channel) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.subscribers {
		if existing == s {
			return
		}
	}
	c.subscribers = append(c.subscribers, s)
}

// Unsubscribe removes s. Removing an unknown subscriber has no effect.
func (c *Channel) Unsubscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.subscribers {
		if existing == s {
			c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// Publish notifies the current subscribers in subscription order on the calling
// goroutine and returns once all of them have run. Nothing is buffered.
func (c *Channel) Publish() {
	c.mu.Lock()
	subscribers := make([]Subscriber, len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.mu.Unlock()

	log.Debug().Int("subscribers", len(subscribers)).Msg("credential expired")
	for _, s := range subscribers {
		s.CredentialExpired()
	}
}

// Len returns the number of registered subscribers.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}
