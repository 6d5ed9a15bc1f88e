package storefakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/memstore"
	"github.com/pkg/errors"
)

var _ sessions.Store = (*FakeStore)(nil)

// ErrInjected is returned by operations armed with FailOn.
var ErrInjected = errors.New("injected store failure")

// FakeStore is an in-memory Store whose operations can be made to fail.
type FakeStore struct {
	mem  *memstore.Store
	fail map[string]int // "op:key" -> remaining failures, -1 for always
	lock sync.Mutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		mem:  memstore.New(),
		fail: make(map[string]int),
	}
}

// FailOn makes op ("get", "set" or "delete") fail for key until ClearFailures.
func (s *FakeStore) FailOn(op, key string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail[op+":"+key] = -1
}

// FailOnce makes the next op on key fail.
func (s *FakeStore) FailOnce(op, key string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail[op+":"+key] = 1
}

func (s *FakeStore) ClearFailures() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail = make(map[string]int)
}

func (s *FakeStore) failing(op, key string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	k := op + ":" + key
	switch n := s.fail[k]; {
	case n < 0:
		return true
	case n > 0:
		if n == 1 {
			delete(s.fail, k)
		} else {
			s.fail[k] = n - 1
		}
		return true
	}
	return false
}

func (s *FakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failing("get", key) {
		return "", false, ErrInjected
	}
	return s.mem.Get(ctx, key)
}

func (s *FakeStore) Set(ctx context.Context, key, value string) error {
	if s.failing("set", key) {
		return ErrInjected
	}
	return s.mem.Set(ctx, key, value)
}

func (s *FakeStore) Delete(ctx context.Context, key string) error {
	if s.failing("delete", key) {
		return ErrInjected
	}
	return s.mem.Delete(ctx, key)
}

// Snapshot returns a copy of every stored entry.
func (s *FakeStore) Snapshot() map[string]string {
	return s.mem.Entries()
}
