// Package session keeps intake state in process memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

// DefaultTTL matches the lifetime of the authenticated session.
const DefaultTTL = 24 * time.Hour

// MemoryStore is a SessionStore backed by a map.  Entries older than the TTL
// are treated as absent and removed by Sweep.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]pkg.SessionState
	ttl    time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		states: make(map[string]pkg.SessionState),
		ttl:    ttl,
		now:    time.Now,
		log:    logging.NewLogger("session"),
	}
}

func (m *MemoryStore) expired(s pkg.SessionState) bool {
	return m.now().Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) Get(_ context.Context, key string) (pkg.SessionState, bool, error) {
	m.mu.RLock()
	s, ok := m.states[key]
	m.mu.RUnlock()
	if !ok || m.expired(s) {
		return pkg.SessionState{}, false, nil
	}
	return s, true, nil
}

// Put replaces the whole state for key.  A zero UpdatedAt is stamped with
// the current time.
func (m *MemoryStore) Put(_ context.Context, key string, state pkg.SessionState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = m.now()
	}
	m.mu.Lock()
	m.states[key] = state
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, s := range m.states {
		if m.expired(s) {
			delete(m.states, k)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.log.WithField("removed", n).Debug("expired sessions swept")
			}
		}
	}
}
