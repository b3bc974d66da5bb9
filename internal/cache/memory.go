package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process TTL cache: a map of expiry-stamped entries
// behind an RWMutex. Expired entries are dropped lazily on read and
// opportunistically pruned on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is the clock; tests swap it out.
	now func() time.Time

	hits   prometheus.Counter
	misses prometheus.Counter
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty Memory cache and registers its hit/miss
// counters with reg.
func NewMemory(reg prometheus.Registerer) *Memory {
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trove",
		Name:      "cache_hits_total",
		Help:      "Render cache hits",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trove",
		Name:      "cache_misses_total",
		Help:      "Render cache misses",
	})
	reg.MustRegister(hits, misses)

	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		hits:    hits,
		misses:  misses,
	}
}

// Get returns the live value for key, if any.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || m.now().After(e.expires) {
		if ok {
			m.mu.Lock()
			// Re-check under the write lock; a concurrent Set may have
			// refreshed the entry.
			if cur, still := m.entries[key]; still && m.now().After(cur.expires) {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		}
		m.misses.Inc()
		return nil, false
	}

	m.hits.Inc()
	return e.value, true
}

// Set stores value under key for ttl and prunes any already-expired
// entries while it holds the write lock.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = entry{value: value, expires: now.Add(ttl)}
}

// Invalidate drops key immediately.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
