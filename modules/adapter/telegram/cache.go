package telegram

import (
	"sync"
	"time"
)

const (
	sessionMessageTTL = 600 * time.Second
	// Telegram download links live for one hour.
	fileLinkTTL = 3540 * time.Second
)

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

// ttlCache is a map whose entries expire. Expired entries are invisible to
// Get and removed by Sweep.
type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[K]ttlEntry[V]
	now     func() time.Time
}

func newTTLCache[K comparable, V any](ttl time.Duration) *ttlCache[K, V] {
	return &ttlCache[K, V]{ttl: ttl, entries: make(map[K]ttlEntry[V]), now: time.Now}
}

func (c *ttlCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, expires: c.now().Add(c.ttl)}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many it dropped.
func (c *ttlCache[K, V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Caches holds the adapter's in-memory lookups.
type Caches struct {
	// sessions maps a session ID to the last message seen or sent in it.
	sessions *ttlCache[string, int64]
	// fileLinks maps a file_id to its download URL.
	fileLinks *ttlCache[string, string]
}

// NewCaches creates empty caches with the standard TTLs.
func NewCaches() *Caches {
	return &Caches{
		sessions:  newTTLCache[string, int64](sessionMessageTTL),
		fileLinks: newTTLCache[string, string](fileLinkTTL),
	}
}

// LastMessageID returns the last message ID recorded for session.
func (c *Caches) LastMessageID(session string) (int64, bool) {
	return c.sessions.Get(session)
}

// Sweep drops expired entries from every cache.
func (c *Caches) Sweep() int {
	return c.sessions.Sweep() + c.fileLinks.Sweep()
}
