package gateway

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ServiceMedia is the service name of the *MediaStore.
const ServiceMedia = "gateway.media"

type mediaEntry struct {
	path    string
	expires time.Time
}

// MediaStore publishes local files under GET /media/{id} so a remote API
// can fetch them by URL. Entries expire after a TTL.
type MediaStore struct {
	mu      sync.RWMutex
	entries map[string]mediaEntry
	now     func() time.Time
}

// NewMediaStore creates an empty store.
func NewMediaStore() *MediaStore {
	return &MediaStore{entries: make(map[string]mediaEntry), now: time.Now}
}

// Publish exposes path for ttl and returns the ID to put in the URL.
func (s *MediaStore) Publish(path string, ttl time.Duration) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = mediaEntry{path: path, expires: s.now().Add(ttl)}
	return id
}

// Len returns the number of live entries.
func (s *MediaStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *MediaStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// ServeHTTP serves the file published under the {id} URL parameter.
func (s *MediaStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expires) {
		http.NotFound(w, r)
		return
	}

	if _, err := os.Stat(e.path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, e.path)
}
