package monitor

import (
	"sync"
	"time"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// SeenRegistry remembers which item fingerprints a monitor has already handled.
// It is process-local; the article store's URL check is the durable dedup.
type SeenRegistry struct {
	mu   sync.RWMutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewSeenRegistry creates a registry. A zero ttl keeps entries for the process lifetime.
func NewSeenRegistry(ttl time.Duration) *SeenRegistry {
	return &SeenRegistry{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsSeen returns true if the URL (after canonicalization) has been seen before.
func (r *SeenRegistry) IsSeen(rawURL string) bool {
	fp := types.Fingerprint(rawURL)

	r.mu.RLock()
	defer r.mu.RUnlock()
	first, ok := r.seen[fp]
	if !ok {
		return false
	}
	return r.ttl == 0 || r.now().Sub(first) < r.ttl
}

// MarkSeen records a URL. The first-seen time of a known URL is preserved.
func (r *SeenRegistry) MarkSeen(rawURL string) {
	fp := types.Fingerprint(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.seen[fp]; ok && (r.ttl == 0 || r.now().Sub(first) < r.ttl) {
		return
	}
	r.seen[fp] = r.now()
}

// FirstSeen returns when the URL was first recorded.
func (r *SeenRegistry) FirstSeen(rawURL string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.seen[types.Fingerprint(rawURL)]
	return t, ok
}

// Prune drops expired entries and returns how many were removed. No-op without a TTL.
func (r *SeenRegistry) Prune() int {
	if r.ttl == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	now := r.now()
	for fp, first := range r.seen {
		if now.Sub(first) >= r.ttl {
			delete(r.seen, fp)
			removed++
		}
	}
	return removed
}

// Count returns the number of fingerprints held.
func (r *SeenRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seen)
}

// Reset clears all fingerprints.
func (r *SeenRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = make(map[string]time.Time)
}
