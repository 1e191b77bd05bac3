package grant

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// activeGrantCache memoizes the set of organizations a patient has active
// grants for. Entries expire after the configured TTL, which bounds how
// long a revocation can remain visible as active to readers that hit the
// cache. Revoke and Activate invalidate the patient's entry immediately,
// so the TTL only matters across processes.
type activeGrantCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	orgs      map[uuid.UUID]bool
	fetchedAt time.Time
}

func newActiveGrantCache(ttl time.Duration) *activeGrantCache {
	return &activeGrantCache{
		ttl:     ttl,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

func (c *activeGrantCache) get(patientID uuid.UUID) (map[uuid.UUID]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[patientID]
	if !ok || time.Since(e.fetchedAt) > c.ttl {
		return nil, false
	}
	return e.orgs, true
}

func (c *activeGrantCache) put(patientID uuid.UUID, orgs map[uuid.UUID]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[patientID] = cacheEntry{orgs: orgs, fetchedAt: time.Now()}
}

func (c *activeGrantCache) invalidate(patientID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, patientID)
}
