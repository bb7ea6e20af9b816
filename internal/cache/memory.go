package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCountCache is a process-local CountCache, used when no Redis
// address is configured
type MemoryCountCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is swappable for tests
	now func() time.Time
}

type memoryEntry struct {
	total     int
	expiresAt time.Time
}

// NewMemoryCountCache creates an in-memory count cache
func NewMemoryCountCache(ttl time.Duration) *MemoryCountCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCountCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached total if present and unexpired
func (c *MemoryCountCache) Get(_ context.Context, resourceType string) (int, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key(resourceType)]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.total, true, nil
}

// Set stores the total
func (c *MemoryCountCache) Set(_ context.Context, resourceType string, total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(resourceType)] = memoryEntry{
		total:     total,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Invalidate drops the entry
func (c *MemoryCountCache) Invalidate(_ context.Context, resourceType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key(resourceType))
	return nil
}
