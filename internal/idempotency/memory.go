package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	result     []byte
	processing bool
	expiresAt  time.Time
}

// MemoryCache is a process-local Cache for single-instance deployments and
// tests. Expiry is consulted on read; a background sweep reclaims memory for
// keys that are never read again.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}

	return c
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *MemoryCache) Get(_ context.Context, requestID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[requestID]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}

	if entry.processing {
		return nil, false, ErrInProgress
	}

	return entry.result, true, nil
}

func (c *MemoryCache) BeginProcessing(_ context.Context, requestID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[requestID]
	if ok && !c.now().After(entry.expiresAt) {
		return false, nil
	}

	c.entries[requestID] = memoryEntry{
		processing: true,
		expiresAt:  c.now().Add(ttl),
	}

	return true, nil
}

func (c *MemoryCache) Store(_ context.Context, requestID string, result []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[requestID] = memoryEntry{
		result:    result,
		expiresAt: c.now().Add(ttl),
	}

	return nil
}

func (c *MemoryCache) Release(_ context.Context, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, requestID)

	return nil
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
