package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry represents a single cache entry with TTL
type memoryEntry struct {
	key        string
	value      []byte
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *memoryEntry) isExpired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Since(e.insertedAt) > ttl
}

// Memory is an in-memory store with optional LRU bounding and optional TTL.
// A maxSize of zero means unbounded (entries live until Clear or Delete); a
// ttl of zero means entries never expire. Thread-safe via sync.RWMutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int        // Maximum number of entries, 0 = unbounded
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewMemory creates a Memory store with the given bound and TTL.
func NewMemory(maxSize int, ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a value. Expired entries are removed on read.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, false, nil
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(entry.element)
	c.hits++

	return entry.value, true, nil
}

// Set stores a value, evicting the least recently used entry when the
// store is bounded and full.
func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return nil
	}

	if c.maxSize > 0 && c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &memoryEntry{
		key:        key,
		value:      value,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry

	return nil
}

// Delete removes a specific entry.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key)
	return nil
}

// Clear removes all entries from the store.
func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry)
	c.lruList.Init()
	return nil
}

// Len reports the number of live entries.
func (c *Memory) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lruList.Len(), nil
}

// Stats returns cache statistics.
func (c *Memory) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// calculateHitRate calculates the cache hit rate
func (c *Memory) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry removes an entry from the store (must be called with lock held)
func (c *Memory) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *Memory) evictLRU() {
	backElement := c.lruList.Back()
	if backElement != nil {
		key := backElement.Value.(string)
		c.lruList.Remove(backElement)
		delete(c.entries, key)
	}
}

// CleanupExpired removes all expired entries and reports how many were
// dropped. Only meaningful for stores constructed with a TTL.
func (c *Memory) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiredKeys := make([]string, 0)
	for key, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		c.removeEntry(key)
	}

	return len(expiredKeys)
}

// StartCleanupWorker starts a background worker to periodically clean up expired entries
func (c *Memory) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
