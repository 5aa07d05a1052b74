// Package cache provides the pluggable stores backing the filter's
// process-wide caches: classification results keyed by raw user-agent
// string, and any other byte-valued lookaside data. Stores are injected at
// construction so tests run against isolated instances instead of shared
// hidden state.
package cache

import "context"

// Store is a byte-valued key/value store with wholesale invalidation.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value for key, if any.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry owned by the store.
	Clear(ctx context.Context) error

	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
}

// Stats represents cache statistics.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// StatsProvider is implemented by stores that track hit/miss counters.
type StatsProvider interface {
	Stats() Stats
}
