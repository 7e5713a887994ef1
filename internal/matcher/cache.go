package matcher

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
)

// Key identifies one source item on one destination.
type Key struct {
	Destination string
	Kind        models.ItemKind
	SourceID    string
}

// Entry is a remembered match.
type Entry struct {
	DestinationID string
	Confidence    models.Confidence
}

// Cache stores successful matches.
type Cache interface {
	Lookup(ctx context.Context, key Key) (Entry, bool, error)
	Store(ctx context.Context, key Key, entry Entry) error
}

// FailureCache stores misses with exponential backoff.
type FailureCache interface {
	// ShouldSkip reports whether key failed recently enough that searching again is pointless.
	ShouldSkip(ctx context.Context, key Key, now time.Time) (bool, error)
	RecordFailure(ctx context.Context, key Key, reason string, now time.Time) error
	ClearFailure(ctx context.Context, key Key) error
}

const (
	failureBase      = 7 * 24 * time.Hour
	failureMaxFactor = 4
)

// FailureBackoff returns the wait after the count-th consecutive miss: 7d, 14d, 28d, then 28d.
func FailureBackoff(count int) time.Duration {
	if count < 1 {
		count = 1
	}
	factor := 1
	for i := 1; i < count && factor < failureMaxFactor; i++ {
		factor *= 2
	}
	return failureBase * time.Duration(min(factor, failureMaxFactor))
}

// Stats summarizes a cache.
type Stats struct {
	Hits     int
	Misses   int
	Entries  int
	Failures int
}

type failure struct {
	count     int
	reason    string
	nextRetry time.Time
}

// MemoryCache implements [Cache] and [FailureCache] in process memory.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[Key]Entry
	failures map[Key]failure
	hits     int
	misses   int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[Key]Entry),
		failures: make(map[Key]failure),
	}
}

func (c *MemoryCache) Lookup(_ context.Context, key Key) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok, nil
}

func (c *MemoryCache) Store(_ context.Context, key Key, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

func (c *MemoryCache) ShouldSkip(_ context.Context, key Key, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.failures[key]
	return ok && now.Before(f.nextRetry), nil
}

func (c *MemoryCache) RecordFailure(_ context.Context, key Key, reason string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.failures[key]
	f.count++
	f.reason = reason
	f.nextRetry = now.Add(FailureBackoff(f.count))
	c.failures[key] = f
	return nil
}

func (c *MemoryCache) ClearFailure(_ context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, key)
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries), Failures: len(c.failures)}
}
