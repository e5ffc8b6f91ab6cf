package citations

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultTTL is how long a mapping snapshot may be served without a refresh
// attempt.
const DefaultTTL = 5 * time.Minute

// MappingCache holds the current mapping snapshot with its fetch time. A
// lookup past the TTL triggers a synchronous refresh; if the refresh fails
// the stale snapshot is served and the failure logged. Concurrent refreshes
// are not coordinated beyond the snapshot swap itself: the mapping is an
// eventually-consistent external document, so last write wins.
type MappingCache struct {
	fetcher Fetcher
	ttl     time.Duration
	clock   func() time.Time
	Logger  *log.Logger

	mu        sync.Mutex
	snapshot  map[string]FileMapping
	fetchedAt time.Time
}

func NewMappingCache(fetcher Fetcher, ttl time.Duration) *MappingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MappingCache{
		fetcher: fetcher,
		ttl:     ttl,
		clock:   time.Now,
		Logger:  log.New(os.Stdout, "[CITATIONS] ", log.LstdFlags),
	}
}

// WithClock sets the time source. Tests inject a controllable clock here.
func (c *MappingCache) WithClock(clock func() time.Time) *MappingCache {
	c.clock = clock
	return c
}

// Get returns the current snapshot, refreshing first if the TTL elapsed.
// Never returns an error: resolution degrades to an empty mapping instead of
// failing the turn.
func (c *MappingCache) Get(ctx context.Context) map[string]FileMapping {
	c.mu.Lock()
	snapshot := c.snapshot
	stale := snapshot == nil || c.clock().Sub(c.fetchedAt) >= c.ttl
	c.mu.Unlock()

	if !stale {
		return snapshot
	}

	if err := c.Refresh(ctx); err != nil {
		c.Logger.Printf("Mapping refresh failed, serving previous snapshot: %v", err)
		return snapshot
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Refresh fetches the mapping unconditionally and swaps the snapshot.
func (c *MappingCache) Refresh(ctx context.Context) error {
	mapping, err := c.fetcher.FetchMapping(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snapshot = mapping
	c.fetchedAt = c.clock()
	c.mu.Unlock()

	c.Logger.Printf("Loaded %d file mappings", len(mapping))
	return nil
}

// Invalidate clears the cache so the next lookup must refresh.
func (c *MappingCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
