package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// DefaultMaxSize bounds the in-process cache when max_size is not set
const DefaultMaxSize = 1000

// MemoryCache is a bounded in-process LRU with per-entry expiry
type MemoryCache struct {
	mu    sync.Mutex
	store *lru.Cache[string, *types.CacheEntry]
	now   func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewMemoryCache creates a memory cache. A positive sweep interval starts a
// background loop that drops expired entries early; reads check expiry regardless.
func NewMemoryCache(maxSize int, sweep time.Duration) (*MemoryCache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	store, err := lru.New[string, *types.CacheEntry](maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	c := &MemoryCache{
		store: store,
		now:   time.Now,
	}
	if sweep > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(sweep)
	}

	log.Debug().Int("max_size", maxSize).Dur("sweep", sweep).Msg("Memory cache initialized")
	return c, nil
}

// Get returns a copy of a live entry. Expired entries are removed on the spot.
func (c *MemoryCache) Get(_ context.Context, key string) (*types.ProviderResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(c.now()) {
		c.store.Remove(key)
		return nil, false, nil
	}
	return entry.Value.Clone(), true, nil
}

// Put stores a copy of value for ttl
func (c *MemoryCache) Put(_ context.Context, key string, value *types.ProviderResult, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Add(key, newEntry(key, value, ttl, c.now()))
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	return c.store.Len()
}

// Sweep removes expired entries and returns how many were dropped
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.store.Keys() {
		if entry, ok := c.store.Peek(key); ok && entry.Expired(now) {
			c.store.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("Expired cache entries swept")
			}
		}
	}
}

// Close stops the sweep loop
func (c *MemoryCache) Close() error {
	if c.stop != nil {
		close(c.stop)
		<-c.done
		c.stop = nil
	}
	return nil
}
