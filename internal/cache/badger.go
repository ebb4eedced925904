package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const badgerPrefix = "result:"

// BadgerCache persists results in an embedded BadgerDB so they survive restarts
type BadgerCache struct {
	db   *badgerdb.DB
	path string
	now  func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewBadgerCache opens the database. A positive gc interval runs value log GC
// in the background for on-disk databases.
func NewBadgerCache(cfg types.BadgerConfig, gc time.Duration) (*BadgerCache, error) {
	opts := badgerdb.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else if cfg.Path == "" {
		return nil, fmt.Errorf("badger cache requires a path or in_memory")
	}
	opts.Logger = nil // badger logs through its own logger otherwise

	opts.ValueLogFileSize = 64 << 20
	opts.NumVersionsToKeep = 1
	opts.CompactL0OnClose = true

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	log.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("BadgerDB cache initialized")

	c := &BadgerCache{
		db:   db,
		path: cfg.Path,
		now:  time.Now,
	}
	if gc > 0 && !cfg.InMemory {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.gcLoop(gc)
	}
	return c, nil
}

// Get returns a live entry
func (c *BadgerCache) Get(_ context.Context, key string) (*types.ProviderResult, bool, error) {
	var entry types.CacheEntry
	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	// Badger expiry is second-granular; the stored deadline is authoritative
	if entry.Expired(c.now()) || entry.Value == nil {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Put stores value with a native TTL
func (c *BadgerCache) Put(_ context.Context, key string, value *types.ProviderResult, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(newEntry(key, value, ttl, c.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry([]byte(badgerPrefix+key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Len counts entries badger still considers live
func (c *BadgerCache) Len() int {
	count := 0
	c.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

// Stats returns database statistics
func (c *BadgerCache) Stats() map[string]interface{} {
	lsm, vlog := c.db.Size()

	return map[string]interface{}{
		"path":       c.path,
		"entries":    c.Len(),
		"lsm_size":   lsm,
		"vlog_size":  vlog,
		"total_size": lsm + vlog,
	}
}

// RunGC triggers value log garbage collection
func (c *BadgerCache) RunGC() error {
	err := c.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
		return fmt.Errorf("gc failed: %w", err)
	}
	return nil
}

func (c *BadgerCache) gcLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.RunGC(); err != nil {
				log.Warn().Err(err).Msg("BadgerDB GC failed")
			}
		}
	}
}

// Close stops GC and closes the database
func (c *BadgerCache) Close() error {
	if c.stop != nil {
		close(c.stop)
		<-c.done
		c.stop = nil
	}
	log.Info().Msg("Closing BadgerDB cache")
	return c.db.Close()
}
