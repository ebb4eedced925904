// Package cache stores provider results under exact request keys with a TTL.
// Every backend checks ExpiresAt on read, so an entry is never served past its
// expiry even if the backend has not evicted it yet.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Backend names accepted by cache.backend
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Cache is a TTL response cache
type Cache interface {
	Get(ctx context.Context, key string) (*types.ProviderResult, bool, error)
	Put(ctx context.Context, key string, value *types.ProviderResult, ttl time.Duration) error
	Len() int
	Close() error
}

// Key derives the cache key for a request sent to one provider.
// normalized must already be folded with Fold where free text is involved.
func Key(kind types.RequestKind, provider types.ProviderKind, normalized interface{}) string {
	data, err := json.Marshal(struct {
		Kind     types.RequestKind  `json:"kind"`
		Provider types.ProviderKind `json:"provider"`
		Request  interface{}        `json:"request"`
	}{kind, provider, normalized})
	if err != nil {
		// Unmarshalable input still needs a stable key
		data = []byte(fmt.Sprintf("%s|%s|%v", kind, provider, normalized))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fold lower-cases s and collapses runs of whitespace
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// newEntry wraps a result for storage
func newEntry(key string, value *types.ProviderResult, ttl time.Duration, now time.Time) *types.CacheEntry {
	return &types.CacheEntry{
		Key:       key,
		Value:     value.Clone(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// New creates the backend named by cfg.Backend
func New(cfg types.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(cfg.MaxSize, cfg.SweepInterval)
	case BackendBadger:
		return NewBadgerCache(cfg.Badger, cfg.SweepInterval)
	case BackendRedis:
		return NewRedisCache(cfg.Redis), nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) (*types.ProviderResult, bool, error) { return nil, false, nil }

func (Nop) Put(context.Context, string, *types.ProviderResult, time.Duration) error { return nil }

func (Nop) Len() int { return 0 }

func (Nop) Close() error { return nil }
