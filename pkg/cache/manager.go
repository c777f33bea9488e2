package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when NewManager is given a non-positive TTL.
const DefaultTTL = 24 * time.Hour

var (
	// ErrCacheMiss means no usable answer is cached for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry means the stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores definitive VIES answers in Redis, one key per VAT number.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager. It panics on a nil client.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{redis: redisClient, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime given to new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get returns the entry cached under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues(resultMiss).Inc()
		return nil, ErrCacheMiss
	case err != nil:
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(data, entry); err != nil {
		cacheErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, key, err)
	}

	// Redis expiry normally removes the key first; this covers clock skew
	// between writer and reader.
	if entry.IsExpired(m.now()) {
		_ = m.Delete(ctx, key)
		cacheLookups.WithLabelValues(resultMiss).Inc()
		return nil, ErrCacheMiss
	}

	cacheLookups.WithLabelValues(resultHit).Inc()
	return entry, nil
}

// Load returns base completed with the answer cached for its record.
func (m *Manager) Load(ctx context.Context, base vat.LookupResult) (vat.LookupResult, error) {
	entry, err := m.Get(ctx, KeyFor(base.Record))
	if err != nil {
		return base, err
	}
	return entry.Apply(base), nil
}

// Set writes entry under key with a Redis expiry at entry.Expires. A zero
// Expires is filled from the manager TTL; an entry already past its expiry
// is not written.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	if entry.Expires.IsZero() {
		base := entry.CachedAt
		if base.IsZero() {
			base = m.now()
		}
		entry.Expires = base.Add(m.ttl)
	}
	if entry.TTL(m.now()) == 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	err = m.redis.SetArgs(ctx, key.String(), data, redis.SetArgs{ExpireAt: entry.Expires}).Err()
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Store caches result when it is definitive and reports whether it did.
func (m *Manager) Store(ctx context.Context, result vat.LookupResult) (bool, error) {
	if !Cacheable(result) {
		cacheWrites.WithLabelValues(resultSkipped).Inc()
		return false, nil
	}
	if err := m.Set(ctx, KeyFor(result.Record), EntryFromResult(result, m.now())); err != nil {
		return false, err
	}
	cacheWrites.WithLabelValues(resultStored).Inc()
	return true, nil
}

// Delete removes the entry cached under key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
