package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultMemoryEntries is the memory layer size used when none is given.
const DefaultMemoryEntries = 256

// Manager handles caching operations over a memory layer and an optional
// Redis layer. It is safe for concurrent use.
type Manager struct {
	memory *lru.Cache[string, *CacheEntry]
	redis  *redis.Client
}

// NewManager creates a cache manager holding up to memoryEntries responses in
// memory. redisClient may be nil, in which case only the memory layer is used.
func NewManager(memoryEntries int, redisClient *redis.Client) (*Manager, error) {
	if memoryEntries <= 0 {
		memoryEntries = DefaultMemoryEntries
	}
	memory, err := lru.NewWithEvict[string, *CacheEntry](memoryEntries, func(string, *CacheEntry) {
		CacheEntries.WithLabelValues("memory").Dec()
	})
	if err != nil {
		return nil, fmt.Errorf("create memory layer: %w", err)
	}
	return &Manager{
		memory: memory,
		redis:  redisClient,
	}, nil
}

// HasRedis reports whether the shared Redis layer is configured.
func (m *Manager) HasRedis() bool {
	return m.redis != nil
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if no layer holds an unexpired entry.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok {
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry.Clone(), nil
		}
		m.memory.Remove(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.remember(cacheKey, &entry)

	return entry.Clone(), nil
}

// Set stores a cache entry in every layer, expiring with the entry's Expires field.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()
	m.remember(cacheKey, entry.Clone())

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry from every layer.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL moves the expiry of an existing entry, typically after a 304
// response that carried a fresh Expires header.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = newExpires

	return m.Set(ctx, key, entry)
}

// Len returns the number of entries held in the memory layer.
func (m *Manager) Len() int {
	return m.memory.Len()
}

func (m *Manager) remember(cacheKey string, entry *CacheEntry) {
	if existed, _ := m.memory.ContainsOrAdd(cacheKey, entry); existed {
		m.memory.Add(cacheKey, entry)
		return
	}
	CacheEntries.WithLabelValues("memory").Inc()
}
