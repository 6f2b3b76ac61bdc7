package caching

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/dtnitsch/lead-crawler/internal/common"
)

const keyPrefix = "page:"

// Memcached is the subset of *memcache.Client the cache uses.
type Memcached interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Close() error
}

type MemcachedCache struct {
	client Memcached
	ttl    time.Duration
	logger *slog.Logger
}

// NewMemcachedCache connects to servers and pings them once.
func NewMemcachedCache(servers []string, ttl time.Duration, logger *slog.Logger) (*MemcachedCache, error) {
	ss := new(memcache.ServerList)
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("failed to set memcached servers: %w", err)
	}
	client := memcache.NewFromSelector(ss)
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("connection to memcached failed: %w", err)
	}
	return NewMemcachedCacheWithClient(client, ttl, logger), nil
}

func NewMemcachedCacheWithClient(client Memcached, ttl time.Duration, logger *slog.Logger) *MemcachedCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemcachedCache{client: client, ttl: ttl, logger: logger}
}

func (mc *MemcachedCache) Get(url string) ([]byte, bool) {
	key := hashURL(url)
	it, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			mc.logger.Error("failed to read page cache.", slog.String("key", key), slog.String("err", err.Error()))
		}
		return nil, false
	}
	if len(it.Value) == 0 {
		return nil, false
	}
	return it.Value, true
}

func (mc *MemcachedCache) Set(url string, data []byte) error {
	err := mc.client.Set(&memcache.Item{
		Key:        hashURL(url),
		Value:      data,
		Expiration: int32(mc.ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to write to memcached: %w", err)
	}
	return nil
}

func (mc *MemcachedCache) Close() error {
	return mc.client.Close()
}

// memcached keys are limited to 250 bytes, so URLs are hashed.
func hashURL(url string) string {
	return keyPrefix + common.ContentHash([]byte(url))
}
