package jurisdiction

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"tcfgate/pkg/platform/sentinel"
)

// GeoCache stores country codes by IP. Get returns sentinel.ErrNotFound on
// a miss. Caching is an optimization: resolver correctness never depends
// on a hit.
type GeoCache interface {
	Get(ctx context.Context, ip string) (string, error)
	Set(ctx context.Context, ip, country string) error
}

// MemoryGeoCache is a per-process TTL cache.
type MemoryGeoCache struct {
	c *gocache.Cache
}

func NewMemoryGeoCache(ttl time.Duration) *MemoryGeoCache {
	return &MemoryGeoCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryGeoCache) Get(_ context.Context, ip string) (string, error) {
	if v, ok := m.c.Get(ip); ok {
		if country, ok := v.(string); ok {
			return country, nil
		}
	}
	return "", sentinel.ErrNotFound
}

func (m *MemoryGeoCache) Set(_ context.Context, ip, country string) error {
	m.c.SetDefault(ip, country)
	return nil
}

const redisKeyPrefix = "tcfgate:geo:"

// RedisGeoCache shares lookups across replicas.
type RedisGeoCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGeoCache(client redis.UniversalClient, ttl time.Duration) *RedisGeoCache {
	return &RedisGeoCache{client: client, ttl: ttl}
}

func (r *RedisGeoCache) Get(ctx context.Context, ip string) (string, error) {
	country, err := r.client.Get(ctx, redisKeyPrefix+ip).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", errors.Join(sentinel.ErrUnavailable, err)
	}
	return country, nil
}

func (r *RedisGeoCache) Set(ctx context.Context, ip, country string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+ip, country, r.ttl).Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return nil
}

// TieredGeoCache reads the local cache first, then the shared one, and
// backfills the local cache on a shared hit.
type TieredGeoCache struct {
	local  GeoCache
	shared GeoCache
}

func NewTieredGeoCache(local, shared GeoCache) *TieredGeoCache {
	return &TieredGeoCache{local: local, shared: shared}
}

func (t *TieredGeoCache) Get(ctx context.Context, ip string) (string, error) {
	if country, err := t.local.Get(ctx, ip); err == nil {
		return country, nil
	}
	country, err := t.shared.Get(ctx, ip)
	if err != nil {
		return "", err
	}
	_ = t.local.Set(ctx, ip, country)
	return country, nil
}

func (t *TieredGeoCache) Set(ctx context.Context, ip, country string) error {
	_ = t.local.Set(ctx, ip, country)
	return t.shared.Set(ctx, ip, country)
}
