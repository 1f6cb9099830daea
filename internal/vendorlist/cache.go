package vendorlist

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "vendor-list"

// Cache owns the process-wide registry snapshot.
//
// Readers always see a complete snapshot: refreshes publish through an
// atomic pointer swap. Concurrent refreshes share one in-flight fetch. A
// failed refresh keeps the previous snapshot; if nothing was ever loaded the
// cache serves an empty snapshot and retries after a backoff.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	retryBackoff time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *Metrics

	group       singleflight.Group
	current     atomic.Pointer[Snapshot]
	lastFailure atomic.Int64
	empty       *Snapshot
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithRetryBackoff sets how long a failed fetch suppresses lazy retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.retryBackoff = d
		}
	}
}

// WithFetchTimeout bounds each outbound fetch, independent of the caller's
// context so one cancelled caller cannot abort a fetch others are waiting on.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates an empty cache. Defaults: 24h TTL, 30s retry backoff,
// 10s fetch timeout.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      fetcher,
		ttl:          24 * time.Hour,
		retryBackoff: 30 * time.Second,
		fetchTimeout: 10 * time.Second,
		now:          time.Now,
		logger:       slog.Default(),
		empty:        Empty(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the snapshot to check against, fetching first when nothing is
// cached or the cached snapshot has outlived the TTL.
func (c *Cache) Get(ctx context.Context) *Snapshot {
	cur := c.current.Load()
	if cur != nil && !c.expired(cur) {
		c.metrics.IncServed("fresh")
		return cur
	}
	if c.inBackoff() {
		return c.serve(cur)
	}
	snap, _ := c.Refresh(ctx)
	return snap
}

// Current returns what Get would serve without triggering a fetch.
func (c *Cache) Current() *Snapshot {
	if cur := c.current.Load(); cur != nil {
		return cur
	}
	return c.empty
}

// Refresh fetches now, joining an in-flight fetch if there is one. It returns
// the snapshot being served afterwards and the fetch error, if any.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.fetch(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return c.serve(c.current.Load()), res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return c.serve(c.current.Load()), ctx.Err()
	}
}

// Run refreshes once immediately and then every TTL until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	_, _ = c.Refresh(ctx)
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = c.Refresh(ctx)
		}
	}
}

func (c *Cache) fetch(ctx context.Context) (*Snapshot, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := c.fetcher.Fetch(fctx)
	elapsed := time.Since(start)
	if err != nil {
		c.lastFailure.Store(c.now().UnixNano())
		outcome := string(CategoryOf(err))
		if outcome == "" {
			outcome = "error"
		}
		c.metrics.ObserveFetch(outcome, elapsed)

		if prev := c.current.Load(); prev != nil {
			c.logger.WarnContext(ctx, "vendor list refresh failed, serving stale snapshot",
				"error", err,
				"vendor_list_version", prev.Version,
				"duration_ms", elapsed.Milliseconds(),
			)
		} else {
			c.logger.ErrorContext(ctx, "vendor list unavailable, serving empty snapshot",
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
		return nil, err
	}

	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = c.now()
	}
	c.current.Store(snap)
	c.lastFailure.Store(0)
	c.metrics.ObserveFetch("success", elapsed)
	c.metrics.SetSnapshot(snap)
	c.logger.InfoContext(ctx, "vendor list loaded",
		"vendor_list_version", snap.Version,
		"vendors", len(snap.Vendors),
		"duration_ms", elapsed.Milliseconds(),
	)
	return snap, nil
}

func (c *Cache) serve(cur *Snapshot) *Snapshot {
	if cur != nil {
		c.metrics.IncServed("stale")
		return cur
	}
	c.metrics.IncServed("empty")
	return c.empty
}

func (c *Cache) expired(s *Snapshot) bool {
	return c.now().Sub(s.FetchedAt) >= c.ttl
}

func (c *Cache) inBackoff() bool {
	last := c.lastFailure.Load()
	if last == 0 {
		return false
	}
	return c.now().Sub(time.Unix(0, last)) < c.retryBackoff
}
