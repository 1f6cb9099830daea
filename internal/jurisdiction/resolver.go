// Package jurisdiction decides whether the privacy regime applies to a
// request. A domain suffix check runs first; an IP geolocation lookup is the
// fallback. Every path that cannot prove otherwise answers "applies".
package jurisdiction

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tcfgate/pkg/platform/circuit"
	"tcfgate/pkg/platform/sentinel"
	"tcfgate/pkg/requestcontext"
)

const cacheWriteTimeout = 500 * time.Millisecond

// Resolver combines the domain and geolocation signals. It is safe for
// concurrent use.
type Resolver struct {
	locator Locator
	cache   GeoCache
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
	group   singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables IP lookup caching.
func WithCache(c GeoCache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithBreaker guards the locator with a circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Resolver) { r.breaker = b }
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. A nil locator disables the geolocation
// signal. Default lookup timeout is 2s.
func NewResolver(locator Locator, opts ...Option) *Resolver {
	r := &Resolver{
		locator: locator,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides applicability for a caller IP and site domain; either may
// be empty. It never returns Applies=false for a failed or missing signal.
func (r *Resolver) Resolve(ctx context.Context, ip, domain string) Result {
	now := requestcontext.Now(ctx)

	if IsRegulatedDomain(domain) {
		return r.decide(newResult(ReasonDomainMatch, now))
	}

	ip = strings.TrimSpace(ip)
	if ip == "" || r.locator == nil {
		return r.decide(newResult(ReasonDefaultAssumed, now))
	}

	country, err := r.country(ctx, ip)
	if err != nil {
		res := newResult(ReasonLookupErrorDefaulted, now)
		res.Error = err.Error()
		r.logger.DebugContext(ctx, "geolocation unavailable, assuming regime applies",
			"request_id", requestcontext.RequestID(ctx),
			"category", string(LookupCategoryOf(err)),
			"error", err,
		)
		return r.decide(res)
	}

	reason := ReasonDefaultAssumed
	if IsRegulatedCountry(country) {
		reason = ReasonGeoMatch
	}
	res := newResult(reason, now)
	res.Country = country
	return r.decide(res)
}

func (r *Resolver) decide(res Result) Result {
	r.metrics.IncDecision(res.Reason)
	return res
}

// country resolves ip through the cache, then the locator. Concurrent
// lookups for the same IP share one outbound call.
func (r *Resolver) country(ctx context.Context, ip string) (string, error) {
	if net.ParseIP(ip) == nil {
		return "", &LookupError{Category: CategoryInvalidIP, Message: "not an IP address: " + ip}
	}

	if r.cache != nil {
		country, err := r.cache.Get(ctx, ip)
		switch {
		case err == nil:
			r.metrics.IncCache("hit")
			return country, nil
		case errors.Is(err, sentinel.ErrNotFound):
			r.metrics.IncCache("miss")
		default:
			r.metrics.IncCache("error")
			r.logger.WarnContext(ctx, "geo cache read failed", "error", err)
		}
	}

	if r.breaker != nil && !r.breaker.Allow() {
		r.metrics.ObserveLookup(string(CategoryCircuitOpen), 0)
		return "", &LookupError{Category: CategoryCircuitOpen, Message: "geolocation circuit open"}
	}

	ch := r.group.DoChan(ip, func() (any, error) {
		return r.lookup(ctx, ip)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &LookupError{Category: CategoryTimeout, Message: "caller gave up", Err: ctx.Err()}
	}
}

func (r *Resolver) lookup(ctx context.Context, ip string) (string, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	country, err := r.locator.Lookup(lctx, ip)
	elapsed := time.Since(start)

	if err != nil {
		if lctx.Err() != nil && LookupCategoryOf(err) != CategoryTimeout {
			err = &LookupError{Category: CategoryTimeout, Message: "lookup timed out", Err: err}
		}
		var le *LookupError
		if !errors.As(err, &le) {
			err = &LookupError{Category: CategoryNetwork, Message: "lookup failed", Err: err}
			errors.As(err, &le)
		}
		r.metrics.ObserveLookup(string(le.Category), elapsed)
		if le.countsAsOutage() {
			r.recordFailure(ctx)
		}
		return "", err
	}

	r.metrics.ObserveLookup("success", elapsed)
	r.recordSuccess(ctx)
	r.store(ctx, ip, country)
	return country, nil
}

// store writes a resolved country with its own deadline; the lookup budget
// may already be spent.
func (r *Resolver) store(ctx context.Context, ip, country string) {
	if r.cache == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if err := r.cache.Set(wctx, ip, country); err != nil {
		r.logger.WarnContext(ctx, "geo cache write failed", "error", err)
	}
}

func (r *Resolver) recordFailure(ctx context.Context) {
	if r.breaker == nil {
		return
	}
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.metrics.SetCircuitOpen(true)
		r.logger.WarnContext(ctx, "geolocation circuit opened", "breaker", r.breaker.Name())
	}
}

func (r *Resolver) recordSuccess(ctx context.Context) {
	if r.breaker == nil {
		return
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.metrics.SetCircuitOpen(false)
		r.logger.InfoContext(ctx, "geolocation circuit closed", "breaker", r.breaker.Name())
	}
}
