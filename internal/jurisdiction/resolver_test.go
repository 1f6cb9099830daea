package jurisdiction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"tcfgate/pkg/platform/circuit"
	"tcfgate/pkg/platform/sentinel"
	"tcfgate/pkg/requestcontext"
)

type stubLocator struct {
	calls   atomic.Int32
	country string
	err     error
	block   bool
	delay   time.Duration
	gate    chan struct{}
}

func (l *stubLocator) Lookup(ctx context.Context, ip string) (string, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if l.err != nil {
		return "", l.err
	}
	return l.country, nil
}

// slowCache takes a while to acknowledge writes, like a remote store.
type slowCache struct {
	mu       sync.Mutex
	latency  time.Duration
	stored   map[string]string
	writeErr error
}

func (c *slowCache) Get(context.Context, string) (string, error) {
	return "", sentinel.ErrNotFound
}

func (c *slowCache) Set(ctx context.Context, ip, country string) error {
	select {
	case <-time.After(c.latency):
	case <-ctx.Done():
		c.mu.Lock()
		c.writeErr = ctx.Err()
		c.mu.Unlock()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored == nil {
		c.stored = map[string]string{}
	}
	c.stored[ip] = country
	return nil
}

type ResolverSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	locator *stubLocator
	metrics *Metrics
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.locator = &stubLocator{country: "US"}
	s.metrics = NewMetrics(prometheus.NewRegistry())
}

func (s *ResolverSuite) resolver(opts ...Option) *Resolver {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithTimeout(50 * time.Millisecond),
	}
	return NewResolver(s.locator, append(base, opts...)...)
}

func (s *ResolverSuite) TestDomainMatchSkipsLookup() {
	res := s.resolver().Resolve(s.ctx, "", "example.de")

	s.True(res.Applies)
	s.Equal(ReasonDomainMatch, res.Reason)
	s.Equal(s.now, res.EvaluatedAt)
	s.EqualValues(0, s.locator.calls.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("domain_match")))
}

func (s *ResolverSuite) TestDomainMatchWinsOverIP() {
	res := s.resolver().Resolve(s.ctx, "8.8.8.8", "shop.example.FR")

	s.Equal(ReasonDomainMatch, res.Reason)
	s.EqualValues(0, s.locator.calls.Load())
}

func (s *ResolverSuite) TestNoIPDefaultsToApplies() {
	res := s.resolver().Resolve(s.ctx, "", "example.com")

	s.True(res.Applies)
	s.Equal(ReasonDefaultAssumed, res.Reason)
	s.Empty(res.Error)
	s.EqualValues(0, s.locator.calls.Load())
}

func (s *ResolverSuite) TestGeoMatch() {
	s.locator.country = "DE"

	res := s.resolver().Resolve(s.ctx, "85.214.132.117", "example.com")

	s.True(res.Applies)
	s.Equal(ReasonGeoMatch, res.Reason)
	s.Equal("DE", res.Country)
}

func (s *ResolverSuite) TestNonRegulatedCountryStillDefaultsToApplies() {
	res := s.resolver().Resolve(s.ctx, "8.8.8.8", "example.com")

	s.True(res.Applies)
	s.Equal(ReasonDefaultAssumed, res.Reason)
	s.Equal("US", res.Country)
}

func (s *ResolverSuite) TestTimeoutFailsOpen() {
	s.locator.block = true

	start := time.Now()
	res := s.resolver().Resolve(s.ctx, "8.8.8.8", "example.com")

	s.Less(time.Since(start), time.Second)
	s.True(res.Applies)
	s.Equal(ReasonLookupErrorDefaulted, res.Reason)
	s.Contains(res.Error, "timeout")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Lookups.WithLabelValues("timeout")))
}

func (s *ResolverSuite) TestLookupErrorFailsOpen() {
	s.locator.err = &LookupError{Category: CategoryStatus, Message: "unexpected status 429"}

	res := s.resolver().Resolve(s.ctx, "8.8.8.8", "")

	s.True(res.Applies)
	s.Equal(ReasonLookupErrorDefaulted, res.Reason)
	s.NotEmpty(res.Error)
}

func (s *ResolverSuite) TestInvalidIPFailsOpenWithoutLookup() {
	res := s.resolver().Resolve(s.ctx, "not-an-ip", "example.com")

	s.Equal(ReasonLookupErrorDefaulted, res.Reason)
	s.True(res.Applies)
	s.EqualValues(0, s.locator.calls.Load())
}

func (s *ResolverSuite) TestCacheHitAvoidsLookup() {
	s.locator.country = "IE"
	cache := NewMemoryGeoCache(time.Minute)
	r := s.resolver(WithCache(cache))

	first := r.Resolve(s.ctx, "87.32.0.1", "")
	second := r.Resolve(s.ctx, "87.32.0.1", "")

	s.Equal(ReasonGeoMatch, first.Reason)
	s.Equal(ReasonGeoMatch, second.Reason)
	s.EqualValues(1, s.locator.calls.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheResults.WithLabelValues("hit")))
}

func (s *ResolverSuite) TestSlowLookupStillCachesResult() {
	s.locator.country = "DE"
	s.locator.delay = 40 * time.Millisecond
	cache := &slowCache{latency: 30 * time.Millisecond}

	res := s.resolver(WithCache(cache)).Resolve(s.ctx, "192.0.2.10", "")

	s.Equal(ReasonGeoMatch, res.Reason)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	s.NoError(cache.writeErr)
	s.Equal("DE", cache.stored["192.0.2.10"])
}

func (s *ResolverSuite) TestFailedLookupIsNotCached() {
	s.locator.err = errors.New("connection reset")
	cache := NewMemoryGeoCache(time.Minute)
	r := s.resolver(WithCache(cache))

	r.Resolve(s.ctx, "8.8.4.4", "")
	r.Resolve(s.ctx, "8.8.4.4", "")

	s.EqualValues(2, s.locator.calls.Load())
}

func (s *ResolverSuite) TestBreakerOpensAndSkipsLookups() {
	s.locator.err = errors.New("connection refused")
	breaker := circuit.New("geo", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	r := s.resolver(WithBreaker(breaker))

	r.Resolve(s.ctx, "8.8.8.8", "")
	r.Resolve(s.ctx, "8.8.8.8", "")
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitOpen))

	res := r.Resolve(s.ctx, "8.8.8.8", "")

	s.Equal(ReasonLookupErrorDefaulted, res.Reason)
	s.Contains(res.Error, "circuit_open")
	s.EqualValues(2, s.locator.calls.Load())
}

func (s *ResolverSuite) TestBreakerClosesAfterSuccessfulProbes() {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	breaker := circuit.New("geo",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(clock),
	)
	s.locator.err = errors.New("down")
	r := s.resolver(WithBreaker(breaker))
	r.Resolve(s.ctx, "8.8.8.8", "")
	s.Require().True(breaker.IsOpen())

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	s.locator.err = nil
	s.locator.country = "NL"

	res := r.Resolve(s.ctx, "8.8.8.8", "")
	s.Equal(ReasonGeoMatch, res.Reason)
	s.False(breaker.IsOpen())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitOpen))
}

func (s *ResolverSuite) TestConcurrentLookupsForSameIPShareOneCall() {
	s.locator.country = "DE"
	s.locator.gate = make(chan struct{})
	r := s.resolver(WithTimeout(time.Second))

	const callers = 16
	var started, wg sync.WaitGroup
	results := make([]Result, callers)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i] = r.Resolve(s.ctx, "85.214.132.117", "")
		}(i)
	}
	started.Wait()
	s.Eventually(func() bool { return s.locator.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(s.locator.gate)
	wg.Wait()

	s.EqualValues(1, s.locator.calls.Load())
	for _, res := range results {
		s.Equal(ReasonGeoMatch, res.Reason)
	}
}

func (s *ResolverSuite) TestNilLocatorDefaults() {
	r := NewResolver(nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := r.Resolve(s.ctx, "8.8.8.8", "example.com")
	s.Equal(ReasonDefaultAssumed, res.Reason)
	s.True(res.Applies)
}
