//go:build integration

package jurisdiction_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tcfgate/internal/jurisdiction"
	"tcfgate/internal/platform/config"
	platformredis "tcfgate/internal/platform/redis"
	"tcfgate/pkg/platform/sentinel"
	"tcfgate/pkg/testutil/containers"
)

type RedisGeoCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisGeoCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisGeoCacheSuite))
}

func (s *RedisGeoCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisGeoCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGeoCacheSuite) TestRoundTripAndExpiry() {
	ctx := context.Background()
	cache := jurisdiction.NewRedisGeoCache(s.redis.Client, time.Second)

	_, err := cache.Get(ctx, "203.0.113.7")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(cache.Set(ctx, "203.0.113.7", "FR"))
	country, err := cache.Get(ctx, "203.0.113.7")
	s.Require().NoError(err)
	s.Equal("FR", country)

	s.Eventually(func() bool {
		_, err := cache.Get(ctx, "203.0.113.7")
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisGeoCacheSuite) TestReplicasShareLookups() {
	ctx := context.Background()

	var calls atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"country_code":"de"}`))
	}))
	s.T().Cleanup(geo.Close)

	client, err := platformredis.New(ctx, config.RedisConfig{URL: s.redis.URL})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = client.Close() })

	newReplica := func() *jurisdiction.Resolver {
		shared := jurisdiction.NewRedisGeoCache(client.Client, time.Minute)
		return jurisdiction.NewResolver(
			jurisdiction.NewIPAPILocator(geo.URL, geo.Client()),
			jurisdiction.WithCache(jurisdiction.NewTieredGeoCache(jurisdiction.NewMemoryGeoCache(time.Minute), shared)),
		)
	}

	first := newReplica().Resolve(ctx, "198.51.100.20", "")
	second := newReplica().Resolve(ctx, "198.51.100.20", "")

	s.Equal(jurisdiction.ReasonGeoMatch, first.Reason)
	s.Equal(jurisdiction.ReasonGeoMatch, second.Reason)
	s.Equal("DE", second.Country)
	s.Equal(int32(1), calls.Load())
}
