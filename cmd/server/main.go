package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	consenthandler "tcfgate/internal/consent/handler"
	consentmetrics "tcfgate/internal/consent/metrics"
	consentservice "tcfgate/internal/consent/service"
	"tcfgate/internal/jurisdiction"
	jurisdictionhandler "tcfgate/internal/jurisdiction/handler"
	"tcfgate/internal/platform/config"
	"tcfgate/internal/platform/httpserver"
	"tcfgate/internal/platform/logger"
	"tcfgate/internal/platform/metrics"
	platformredis "tcfgate/internal/platform/redis"
	httptransport "tcfgate/internal/transport/http"
	"tcfgate/internal/vendorlist"
	"tcfgate/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if cfg.IsProduction() && slices.Contains(cfg.AllowedOrigins, "*") {
		log.Warn("CORS allows any origin in production")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)

	vendors := buildVendorCache(cfg, log, reg)
	resolver, closeRedis := buildResolver(ctx, cfg, log, reg)
	defer closeRedis()

	consentSvc := consentservice.New(vendors, consentConfig(cfg.CMP),
		consentservice.WithLogger(log),
		consentservice.WithMetrics(consentmetrics.New(reg)),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Version:        cfg.Version,
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       reg,
	},
		consenthandler.New(consentSvc, log, httpMetrics, cfg.RequestTimeout),
		jurisdictionhandler.New(resolver, log, httpMetrics, cfg.RequestTimeout),
	)

	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout+5*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return vendors.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting tcfgate",
			"addr", cfg.Addr,
			"environment", cfg.Environment,
			"version", cfg.Version,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// consentConfig maps the issuer settings onto the service config.
func consentConfig(cmp config.CMPConfig) consentservice.Config {
	out := consentservice.DefaultConfig()
	out.CmpID = cmp.ID
	out.CmpVersion = cmp.Version
	out.ConsentScreen = cmp.ConsentScreen
	out.ConsentLanguage = cmp.ConsentLanguage
	out.PublisherCountry = cmp.PublisherCountry
	return out
}

func buildVendorCache(cfg config.Server, log *slog.Logger, reg prometheus.Registerer) *vendorlist.Cache {
	fetcher := vendorlist.NewHTTPFetcher(cfg.VendorList.URL, &http.Client{}, cfg.VendorList.Timeout)
	return vendorlist.NewCache(fetcher,
		vendorlist.WithTTL(cfg.VendorList.TTL),
		vendorlist.WithFetchTimeout(cfg.VendorList.Timeout),
		vendorlist.WithLogger(log),
		vendorlist.WithMetrics(vendorlist.NewMetrics(reg)),
	)
}

// buildResolver wires the geolocation path. Redis is optional: without it,
// or when it cannot be reached at startup, lookups are cached in process only.
func buildResolver(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (*jurisdiction.Resolver, func()) {
	var cache jurisdiction.GeoCache = jurisdiction.NewMemoryGeoCache(cfg.Geo.CacheTTL)
	closeFn := func() {}

	client, err := platformredis.New(ctx, cfg.Redis)
	switch {
	case err != nil:
		log.Warn("redis unavailable, using in-process geo cache", "error", err)
	case client != nil:
		cache = jurisdiction.NewTieredGeoCache(cache, jurisdiction.NewRedisGeoCache(client.Client, cfg.Geo.CacheTTL))
		closeFn = func() {
			if err := client.Close(); err != nil {
				log.Warn("failed to close redis client", "error", err)
			}
		}
		log.Info("redis geo cache enabled")
	}

	jm := jurisdiction.NewMetrics(reg)
	resolver := jurisdiction.NewResolver(
		jurisdiction.NewIPAPILocator(cfg.Geo.URL, &http.Client{}),
		jurisdiction.WithCache(cache),
		jurisdiction.WithBreaker(circuit.New("geolocation",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
			circuit.WithCooldown(30*time.Second),
		)),
		jurisdiction.WithTimeout(cfg.Geo.Timeout),
		jurisdiction.WithLogger(log),
		jurisdiction.WithMetrics(jm),
	)
	return resolver, closeFn
}
