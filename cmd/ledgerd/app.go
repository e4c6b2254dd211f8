package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/ledgerops/auth"
	"github.com/jonwraymond/ledgerops/cache"
	"github.com/jonwraymond/ledgerops/config"
	"github.com/jonwraymond/ledgerops/health"
	"github.com/jonwraymond/ledgerops/ledger"
	"github.com/jonwraymond/ledgerops/observe"
	"github.com/jonwraymond/ledgerops/resilience"
	"github.com/jonwraymond/ledgerops/server"
)

type app struct {
	server  *server.Server
	logger  observe.Logger
	closers []func(context.Context) error
}

func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn(ctx, "shutdown step failed", observe.Field{Key: "error", Value: err})
		}
	}
}

// build wires the service from configuration.
func build(ctx context.Context, configPath string) (_ *app, err error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs, err := observe.NewObserver(ctx, observerConfig(cfg, reg))
	if err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	a := &app{logger: mw.Logger()}
	a.closers = append(a.closers, obs.Shutdown)
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	agg := health.NewAggregator(0)
	agg.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	backend, err := a.buildBackend(cfg.Cache, agg)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Guard.Enabled {
		guarded, err := cache.NewGuardedCache(backend, cache.GuardConfig{
			Timeout:      cfg.Cache.Guard.Timeout.Std(),
			MaxFailures:  cfg.Cache.Guard.MaxFailures,
			ResetTimeout: cfg.Cache.Guard.ResetTimeout.Std(),
			OnStateChange: func(from, to resilience.State) {
				a.logger.Warn(context.Background(), "cache circuit changed",
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()},
				)
			},
		})
		if err != nil {
			return nil, err
		}
		agg.Register(health.NewBreakerChecker("cache_circuit", func() string { return guarded.State().String() }))
		backend = guarded
	}

	codec, err := cache.CodecByName(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}
	aside, err := cache.NewAside(backend, cache.Options{
		Codec:    codec,
		Policy:   cache.Policy{DefaultTTL: cfg.Cache.TTL.Std(), MaxTTL: cfg.Cache.MaxTTL.Std()},
		Logger:   a.logger,
		Metrics:  mw.Metrics(),
		Coalesce: cfg.Cache.Coalesce,
	})
	if err != nil {
		return nil, err
	}

	svc, err := ledger.NewService(ledger.NewMemoryStore(), aside, mw, ledger.ServiceConfig{
		TTL:                  cfg.Cache.TTL.Std(),
		BalancesTTL:          cfg.Cache.BalancesTTL.Std(),
		MaxConcurrentQueries: cfg.Store.MaxConcurrentQueries,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.BaseDelay.Std(),
			MaxDelay:     cfg.Retry.MaxDelay.Std(),
			Multiplier:   2,
		},
	})
	if err != nil {
		return nil, err
	}

	var gate *resilience.AdmissionGate
	if cfg.Admission.Enabled {
		gate, err = resilience.NewAdmissionGate(resilience.AdmissionConfig{
			PermitLimit:   cfg.Admission.PermitLimit,
			Window:        cfg.Admission.Window.Std(),
			QueueLimit:    cfg.Admission.QueueLimit,
			MaxWait:       cfg.Admission.MaxWait.Std(),
			MaxPartitions: cfg.Admission.MaxPartitions,
		})
		if err != nil {
			return nil, err
		}
	}

	var authn auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authn = auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}, auth.NewStaticKeyProvider([]byte(cfg.Auth.JWTSecret)))
	}

	a.server, err = server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout.Std(),
		WriteTimeout:    cfg.Server.WriteTimeout.Std(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
	}, server.Deps{
		Service:        svc,
		Gate:           gate,
		Partitioner:    auth.NewPartitioner(authn, auth.PartitionConfig{TrustProxy: cfg.Server.TrustProxy}),
		Health:         agg,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Metrics:        mw.Metrics(),
		Logger:         a.logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// buildBackend constructs the configured cache backend and registers its
// health checker.
func (a *app) buildBackend(cfg config.CacheConfig, agg *health.Aggregator) (cache.Cache, error) {
	redisCache := func() (*cache.RedisCache, error) {
		rc, err := cache.NewRedisCacheFromURL(cfg.Redis.URL, cache.RedisConfig{
			Prefix:       cfg.Redis.Prefix,
			QueryTimeout: cfg.Redis.QueryTimeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		agg.Register(health.NewCacheChecker("cache", rc, 0))
		return rc, nil
	}
	ristretto := func() (*cache.RistrettoCache, error) {
		r, err := cache.NewRistrettoCache(cache.DefaultRistrettoConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return r.Close() })
		return r, nil
	}

	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "ristretto":
		return ristretto()
	case "redis":
		return redisCache()
	case "tiered":
		local, err := ristretto()
		if err != nil {
			return nil, err
		}
		shared, err := redisCache()
		if err != nil {
			return nil, err
		}
		return cache.NewTieredCache(local, shared, cfg.LocalTTL.Std(), cache.WithTieredLogger(a.logger))
	default:
		return nil, errors.New("unknown cache backend " + cfg.Backend)
	}
}

func observerConfig(cfg config.Config, reg prometheus.Registerer) observe.Config {
	enabled := func(exporter string) bool { return exporter != "" && exporter != "none" }
	return observe.Config{
		ServiceName: cfg.Observe.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   enabled(cfg.Observe.TracingExporter),
			Exporter:  cfg.Observe.TracingExporter,
			SamplePct: cfg.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:    enabled(cfg.Observe.MetricsExporter),
			Exporter:   cfg.Observe.MetricsExporter,
			Registerer: reg,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   cfg.Observe.LogLevel,
		},
	}
}
