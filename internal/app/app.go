package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/api"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storefront"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the background
// loops, and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Kind),
		zap.String("catalog", cfg.Catalog.Source),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Stores: carts and logins, coupon rules, rate limit windows.
	st, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.Close()

	// Catalog.
	src, closeSource, err := openSource(m, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeSource()

	cat := storefront.NewCatalog(src, product.NewNormalizer(cfg.ProductKeywords()), lg.Named("catalog"))
	healthSvc.AddReadinessCheck("catalog", time.Second, health.ConditionCheck(cat.Loaded, "catalog not loaded"))
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cat.Refresh(initCtx, ""); err != nil {
		// The periodic refresh retries; until then readiness fails.
		lg.Warn("Initial catalog load failed", zap.Error(err))
	}
	cancel()

	// Sessions.
	registry, err := storefront.NewRegistry(storefront.Options{
		Catalog: cat,
		Store:   st.kv,
		Coupons: st.coupons,
		Policy:  cfg.SessionPolicy(),
		Logger:  lg.Named("storefront"),
		Meter:   m.MeterProvider().Meter("storefront"),
	})
	if err != nil {
		return errors.Wrap(err, "create session registry")
	}
	defer registry.Close()

	// HTTP.
	var limiter httpmiddleware.Limiter
	var localLimiter *httpmiddleware.WindowLimiter
	if cfg.RateLimit.Max > 0 {
		if cfg.RateLimit.Distributed {
			limiter = st.rateLimiter(cfg.RateLimit)
		} else {
			localLimiter = httpmiddleware.NewWindowLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
			limiter = localLimiter
		}
	}
	handler := newHandler(ctx, cfg, handlerDeps{
		health:   healthSvc,
		registry: registry,
		limiter:  limiter,
		tracers:  m.TracerProvider(),
		meters:   m.MeterProvider(),
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gctx, 10*time.Second)
	})
	if cfg.Catalog.RefreshInterval > 0 {
		g.Go(func() error {
			return cat.Run(gctx, cfg.Catalog.RefreshInterval)
		})
	}
	g.Go(func() error {
		return registry.Run(gctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	})
	if localLimiter != nil {
		g.Go(func() error {
			return localLimiter.Run(gctx)
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

type handlerDeps struct {
	health   *health.Health
	registry *storefront.Registry
	// limiter is nil when rate limiting is disabled.
	limiter httpmiddleware.Limiter
	tracers trace.TracerProvider
	meters  metric.MeterProvider
}

// newHandler mounts the probes and the API and wraps them in the middleware
// chain, outermost first.
func newHandler(ctx context.Context, cfg *Config, deps handlerDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", deps.health.LiveEndpoint)
	mux.HandleFunc("/readyz", deps.health.ReadyEndpoint)
	api.NewHandler(deps.registry).Register(mux)

	middlewares := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", api.SessionHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{api.SessionHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
	}
	if deps.limiter != nil {
		middlewares = append(middlewares, httpmiddleware.RateLimit(deps.limiter, nil))
	}
	middlewares = append(middlewares,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront", deps.tracers, deps.meters),
		httpmiddleware.LogRequests(),
	)
	return httpmiddleware.Wrap(mux, middlewares...)
}

// backendTransport traces and meters outgoing catalog requests.
func backendTransport(m *app.Telemetry) http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)
}
