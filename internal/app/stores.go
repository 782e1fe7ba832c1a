package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/client/backend"
	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/domain/kv"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storage/memory"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	storeredis "github.com/xenking/kart-storefront/internal/storage/redis"
	"github.com/xenking/kart-storefront/internal/storage/snapshot"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

type stores struct {
	kv      kv.Store
	coupons coupon.Repository
	pool    *pgxpool.Pool
	redis   *redis.Client
	prefix  string
}

// openStores connects the configured session store. Coupon rules come from
// Postgres whenever a database URL is set, regardless of the session store.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (_ *stores, rerr error) {
	st := &stores{prefix: cfg.Redis.Prefix}
	defer func() {
		if rerr != nil {
			st.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		st.pool = pool
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
		st.coupons = postgres.NewCouponRepository(pool)
	} else {
		lg.Warn("No database configured, coupons are disabled")
		st.coupons = coupon.NewStaticRepository()
	}

	switch cfg.Store.Kind {
	case StoreRedis:
		st.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := storeredis.New(st.redis, cfg.Redis.Prefix, cfg.Redis.TTL)
		if err := s.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		h.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(s))
		st.kv = s
	case StorePostgres:
		st.kv = postgres.NewKVStore(st.pool)
	default:
		st.kv = memory.New()
	}
	return st, nil
}

// rateLimiter shares cfg's window across instances through Redis.
func (s *stores) rateLimiter(cfg RateLimitConfig) httpmiddleware.Limiter {
	return storeredis.NewLimiter(s.redis, s.prefix+"ratelimit:", cfg.Max, cfg.Window)
}

func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// openSource returns the configured catalog source and its cleanup.
func openSource(m *app.Telemetry, lg *zap.Logger, cfg *Config, h *health.Health) (product.Source, func(), error) {
	switch cfg.Catalog.Source {
	case SourceSnapshot:
		src, err := snapshot.Open(cfg.Catalog.SnapshotPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open catalog snapshot")
		}
		lg.Info("Serving catalog snapshot",
			zap.String("path", cfg.Catalog.SnapshotPath),
			zap.Time("created_at", src.CreatedAt()),
		)
		return src, func() {}, nil
	default:
		c := backend.New(cfg.Backend, backendTransport(m), lg.Named("backend"))
		h.AddReadinessCheck("backend", cfg.Backend.Timeout, health.PingCheck(c))
		return c, func() { _ = c.Close() }, nil
	}
}
