package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/client/backend"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Catalog sources.
const (
	SourceBackend  = "backend"
	SourceSnapshot = "snapshot"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Backend     backend.Config
	Catalog     CatalogConfig
	Store       StoreConfig
	Redis       RedisConfig
	Session     SessionConfig
	Keywords    KeywordsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CatalogConfig selects where the catalog comes from.
type CatalogConfig struct {
	Source          string        `default:"backend" usage:"Catalog source: backend or snapshot"`
	SnapshotPath    string        `default:"catalog.json.gz" usage:"Snapshot file for the snapshot source" flag:"catalog-snapshot"`
	RefreshInterval time.Duration `default:"5m" usage:"Catalog refresh interval, 0 disables periodic refresh"`
}

// StoreConfig selects the cart and login store.
type StoreConfig struct {
	Kind string `default:"memory" usage:"Session store: memory, redis or postgres" flag:"store"`
}

// RedisConfig configures the Redis session store and rate limiter.
type RedisConfig struct {
	Addr     string        `default:"localhost:6379" usage:"Redis address" flag:"redis-addr"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	Prefix   string        `default:"storefront:" usage:"Key prefix"`
	TTL      time.Duration `default:"720h" usage:"Expiry of stored carts and logins, 0 keeps them forever"`
}

// SessionConfig controls the login window and idle session eviction.
type SessionConfig struct {
	Window        time.Duration `default:"30m" usage:"Login validity window"`
	IdleTimeout   time.Duration `default:"1h" usage:"Drop in-memory sessions idle for this long"`
	SweepInterval time.Duration `default:"5m" usage:"How often idle sessions are swept"`
}

// KeywordsConfig lists the substrings that derive dietary and featured flags.
type KeywordsConfig struct {
	Vegan      []string `default:"vegan,vegana,vegano"`
	GlutenFree []string `default:"tacc,gluten,celiac,celíaco,celiaco"`
	Featured   []string `default:"pride,rainbow,rainbow-es"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// Distributed shares the limit across instances through Redis.
	Distributed bool `default:"false" usage:"Keep rate limit windows in Redis" flag:"rate-limit-redis"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations that the loader cannot.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres store: set STOREFRONT_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown store kind %q", c.Store.Kind)
	}

	switch c.Catalog.Source {
	case SourceBackend:
		if c.Backend.BaseURL == "" {
			return errors.New("backend URL is required for the backend catalog source")
		}
	case SourceSnapshot:
		if c.Catalog.SnapshotPath == "" {
			return errors.New("snapshot path is required for the snapshot catalog source")
		}
	default:
		return errors.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	if c.RateLimit.Distributed && c.Store.Kind != StoreRedis {
		return errors.New("distributed rate limiting requires the redis store")
	}
	if c.Session.Window <= 0 {
		return errors.New("session window must be positive")
	}
	return nil
}

// SessionPolicy returns the configured login window policy.
func (c *Config) SessionPolicy() session.Policy {
	return session.Policy{Window: c.Session.Window}
}

// ProductKeywords returns the configured keyword lists.
func (c *Config) ProductKeywords() product.Keywords {
	return product.Keywords{
		Vegan:      c.Keywords.Vegan,
		GlutenFree: c.Keywords.GlutenFree,
		Featured:   c.Keywords.Featured,
	}
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
