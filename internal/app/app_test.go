package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/kart-storefront/internal/api"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storage/snapshot"
	"github.com/xenking/kart-storefront/internal/storefront"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()

	food := product.RawCategory{ID: "1", Name: "Food"}
	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	require.NoError(t, snapshot.WriteFile(path, snapshot.Snapshot{
		CreatedAt:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Categories: []product.RawCategory{food},
		Products: []product.RawProduct{
			{ID: "1", Name: "Burger", Price: decimal.NewFromInt(1000), Stock: 3, Category: &food},
			{ID: "2", Name: "Vegan Wrap", Price: decimal.NewFromInt(700), Stock: 3, Category: &food},
		},
	}))
	return path
}

type testApp struct {
	health *health.Health
	server *httptest.Server
}

func startApp(t *testing.T, cfg *Config) *testApp {
	t.Helper()

	ctx := context.Background()
	lg := zaptest.NewLogger(t)
	h := health.New()

	st, err := openStores(ctx, lg, cfg, h)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	src, closeSource, err := openSource(nil, lg, cfg, h)
	require.NoError(t, err)
	t.Cleanup(closeSource)

	cat := storefront.NewCatalog(src, product.NewNormalizer(cfg.ProductKeywords()), lg)
	require.NoError(t, cat.Refresh(ctx, ""))

	registry, err := storefront.NewRegistry(storefront.Options{
		Catalog: cat,
		Store:   st.kv,
		Coupons: st.coupons,
		Policy:  cfg.SessionPolicy(),
		Logger:  lg,
	})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	var limiter httpmiddleware.Limiter
	if cfg.RateLimit.Max > 0 {
		if cfg.RateLimit.Distributed {
			limiter = st.rateLimiter(cfg.RateLimit)
		} else {
			limiter = httpmiddleware.NewWindowLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		}
	}

	srv := httptest.NewServer(newHandler(ctx, cfg, handlerDeps{
		health:   h,
		registry: registry,
		limiter:  limiter,
		tracers:  tracenoop.NewTracerProvider(),
		meters:   noop.NewMeterProvider(),
	}))
	t.Cleanup(srv.Close)
	return &testApp{health: h, server: srv}
}

func (a *testApp) do(t *testing.T, method, path string, headers map[string]string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func snapshotConfig(t *testing.T) *Config {
	cfg := validConfig()
	cfg.Catalog = CatalogConfig{Source: SourceSnapshot, SnapshotPath: writeSnapshot(t)}
	cfg.CORS.Origins = []string{"https://shop.example"}
	return &cfg
}

func TestServer_Probes(t *testing.T) {
	a := startApp(t, snapshotConfig(t))

	resp := a.do(t, http.MethodGet, "/livez", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.RequestIDHeader))

	resp = a.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	a.health.SetReady(true)
	resp = a.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CartAcrossRequests(t *testing.T) {
	a := startApp(t, snapshotConfig(t))

	resp := a.do(t, http.MethodPost, "/api/cart/items", nil, `{"productId":"1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := resp.Header.Get(api.SessionHeader)
	require.NotEmpty(t, sid)

	session := map[string]string{api.SessionHeader: sid}
	resp = a.do(t, http.MethodPost, "/api/cart/items", session, `{"productId":"2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/products?dietary=vegan", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_CORS(t *testing.T) {
	a := startApp(t, snapshotConfig(t))

	resp := a.do(t, http.MethodOptions, "/api/cart/items", map[string]string{
		"Origin":                         "https://shop.example",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	}, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), api.SessionHeader)

	resp = a.do(t, http.MethodGet, "/api/cart", map[string]string{"Origin": "https://shop.example"}, "")
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), api.SessionHeader)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := snapshotConfig(t)
	cfg.RateLimit = RateLimitConfig{Max: 2, Window: time.Minute}
	a := startApp(t, cfg)

	for range 2 {
		assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/categories", nil, "").StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodGet, "/api/categories", nil, "").StatusCode)
}

func TestServer_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := snapshotConfig(t)
	cfg.Store.Kind = StoreRedis
	cfg.Redis = RedisConfig{Addr: mr.Addr(), Prefix: "sf:"}
	cfg.RateLimit = RateLimitConfig{Max: 1, Window: time.Minute, Distributed: true}
	a := startApp(t, cfg)

	session := map[string]string{api.SessionHeader: "redis-session"}
	resp := a.do(t, http.MethodPost, "/api/cart/items", session, `{"productId":"1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mr.Exists("sf:ratelimit:127.0.0.1"))
	assert.Eventually(t, func() bool { return mr.Exists("sf:redis-session:cart") }, time.Second, 10*time.Millisecond)

	resp = a.do(t, http.MethodGet, "/api/cart", session, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestOpenStores_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := validConfig()
	cfg.Store.Kind = StoreRedis
	cfg.Redis = RedisConfig{Addr: addr}

	_, err := openStores(context.Background(), zaptest.NewLogger(t), &cfg, health.New())
	assert.Error(t, err)
}

func TestOpenSource_MissingSnapshot(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog = CatalogConfig{Source: SourceSnapshot, SnapshotPath: filepath.Join(t.TempDir(), "missing.gz")}

	_, _, err := openSource(nil, zaptest.NewLogger(t), &cfg, health.New())
	assert.Error(t, err)
}
