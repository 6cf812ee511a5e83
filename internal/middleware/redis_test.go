package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/childcare-checkin/internal/config"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func serve(e *echo.Echo, method, target, device string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if device != "" {
		req.Header.Set(DeviceHeader, device)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket_LimitsPerDevice(t *testing.T) {
	rdb, _ := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "device_route",
		Prefix:         "rl",
	}
	e := echo.New()
	g := e.Group("/v1", NewTokenBucket(cfg, rdb, nil))
	g.GET("/venues", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodGet, "/v1/venues", "tablet-1")
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := serve(e, http.MethodGet, "/v1/venues", "tablet-1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"too_many_requests","message":"rate limit exceeded"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/v1/venues", "tablet-2")
	assert.Equal(t, http.StatusNoContent, rec.Code, "buckets are per device")
}

func TestTokenBucket_RedisDownLetsRequestsThrough(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.GET("/v1/venues", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb, nil))

	mr.Close()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/v1/venues", "tablet-1").Code)
	}
}

func TestRedisCache_HitAndFlushOnWrite(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "path_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}

	var reads atomic.Int32
	e := echo.New()
	g := e.Group("/v1", NewRedisCache(cfg, rdb, nil))
	g.GET("/venues/:id/children", func(c echo.Context) error {
		reads.Add(1)
		return c.JSON(http.StatusOK, map[string]string{"venue": c.Param("id")})
	})
	g.POST("/venues/:id/children", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})

	rec := serve(e, http.MethodGet, "/v1/venues/v1/children", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = serve(e, http.MethodGet, "/v1/venues/v1/children", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"venue":"v1"}`, rec.Body.String())
	assert.Equal(t, int32(1), reads.Load())

	rec = serve(e, http.MethodGet, "/v1/venues/v2/children", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"), "venues do not share entries")
	assert.JSONEq(t, `{"venue":"v2"}`, rec.Body.String())
	assert.Len(t, mr.Keys(), 2)

	rec = serve(e, http.MethodPost, "/v1/venues/v1/children", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, mr.Keys(), "a successful write flushes the cache")

	rec = serve(e, http.MethodGet, "/v1/venues/v1/children", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(3), reads.Load())
}

func TestRedisCache_ErrorsAreNotCached(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	e.GET("/v1/venues", func(c echo.Context) error {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "network_unavailable"})
	}, NewRedisCache(cfg, rdb, nil))

	assert.Equal(t, http.StatusServiceUnavailable, serve(e, http.MethodGet, "/v1/venues", "").Code)
	assert.Empty(t, mr.Keys())
}
