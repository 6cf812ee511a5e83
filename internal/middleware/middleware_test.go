package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/childcare-checkin/internal/config"
)

func newContext(method, target string, hdr map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	called := 0
	h := func(c echo.Context) error {
		called++
		return c.NoContent(http.StatusNoContent)
	}

	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil)
	cache := NewRedisCache(config.CacheConfig{Enabled: true}, nil, nil)

	c, rec := newContext(http.MethodGet, "/v1/venues", nil)
	require.NoError(t, rl(cache(h))(c))
	assert.Equal(t, 1, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestBuildRateKey(t *testing.T) {
	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "device_route"}

	c, _ := newContext(http.MethodPost, "/v1/venues/v1/children", map[string]string{DeviceHeader: "tablet-1"})
	c.SetPath("/v1/venues/:id/children")
	assert.Equal(t, "rl:device:tablet-1:route:POST /v1/venues/:id/children", buildRateKey(cfg, c))

	c, _ = newContext(http.MethodGet, "/v1/venues", map[string]string{echo.HeaderXRealIP: "10.0.0.7"})
	c.SetPath("/v1/venues")
	cfg.KeyStrategy = "device"
	assert.Equal(t, "rl:device:ip-10.0.0.7", buildRateKey(cfg, c), "devices without an id are keyed by address")

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.7", buildRateKey(cfg, c))
}

func TestParseLimiterResult(t *testing.T) {
	allowed, remaining, retry, ok := parseLimiterResult([]any{int64(1), int64(41), int64(0)})
	require.True(t, ok)
	assert.True(t, allowed)
	assert.Equal(t, int64(41), remaining)
	assert.Zero(t, retry)

	allowed, _, retry, ok = parseLimiterResult([]any{"0", "0", "750"})
	require.True(t, ok)
	assert.False(t, allowed)
	assert.Equal(t, int64(750), retry)

	_, _, _, ok = parseLimiterResult("nope")
	assert.False(t, ok)
}

func TestCacheKeyFrom(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "path_query"}

	a, _ := newContext(http.MethodGet, "/v1/venues/v1/children", nil)
	b, _ := newContext(http.MethodGet, "/v1/venues/v2/children", nil)
	a.SetPath("/v1/venues/:id/children")
	b.SetPath("/v1/venues/:id/children")
	assert.NotEqual(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b), "venues do not share entries")
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, cacheKeyFrom(cfg, a))

	q, _ := newContext(http.MethodGet, "/v1/venues/v1/children?x=1", nil)
	assert.NotEqual(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, q))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"success":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	assert.False(t, ok)
}
