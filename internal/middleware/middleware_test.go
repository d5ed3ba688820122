package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/cache"
	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

const secret = "test-secret"

type verifier struct{ now time.Time }

func (v verifier) VerifyAccess(raw string) (utils.AccessClaims, error) {
	c, err := utils.ParseAccessToken(secret, raw, v.now)
	if err != nil {
		if errors.Is(err, utils.ErrAccessExpired) {
			return c, service.ErrExpiredAccess
		}
		return c, service.ErrInvalidAccess
	}
	return c, nil
}

func serve(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, role string, ttl time.Duration, now time.Time) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 7, role, "fam-1", ttl, now)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
}

func TestJWTAuth(t *testing.T) {
	now := time.Now()
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, _ := httpx.UserID(c)
		return c.String(http.StatusOK, strconv.FormatUint(id, 10)+"/"+httpx.Role(c)+"/"+httpx.Family(c))
	}, JWTAuth(verifier{now: now}))

	rec := serve(e, http.MethodGet, "/me", bearer(t, model.RoleCustomer, time.Minute, now))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "7/CUSTOMER/fam-1", rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"invalid_access"`)

	rec = serve(e, http.MethodGet, "/me", bearer(t, model.RoleCustomer, time.Minute, now.Add(-time.Hour)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"expired_access"`)
	require.Contains(t, rec.Body.String(), `"action":"refresh"`)

	rec = serve(e, http.MethodGet, "/me", map[string]string{echo.HeaderAuthorization: "Bearer junk"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"invalid_access"`)
}

func TestRequireRole(t *testing.T) {
	now := time.Now()
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(verifier{now: now}), RequireRole(model.RoleAdmin))

	require.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", bearer(t, model.RoleCustomer, time.Minute, now)).Code)
	require.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/admin", bearer(t, model.RoleAdmin, time.Minute, now)).Code)
}

func TestTokenBucketLocalFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(ctx, cfg, nil, nil))

	require.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
	require.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
	rec := serve(e, http.MethodGet, "/x", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Contains(t, rec.Body.String(), `"action":"retry"`)

	other := serve(e, http.MethodGet, "/x", map[string]string{echo.HeaderXRealIP: "10.0.0.9"})
	require.Equal(t, http.StatusOK, other.Code)
}

func TestTokenBucketUserStrategyKeysBySubject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Now()
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(ctx, cfg, nil, verifier{now: now}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	alice := bearer(t, model.RoleCustomer, time.Minute, now)
	tok, err := utils.NewAccessToken(secret, 8, model.RoleCustomer, "fam-2", time.Minute, now)
	require.NoError(t, err)
	bob := map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}

	require.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", alice).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/x", alice).Code)
	require.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", bob).Code)

	// Unauthenticated and forged callers share the anonymous bucket.
	require.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
	forged := map[string]string{echo.HeaderAuthorization: "Bearer not-a-token"}
	require.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/x", forged).Code)
}

func TestLocalLimiterSweep(t *testing.T) {
	l := newLocalLimiter(config.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute})
	_, err := l.take(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, l.size())
	l.sweep(time.Now().Add(30 * time.Second))
	require.Equal(t, 1, l.size())
	l.sweep(time.Now().Add(2 * time.Minute))
	require.Equal(t, 0, l.size())
}

func TestResponseCache(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 10,
	}
	var calls atomic.Int32
	e := echo.New()
	e.GET("/products", func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusOK, map[string]string{"q": c.QueryParam("q")})
	}, ResponseCache(cfg, cache.NewMemory(time.Minute)))

	first := serve(e, http.MethodGet, "/products?q=tea", nil)
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/products?q=tea", nil)
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Contains(t, second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	require.EqualValues(t, 1, calls.Load())

	serve(e, http.MethodGet, "/products?q=coffee", nil)
	require.EqualValues(t, 2, calls.Load())
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "cache"}
	var calls atomic.Int32
	e := echo.New()
	e.GET("/p", func(c echo.Context) error {
		calls.Add(1)
		return c.NoContent(http.StatusServiceUnavailable)
	}, ResponseCache(cfg, cache.NewMemory(time.Minute)))
	serve(e, http.MethodGet, "/p", nil)
	serve(e, http.MethodGet, "/p", nil)
	require.EqualValues(t, 2, calls.Load())
}
