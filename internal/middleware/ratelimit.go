package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/logger"
)

// tokenBucketScript refills and takes one token atomically. It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	local until_next = interval_ms - (now_ms - last_refill)
	if until_next < 0 then until_next = 0 end
	retry_after_ms = until_next
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// decision is the outcome of one rate-limit check.
type decision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// limiter takes one token for key.
type limiter interface {
	take(ctx context.Context, key string) (decision, error)
}

type redisLimiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func (l *redisLimiter) take(ctx context.Context, key string) (decision, error) {
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
		time.Now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(l.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return decision{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return decision{}, fmt.Errorf("ratelimit: unexpected script result %#v", vals)
	}
	return decision{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

// localLimiter keeps one x/time/rate limiter per key. Idle entries are
// dropped by a cleanup loop so the map does not grow without bound.
type localLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	per := cfg.RefillInterval.Seconds() / float64(cfg.RefillTokens)
	return &localLimiter{
		limit:   rate.Limit(1 / per),
		burst:   cfg.Capacity,
		ttl:     cfg.TTL,
		entries: make(map[string]*localEntry),
	}
}

func (l *localLimiter) take(_ context.Context, key string) (decision, error) {
	now := time.Now()
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{retry: delay}, nil
	}
	return decision{allowed: true, remaining: int64(e.lim.TokensAt(now))}, nil
}

// sweep drops entries idle for longer than ttl.
func (l *localLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}
}

func (l *localLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *localLimiter) cleanupLoop(ctx context.Context) {
	t := time.NewTicker(l.ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// NewTokenBucket limits requests per key with a token bucket. With a Redis
// client the bucket is shared across instances through a Lua script; without
// one each instance keeps its own buckets until ctx is done. Redis errors
// fail open. v resolves the caller for the user key strategies, since the
// limiter runs before any route's JWTAuth.
func NewTokenBucket(ctx context.Context, cfg config.RateLimitConfig, rdb *redis.Client, v AccessVerifier) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	var lim limiter
	if rdb != nil {
		lim = &redisLimiter{rdb: rdb, cfg: cfg}
	} else {
		local := newLocalLimiter(cfg)
		go local.cleanupLoop(ctx)
		lim = local
	}
	return rateLimit(cfg, lim, v)
}

func rateLimit(cfg config.RateLimitConfig, lim limiter, v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c, v)
			d, err := lim.take(c.Request().Context(), key)
			if err != nil {
				if cfg.Debug {
					logger.From(c.Request().Context()).Warn("rate limit check failed", logger.Err(err))
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !d.allowed {
				secs := int(math.Ceil(d.retry.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return httpx.FailData(c, http.StatusTooManyRequests, "too_many_requests",
					"rate limit exceeded", "retry", map[string]int{"retryAfter": secs})
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context, v AccessVerifier) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	strategy := strings.ToLower(cfg.KeyStrategy)
	uid := "anon"
	switch strategy {
	case "ip", "route", "ip_route":
	default:
		uid = bearerIdentity(c, v)
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strategy {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
