// Package ratelimit enforces per-client request budgets on public and admin
// endpoints.
//
// With Redis configured the budget is a fixed window shared by every
// instance, checked and incremented atomically by a Lua script. Without
// Redis, or while Redis is failing, each process falls back to a token
// bucket per client from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/pkg/ttlcache"
)

// Bucket names configured under rate_limits.
const (
	BucketLogin   = "login"
	BucketForm    = "form"
	BucketWebhook = "webhook"
	BucketAPI     = "api"
)

const pruneEvery = 1024

// fixedWindowScript increments the window counter unless it is already at
// the limit. Returns {allowed, count, ttl_ms}.
const fixedWindowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current, redis.call("PTTL", key)}
end

local count = redis.call("INCR", key)
if count == 1 then
    redis.call("PEXPIRE", key, window_ms)
end
return {1, count, redis.call("PTTL", key)}
`

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks named budgets keyed by client.
type Limiter struct {
	redis   *redis.Client
	script  *redis.Script
	buckets map[string]config.RateLimit
	local   *ttlcache.Cache[string, *rate.Limiter]
	calls   atomic.Int64
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. A nil client uses only the in-process fallback.
func New(client *redis.Client, buckets map[string]config.RateLimit, opts ...Option) *Limiter {
	l := &Limiter{
		redis:   client,
		script:  redis.NewScript(fixedWindowScript),
		buckets: buckets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	var longest time.Duration
	for _, b := range buckets {
		if w := b.Window(); w > longest {
			longest = w
		}
	}
	l.local = ttlcache.New[string, *rate.Limiter](2*longest, l.now)
	return l
}

// Allow consumes one request from bucket for key. Unknown buckets are not
// limited.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) Decision {
	cfg, ok := l.buckets[bucket]
	if !ok || cfg.Limit <= 0 || cfg.WindowSeconds <= 0 {
		return Decision{Allowed: true}
	}
	if l.redis != nil {
		d, err := l.allowRedis(ctx, bucket, key, cfg)
		if err == nil {
			return d
		}
		logger.Warn("rate limit redis check failed, using local limiter", "bucket", bucket, "error", err.Error())
	}
	return l.allowLocal(bucket, key, cfg)
}

func (l *Limiter) allowRedis(ctx context.Context, bucket, key string, cfg config.RateLimit) (Decision, error) {
	window := cfg.Window()
	idx := l.now().UnixMilli() / window.Milliseconds()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", bucket, key, idx)

	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, cfg.Limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	d := Decision{Allowed: res[0] == 1, Limit: cfg.Limit, Remaining: cfg.Limit - int(res[1])}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
		if d.RetryAfter <= 0 {
			d.RetryAfter = window
		}
	}
	return d, nil
}

func (l *Limiter) allowLocal(bucket, key string, cfg config.RateLimit) Decision {
	if l.calls.Add(1)%pruneEvery == 0 {
		l.local.Prune()
	}
	id := bucket + ":" + key
	lim, ok := l.local.Get(id)
	if !ok {
		lim = rate.NewLimiter(rate.Every(cfg.Window()/time.Duration(cfg.Limit)), cfg.Limit)
	}
	// Re-setting refreshes the entry's expiry while the client is active.
	l.local.Set(id, lim)

	now := l.now()
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: cfg.Limit, RetryAfter: delay}
	}
	return Decision{Allowed: true, Limit: cfg.Limit, Remaining: int(math.Floor(lim.TokensAt(now)))}
}

// KeyFunc extracts the client key from a request.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the bucket budget with 429 and a
// Retry-After header in whole seconds.
func (l *Limiter) Middleware(bucket string, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), bucket, key(r))
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				logger.Info("rate limited", "bucket", bucket, "retry_after", secs)
				httputil.TooManyRequests(w, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
