package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/pkg/response"
)

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request
type KeyFunc func(c *gin.Context) string

// KeyByIP limits by client IP only, so every route sharing the limiter
// shares one budget.
func KeyByIP(prefix string) KeyFunc {
	return func(c *gin.Context) string {
		return "rl:" + prefix + ":ip:" + ipFromCtx(c)
	}
}

type AllowFunc func(*gin.Context) bool // return true for bypass limit

// Limiter counts hits per key in fixed windows. Hit returns the count in
// the current window including this hit and the time until it resets.
type Limiter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, reset time.Duration, err error)
}

// Lua script: atomic INCR, set PEXPIRE on the first hit, return count and TTL
var incrExpireScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

var errUnexpectedReply = errors.New("rate limit script: unexpected reply")

// RedisLimiter shares counters across instances through Redis.
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter { return &RedisLimiter{rdb: rdb} }

func (l *RedisLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	res, err := incrExpireScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, errUnexpectedReply
	}
	reset := time.Duration(res[1]) * time.Millisecond
	if reset < 0 {
		reset = window
	}
	return int(res[0]), reset, nil
}

// MemoryLimiter is an in-process fixed-window counter keyed like the Redis
// limiter. Stale windows are swept lazily.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	hits    int
	now     func() time.Time
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

const sweepEvery = 1024

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*fixedWindow), now: time.Now}
}

func (l *MemoryLimiter) Hit(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.hits++
	if l.hits%sweepEvery == 0 {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// FallbackLimiter uses primary and switches to secondary for any hit the
// primary cannot count.
type FallbackLimiter struct {
	primary   Limiter
	secondary Limiter
	logger    *logrus.Logger
}

func NewFallbackLimiter(primary, secondary Limiter, logger *logrus.Logger) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, secondary: secondary, logger: logger}
}

func (l *FallbackLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, reset, err := l.primary.Hit(ctx, key, window)
	if err == nil {
		return count, reset, nil
	}
	if l.logger != nil {
		l.logger.WithError(err).WithField("key", key).Warn("rate limiter fallback")
	}
	return l.secondary.Hit(ctx, key, window)
}

// RateLimit allows limit requests per window for each key. Exceeding requests
// get 429 with Retry-After. OPTIONS requests and requests accepted by allow
// are not counted. A limiter error lets the request through.
func RateLimit(l Limiter, limit int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if l == nil || limit <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if allow != nil && allow(c) {
			c.Next()
			return
		}
		if strings.EqualFold(c.Request.Method, http.MethodOptions) {
			c.Next()
			return
		}

		count, reset, err := l.Hit(c.Request.Context(), keyFn(c), window)
		if err != nil {
			c.Next()
			return
		}
		resetSec := int((reset + time.Second - 1) / time.Second)

		// https://datatracker.ietf.org/doc/html/rfc6585#section-4
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, limit-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(max(1, resetSec)))
			response.Error[any](c, http.StatusTooManyRequests, "rate limit exceeded", response.ErrorBody{Code: "RateLimit.Exceeded"})
			return
		}
		c.Next()
	}
}
