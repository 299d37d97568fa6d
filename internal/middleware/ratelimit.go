package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/response"
)

// reserveSlot counts one login attempt and returns the new count with the
// window left in milliseconds. The TTL is set whenever the key has none, so a
// counter can never outlive its window.
var reserveSlot = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// returnSlot gives back a slot taken by a request that was neither a success
// nor a credential failure.
var returnSlot = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('DECR', KEYS[1])
end
return 0
`)

// LoginRateLimiter is a fixed-window counter of failed logins per client IP.
// The counter lives in Redis so every instance sees the same window.
type LoginRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	log    zerolog.Logger
}

// NewLoginRateLimiter creates a limiter allowing limit failures per window.
func NewLoginRateLimiter(rdb *redis.Client, limit int, window time.Duration, log zerolog.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		log:    log.With().Str("component", "login_rate_limiter").Logger(),
	}
}

// Middleware takes a slot before the credentials are checked, so concurrent
// guesses from one client can never exceed the limit. A 401 keeps its slot,
// a successful login clears the counter and any other outcome returns the
// slot. Redis errors fail open.
func (rl *LoginRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := config.Keys.LoginAttemptsKey(c.ClientIP())

		n, ttl, err := rl.reserve(ctx, key)
		if err != nil {
			rl.log.Warn().Err(err).Msg("Reserve login slot failed")
			c.Next()
			return
		}
		if n > rl.limit {
			retry := int((ttl + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.Itoa(retry))
			response.AbortFailWithDetails(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded,
				response.RetryDetails{RetryAfter: retry})
			return
		}

		c.Next()

		// The request may be cancelled by now; the counter must still settle.
		settle := context.WithoutCancel(ctx)
		switch status := c.Writer.Status(); {
		case status == http.StatusUnauthorized:
		case status < http.StatusMultipleChoices:
			if err := rl.rdb.Del(settle, key).Err(); err != nil {
				rl.log.Warn().Err(err).Msg("Clear login counter failed")
			}
		default:
			if err := returnSlot.Run(settle, rl.rdb, []string{key}).Err(); err != nil {
				rl.log.Warn().Err(err).Msg("Return login slot failed")
			}
		}
	}
}

func (rl *LoginRateLimiter) reserve(ctx context.Context, key string) (int, time.Duration, error) {
	vals, err := reserveSlot.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	return int(vals[0]), time.Duration(vals[1]) * time.Millisecond, nil
}
