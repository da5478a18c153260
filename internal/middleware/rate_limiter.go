package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimiterConfig struct {
	MaxRequests int           // per window
	Window      time.Duration // counter lifetime
	BlockTime   time.Duration // cool-down once the limit is hit, 0 disables it
}

// RateLimiter is a fixed-window counter kept in Redis, keyed by the
// authenticated user when there is one and by client IP otherwise
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		config: config,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := rateLimitSubject(c)

		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), subject)
		if err != nil {
			// fail open
			logger.Log.Warn("Rate limiter unavailable",
				zap.String("subject", subject),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"code":        "rate_limited",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func rateLimitSubject(c *gin.Context) string {
	if uid, ok := c.Get("user_id"); ok {
		if id, ok := uid.(uint); ok && id != 0 {
			return fmt.Sprintf("user:%d", id)
		}
	}
	return "ip:" + c.ClientIP()
}

// CheckLimit counts one request for subject.
// Returns: (allowed, retryAfter, error)
func (rl *RateLimiter) CheckLimit(ctx context.Context, subject string) (bool, time.Duration, error) {
	blockKey := "ratelimit:block:" + subject
	counterKey := "ratelimit:" + subject

	if rl.config.BlockTime > 0 {
		ttl, err := rl.redis.TTL(ctx, blockKey).Result()
		if err != nil {
			return false, 0, err
		}
		if ttl > 0 {
			return false, ttl, nil
		}
	}

	count, err := rl.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, counterKey, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count <= int64(rl.config.MaxRequests) {
		return true, 0, nil
	}

	if rl.config.BlockTime > 0 {
		if err := rl.redis.Set(ctx, blockKey, 1, rl.config.BlockTime).Err(); err != nil {
			return false, 0, err
		}
		return false, rl.config.BlockTime, nil
	}

	ttl, err := rl.redis.TTL(ctx, counterKey).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.config.Window
	}
	return false, ttl, nil
}
