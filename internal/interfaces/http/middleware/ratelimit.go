package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/inferpay/inferpay/internal/shared/utils"
)

// IPRateLimiter provides Redis-backed per-IP rate limiting using a
// fixed-window counter. This is a coarse outer guard in front of the
// per-client limiter the use cases apply; it works correctly in
// multi-instance deployments since all instances share Redis.
type IPRateLimiter struct {
	redisClient *redis.Client
	limit       int
	window      time.Duration
}

func NewIPRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		redisClient: redisClient,
		limit:       limit,
		window:      window,
	}
}

// Limit returns a Gin middleware that enforces the rate limit per client IP.
func (rl *IPRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		windowBucket := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("ratelimit:ip:%s:%d", clientIP, windowBucket)

		ctx := context.Background()

		count, err := rl.redisClient.Incr(ctx, key).Result()
		if err != nil {
			// If Redis is unavailable, allow the request to avoid blocking all traffic
			c.Next()
			return
		}

		if count == 1 {
			rl.redisClient.Expire(ctx, key, rl.window+time.Second)
		}

		if count > int64(rl.limit) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
