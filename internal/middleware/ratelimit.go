package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// SubmitCooldown gates job submissions per client identity. A submission is
// rejected while the client's last accepted submission is younger than the
// cooldown window. The record holds that timestamp and expires at twice the
// window, strictly longer than the window itself; only accepted submissions
// refresh it.
func (rl *RateLimiter) SubmitCooldown(window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := GetClientID(c)
		if clientID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:score:%s", clientID)
		ctx := context.Background()

		val, err := rl.redis.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			// If Redis fails, allow the request
			return c.Next()
		}
		if err == nil {
			if last, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
				elapsed := time.Since(time.UnixMilli(last))
				if elapsed < window {
					retryAfter := int((window - elapsed).Seconds()) + 1
					c.Set("Retry-After", strconv.Itoa(retryAfter))
					return response.RateLimited(c)
				}
			}
		}

		if err := rl.redis.Set(ctx, key, time.Now().UnixMilli(), 2*window).Err(); err != nil {
			// Best effort; the submission still goes through
			return c.Next()
		}

		return c.Next()
	}
}
