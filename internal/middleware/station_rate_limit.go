package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// StationRateLimit caps webhook submissions per station per minute using
// Redis if available.
func StationRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 60
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			StationID string `json:"stationId"`
		}
		_ = c.BodyParser(&req)
		station := strings.TrimSpace(req.StationID)
		if station == "" {
			station = c.IP()
		}
		key := "rl:station:" + station
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "station is submitting too quickly, try again later")
		}
		return c.Next()
	}
}
