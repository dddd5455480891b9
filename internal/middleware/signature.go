package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	signatureHeader          = "X-Signature"
	signatureTimestampHeader = "X-Signature-Timestamp"
	signatureReplayPrefix    = "webhook:sig:"
)

// WebhookSignature verifies that the request was signed by the station
// network: the signature must be the hex HMAC-SHA256 of
// "<timestamp>.<raw body>" under the shared secret, and the unix-millisecond
// timestamp must not be older than maxAge. When a Redis client is provided,
// an already-seen signature within maxAge is rejected as a replay.
func WebhookSignature(secret string, maxAge time.Duration, cache *redis.Client, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get(signatureHeader)
		timestamp := c.Get(signatureTimestampHeader)
		body := c.Body()

		if signature == "" || timestamp == "" || len(body) == 0 {
			return fiber.NewError(http.StatusUnauthorized, "missing signature headers or body")
		}

		requestMillis, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid signature timestamp")
		}
		if time.Since(time.UnixMilli(requestMillis)) > maxAge {
			return fiber.NewError(http.StatusUnauthorized, "signature timestamp is too old")
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return fiber.NewError(http.StatusUnauthorized, "invalid signature")
		}

		if cache != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()

			fresh, err := cache.SetNX(ctx, signatureReplayPrefix+signature, 1, maxAge).Result()
			if err != nil {
				// fail-open on cache errors; the idempotency key still
				// guards the economic effect
				logger.Warn("signature replay check failed", slog.Any("error", err))
			} else if !fresh {
				return fiber.NewError(http.StatusUnauthorized, "signature replay detected")
			}
		}

		return c.Next()
	}
}
