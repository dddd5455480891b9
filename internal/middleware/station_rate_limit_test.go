package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func newRateLimitApp(cache *redis.Client, maxPerMin int) *fiber.App {
	app := fiber.New()
	app.Post("/webhook",
		StationRateLimit(cache, maxPerMin),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) },
	)
	return app
}

func postStation(t *testing.T, app *fiber.App, stationID string) *http.Response {
	t.Helper()
	body := []byte(`{"stationId":"` + stationID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestStationRateLimitCapsPerStation(t *testing.T) {
	app := newRateLimitApp(newTestRedis(t), 3)

	for i := 0; i < 3; i++ {
		if resp := postStation(t, app, "ST-001"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}
	if resp := postStation(t, app, "ST-001"); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once over the cap, got %d", resp.StatusCode)
	}

	// a different station keeps its own budget
	if resp := postStation(t, app, "ST-002"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an unrelated station, got %d", resp.StatusCode)
	}
}

func TestStationRateLimitNoopWithoutCache(t *testing.T) {
	app := newRateLimitApp(nil, 1)

	for i := 0; i < 3; i++ {
		if resp := postStation(t, app, "ST-001"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200 without redis, got %d", i+1, resp.StatusCode)
		}
	}
}
