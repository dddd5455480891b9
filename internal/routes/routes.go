package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/petrolink/petrolink/internal/cards"
	"github.com/petrolink/petrolink/internal/config"
	"github.com/petrolink/petrolink/internal/middleware"
	"github.com/petrolink/petrolink/internal/notification"
	"github.com/petrolink/petrolink/internal/organizations"
	"github.com/petrolink/petrolink/internal/transactions"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// In-memory fallbacks exist for tests only; real deployments need both
	// backing services.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store transactions.Store
	var cardRepo cards.Repository
	var orgRepo organizations.Repository
	if d.DB != nil {
		store = transactions.NewPostgresStore(d.DB)
		cardRepo = cards.NewPostgresRepository(d.DB)
		orgRepo = organizations.NewPostgresRepository(d.DB)
	} else {
		store = transactions.NewMemoryStore()
		cardRepo = cards.NewMemoryRepository()
		orgRepo = organizations.NewMemoryRepository()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	authorizer := transactions.NewService(store, cardRepo, notifier, d.Logger)

	txnHandler := transactions.NewHandler(authorizer)
	orgHandler := organizations.NewHandler(orgRepo)

	api := app.Group("/v1")

	signatureGuard := middleware.WebhookSignature(d.Cfg.WebhookSecret, d.Cfg.SignatureMaxAge, d.Cache, d.Logger)
	rateLimiter := middleware.StationRateLimit(d.Cache, d.Cfg.StationRateLimit)
	RegisterTransactionRoutes(api, txnHandler, signatureGuard, rateLimiter)
	RegisterOrganizationRoutes(api, orgHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
