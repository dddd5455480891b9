package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petrolink/petrolink/internal/transactions"
)

// RegisterTransactionRoutes wires the fuel-transaction webhook behind the
// signature guard and the per-station rate limiter.
func RegisterTransactionRoutes(r fiber.Router, h *transactions.Handler, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.FuelTransaction)
	r.Post("/transactions/webhook/fuel-transactions", handlers...)
}
