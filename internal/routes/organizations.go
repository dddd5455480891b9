package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petrolink/petrolink/internal/organizations"
)

// RegisterOrganizationRoutes wires organization endpoints.
func RegisterOrganizationRoutes(r fiber.Router, h *organizations.Handler) {
	r.Get("/organizations/:orgId/balance", h.Balance)
}
