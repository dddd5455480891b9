package organizations

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes organization HTTP endpoints.
type Handler struct {
	repo Repository
}

// NewHandler builds an organization HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Balance returns the organization's current prepaid balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	orgID := c.Params("orgId")

	balance, err := h.repo.GetBalance(c.UserContext(), orgID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return fiber.NewError(http.StatusNotFound, "organization balance not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"org_id":  balance.OrgID,
		"balance": balance.Amount.StringFixed(2),
		"as_of":   balance.AsOf,
	})
}
