package transactions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/cards"
	"github.com/petrolink/petrolink/internal/rules"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the fuel-transaction webhook endpoint.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type webhookRequest struct {
	CardNumber string      `json:"cardNumber" validate:"required,credit_card"`
	Amount     json.Number `json:"amount" validate:"required"`
	TxnAtUtc   string      `json:"txnAtUtc" validate:"required"`
	StationID  string      `json:"stationId" validate:"required"`
}

// FuelTransaction handles POST /v1/transactions/webhook/fuel-transactions.
func (h *Handler) FuelTransaction(c *fiber.Ctx) error {
	idempotencyKey := c.Get(idempotencyKeyHeader)
	if idempotencyKey == "" {
		return fiber.NewError(http.StatusBadRequest, "Idempotency-Key header is required")
	}

	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	}
	if amount.Exponent() < -2 {
		return fiber.NewError(http.StatusBadRequest, "amount must have at most 2 decimal places")
	}

	txnAt, err := time.Parse(time.RFC3339, req.TxnAtUtc)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "txnAtUtc must be an ISO-8601 instant")
	}

	result, err := h.service.Authorize(c.UserContext(), AuthorizationRequest{
		CardNumber: req.CardNumber,
		Amount:     amount,
		TxnAtUtc:   txnAt.UTC(),
		StationID:  req.StationID,
	}, idempotencyKey)
	if err != nil {
		var rejection *RejectionError
		switch {
		case errors.As(err, &rejection):
			// The rejection record is already committed; return its body.
			return c.Status(result.StatusCode).JSON(rejection.Response)
		case errors.Is(err, cards.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "card not found")
		case errors.Is(err, ErrCardInactive):
			return c.Status(http.StatusUnprocessableEntity).JSON(Rejected(rules.ReasonCardInactive))
		case errors.Is(err, ErrMissingIdempotencyKey):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(result.StatusCode).JSON(result.Response)
}
