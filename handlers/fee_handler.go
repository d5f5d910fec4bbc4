package handlers

import (
	"errors"

	"github.com/creatorspace/api/services"
	"github.com/gofiber/fiber/v2"
)

type FeeHandler struct {
	fees *services.FeeCalculator
}

func NewFeeHandler(fees *services.FeeCalculator) *FeeHandler {
	return &FeeHandler{fees: fees}
}

type checkoutQuoteRequest struct {
	Amount         int64                    `json:"amount" validate:"required,gt=0"`
	Category       string                   `json:"category" validate:"required"`
	BillingAddress *services.BillingAddress `json:"billing_address"`
}

// CheckoutQuote tells a fan what they will actually pay for a purchase,
// platform fee and VAT included.
func (h *FeeHandler) CheckoutQuote(c *fiber.Ctx) error {
	var req checkoutQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rate, err := h.fees.FanFeeRate(services.Category(req.Category))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported transaction category"})
	}

	total, err := h.fees.Checkout(c.Context(), req.Amount, rate, req.BillingAddress)
	if err != nil {
		var taxErr *services.TaxServiceError
		if errors.As(err, &taxErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Tax calculation is temporarily unavailable. Please try again."})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute checkout total"})
	}

	return c.JSON(total)
}

type purchaseQuoteRequest struct {
	Amount      int64    `json:"amount" validate:"required,gt=0"`
	Category    string   `json:"category" validate:"required"`
	Provider    string   `json:"provider" validate:"required"`
	PlatformFee *float64 `json:"platform_fee" validate:"omitempty,gte=0,lt=1"`
}

// PurchaseQuote previews the creator-side fee split for a gross amount.
func (h *FeeHandler) PurchaseQuote(c *fiber.Ctx) error {
	var req purchaseQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	breakdown, err := h.fees.PurchaseFee(req.Amount, services.Category(req.Category), services.Provider(req.Provider), req.PlatformFee)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedProvider):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported payment provider"})
		case errors.Is(err, services.ErrUnsupportedCategory):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported transaction category"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute fees"})
		}
	}

	return c.JSON(breakdown)
}
