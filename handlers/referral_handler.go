package handlers

import (
	"github.com/creatorspace/api/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ReferralHandler struct {
	referrals *services.ReferralService
}

func NewReferralHandler(referrals *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

type completeReferralRequest struct {
	PurchaseAmount int64 `json:"purchase_amount" validate:"required,gt=0"`
}

// CompleteReferral settles a pending referral for a user after their first
// purchase cleared, crediting the referrer's balance with the referral cut.
func (h *ReferralHandler) CompleteReferral(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID format"})
	}

	var req completeReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	go h.referrals.CompleteReferralIfApplicable(userID, req.PurchaseAmount)

	return c.JSON(fiber.Map{"message": "Referral settlement queued."})
}
