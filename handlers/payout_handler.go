package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/creatorspace/api/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var validate = validator.New()

// WebhookVerifier checks a webhook delivery's signature with the provider.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers map[string]string, rawBody []byte) (bool, error)
}

type PayoutHandler struct {
	payouts  *services.PayoutService
	webhooks *services.WebhookService
	verifier WebhookVerifier
}

func NewPayoutHandler(payouts *services.PayoutService, webhooks *services.WebhookService, verifier WebhookVerifier) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, webhooks: webhooks, verifier: verifier}
}

func profileIDFromClaims(c *fiber.Ctx) (uuid.UUID, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	return uuid.Parse(claims["user_id"].(string))
}

// RequestPayout is the manual payout trigger: the creator asks for their
// balance now, so the automatic threshold is bypassed. Every ineligibility
// reason maps to a specific user-facing message.
func (h *PayoutHandler) RequestPayout(c *fiber.Ctx) error {
	profileID, err := profileIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	record, err := h.payouts.EvaluateAndExecute(c.Context(), profileID, true)
	if err != nil {
		return h.payoutError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payout submitted successfully.",
		"payout":  record,
	})
}

func (h *PayoutHandler) payoutError(c *fiber.Ctx, err error) error {
	var minErr *services.MinPayoutNotMetError
	var maxErr *services.MaxPayoutExceededError
	var provErr *services.ExternalProviderError

	switch {
	case errors.Is(err, services.ErrPendingPayout):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A payout is already in progress. Please wait for it to complete."})
	case errors.Is(err, services.ErrNoPayoutMethod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No payout method configured. Please add one before requesting a payout."})
	case errors.Is(err, services.ErrInsufficientBalance):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Your balance is too low for a payout."})
	case errors.As(err, &minErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Payouts require a minimum of $%d.%02d.", minErr.Minimum/100, minErr.Minimum%100),
		})
	case errors.As(err, &maxErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("You have reached the payout limit of $%d.%02d for this period.", maxErr.Maximum/100, maxErr.Maximum%100),
		})
	case errors.As(err, &provErr):
		log.Printf("🔥 Payout provider call failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "The payout could not be submitted. Please try again later."})
	default:
		log.Printf("🔥 Payout request failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process payout request"})
	}
}

func (h *PayoutHandler) GetMyPayouts(c *fiber.Ctx) error {
	profileID, err := profileIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	records, err := h.payouts.History(c.Context(), profileID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payout history"})
	}
	return c.JSON(records)
}

func (h *PayoutHandler) AdminListPayouts(c *fiber.Ctx) error {
	records, err := h.payouts.AllRecords(c.Context(), c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payout records"})
	}
	return c.JSON(records)
}

type payoutWebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		BatchHeader struct {
			PayoutBatchID     string `json:"payout_batch_id"`
			BatchStatus       string `json:"batch_status"`
			SenderBatchHeader struct {
				SenderBatchID string `json:"sender_batch_id"`
			} `json:"sender_batch_header"`
		} `json:"batch_header"`
	} `json:"resource"`
}

// HandlePayoutWebhook receives PayPal payout batch events. The raw body is
// kept for signature verification before anything is parsed out of it.
func (h *PayoutHandler) HandlePayoutWebhook(c *fiber.Ctx) error {
	rawBody := c.Body()

	var payload payoutWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}

	batchID, err := uuid.Parse(payload.Resource.BatchHeader.SenderBatchHeader.SenderBatchID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sender batch ID"})
	}

	headers := map[string]string{
		"Paypal-Auth-Algo":         c.Get("Paypal-Auth-Algo"),
		"Paypal-Cert-Url":          c.Get("Paypal-Cert-Url"),
		"Paypal-Transmission-Id":   c.Get("Paypal-Transmission-Id"),
		"Paypal-Transmission-Sig":  c.Get("Paypal-Transmission-Sig"),
		"Paypal-Transmission-Time": c.Get("Paypal-Transmission-Time"),
	}

	log.Printf("Received payout webhook %s (%s) for batch %s", payload.ID, payload.EventType, batchID)

	err = h.webhooks.Handle(c.Context(), payload.ID, payload.EventType, batchID, func() bool {
		ok, verifyErr := h.verifier.VerifyWebhookSignature(c.Context(), headers, rawBody)
		if verifyErr != nil {
			log.Printf("🔥 Webhook signature verification errored: %v", verifyErr)
			return false
		}
		return ok
	})

	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Webhook processed successfully"})
	case errors.Is(err, services.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Webhook signature verification failed"})
	case errors.Is(err, services.ErrUnknownBatch):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout record not found for this batch"})
	case errors.Is(err, services.ErrUnknownEventType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unrecognized event type"})
	default:
		log.Printf("🔥 CRITICAL: Error processing payout webhook %s: %v", payload.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
	}
}
