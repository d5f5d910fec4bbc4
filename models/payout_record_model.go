package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout record statuses. A record moves
// initialized -> submitted -> (pending -> successful | failed), or straight to
// failed when the provider call itself fails. Successful and failed are
// terminal for everything except the reconciler's documented overwrite rule.
const (
	PayoutStatusInitialized = "initialized"
	PayoutStatusSubmitted   = "submitted"
	PayoutStatusPending     = "pending"
	PayoutStatusSuccessful  = "successful"
	PayoutStatusFailed      = "failed"
)

// PayoutRecord is one attempted transfer of a creator's earnings to their
// payout method. The row id doubles as the idempotency key sent to the
// provider as the batch id, so a retried submission lands on the same batch.
// Amount is the net the creator receives, ProcessingFee the provider's cut;
// the balance is debited by their sum.
type PayoutRecord struct {
	ID                     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProfileID              uuid.UUID `gorm:"type:uuid;not null;index" json:"profile_id"`
	PayoutPaymentMethodID  uuid.UUID `gorm:"type:uuid;not null" json:"payout_payment_method_id"`
	Amount                 int64     `gorm:"type:bigint;not null" json:"amount"`
	ProcessingFee          int64     `gorm:"type:bigint;not null" json:"processing_fee"`
	Status                 string    `gorm:"size:20;not null;default:'initialized'" json:"status"`
	ExternalTransactionRef *string   `gorm:"size:255" json:"external_transaction_ref,omitempty"`
	Error                  *string   `gorm:"type:text" json:"error,omitempty"`

	Profile             User                `gorm:"foreignkey:ProfileID" json:"-"`
	PayoutPaymentMethod PayoutPaymentMethod `gorm:"foreignkey:PayoutPaymentMethodID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InFlight reports whether the record still holds the single in-flight payout
// slot for its profile.
func (r *PayoutRecord) InFlight() bool {
	switch r.Status {
	case PayoutStatusInitialized, PayoutStatusSubmitted, PayoutStatusPending:
		return true
	}
	return false
}
