package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutPaymentMethod identifies where a creator's funds are sent. Receiver is
// the provider-specific destination (for PayPal, the receiver email).
type PayoutPaymentMethod struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProfileID uuid.UUID `gorm:"type:uuid;not null" json:"profile_id"`
	Provider  string    `gorm:"size:50;not null" json:"provider"`
	Country   string    `gorm:"size:2;not null" json:"country"`
	Receiver  string    `gorm:"size:255;not null" json:"receiver"`

	Profile User `gorm:"foreignkey:ProfileID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
