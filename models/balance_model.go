package models

import (
	"time"

	"github.com/google/uuid"
)

// Balance is a creator's withdrawable earnings in minor currency units.
// Only revenue crediting increments it and only a submitted payout
// decrements it; it never goes negative.
type Balance struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProfileID uuid.UUID `gorm:"type:uuid;not null;unique" json:"profile_id"`
	Amount    int64     `gorm:"type:bigint;not null;default:0" json:"amount"`
	Currency  string    `gorm:"size:3;not null;default:'USD'" json:"currency"`

	Profile User `gorm:"foreignkey:ProfileID" json:"-"`

	UpdatedAt time.Time `json:"updated_at"`
}
