package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PayoutModeAutomatic = "automatic"
	PayoutModeManual    = "manual"
)

// PayoutSchedule is the creator-owned payout configuration. Read-only to the
// payout subsystem. Threshold and MaxPayoutAmount are in minor units; a zero
// MaxPayoutAmount falls back to the platform-wide ceiling.
type PayoutSchedule struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProfileID       uuid.UUID `gorm:"type:uuid;not null;unique" json:"profile_id"`
	Mode            string    `gorm:"size:20;not null;default:'manual'" json:"mode"`
	Threshold       int64     `gorm:"type:bigint;not null;default:0" json:"threshold"`
	MaxPayoutAmount int64     `gorm:"type:bigint;not null;default:0" json:"max_payout_amount"`

	Profile User `gorm:"foreignkey:ProfileID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
