package models

import "time"

// ProcessedWebhookEvent is the append-only dedup ledger for provider webhook
// deliveries. One row per externally-assigned event id, inserted in the same
// transaction as the state transition it sealed.
type ProcessedWebhookEvent struct {
	ID        string    `gorm:"size:255;primary_key" json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
