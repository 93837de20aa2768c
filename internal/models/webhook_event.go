package models

import "time"

// WebhookEvent is one verified inbound provider event. Every delivery is
// recorded, duplicates and stale events included, before it is applied.
type WebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	PaymentRecordID uint      `gorm:"not null;index" json:"-"`
	Provider        string    `gorm:"size:30;not null" json:"provider"`
	EventType       string    `gorm:"size:100" json:"event_type"`
	RawPayload      string    `gorm:"type:text" json:"raw_payload"`
	ReceivedAt      time.Time `gorm:"not null" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
