package models

import "time"

// Refund is one (possibly partial) reversal of a completed payment.
// RefundID is unique so a retried refund insert cannot be recorded twice.
type Refund struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	PaymentRecordID  uint       `gorm:"not null;index" json:"-"`
	RefundID         string     `gorm:"size:64;uniqueIndex;not null" json:"refund_id"`
	ProviderRefundID string     `gorm:"size:255" json:"provider_refund_id,omitempty"`
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`
	Reason           string     `gorm:"size:255" json:"reason"`
	Status           string     `gorm:"size:20;not null" json:"status"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (Refund) TableName() string {
	return "refunds"
}
