package models

import (
	"time"

	"eqhuma/internal/domain"
)

// Payment is the canonical payment record. PaymentID is the external
// identifier handed to callers; the provider's own identifiers live in the
// Provider* columns and are appended to, never overwritten.
type Payment struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	PaymentID string `gorm:"size:64;uniqueIndex;not null" json:"payment_id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"size:3;not null" json:"currency"`
	Method      string `gorm:"size:20;not null" json:"method"`

	PurposeType   string `gorm:"size:30" json:"purpose_type"`
	PurposeItemID string `gorm:"size:100" json:"purpose_item_id"`

	Status string `gorm:"size:20;not null;index" json:"status"`

	// Provider is bound at creation and never reassigned.
	Provider            string `gorm:"size:30;not null" json:"provider"`
	ProviderPaymentID   string `gorm:"size:255;index" json:"provider_payment_id,omitempty"`
	ProviderTrackingKey string `gorm:"size:255;index" json:"provider_tracking_key,omitempty"`
	ProviderChargeID    string `gorm:"size:255;index" json:"provider_charge_id,omitempty"`

	BillingName    string `gorm:"size:255" json:"billing_name"`
	BillingEmail   string `gorm:"size:255" json:"billing_email"`
	BillingPhone   string `gorm:"size:20" json:"billing_phone,omitempty"`
	BillingAddress string `gorm:"size:512" json:"billing_address,omitempty"`

	// Bank transfer fields: 18-digit CLABE plus 3-digit institution code.
	BeneficiaryAccount string `gorm:"size:18" json:"beneficiary_account,omitempty"`
	BankCode           string `gorm:"size:3" json:"bank_code,omitempty"`

	// Bill payment fields.
	ServiceType   string `gorm:"size:30" json:"service_type,omitempty"`
	AgreementCode string `gorm:"size:10" json:"agreement_code,omitempty"`
	ReferenceCode string `gorm:"size:24" json:"reference_code,omitempty"`

	// Last failure detail, cleared by the next successful transition.
	ErrorCode    string `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage string `gorm:"size:512" json:"error_message,omitempty"`

	// ClientSecret is handed to the caller once at creation and never stored.
	ClientSecret string `gorm:"-" json:"provider_client_secret,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Attempts      []PaymentAttempt `gorm:"foreignKey:PaymentRecordID" json:"attempts,omitempty"`
	WebhookEvents []WebhookEvent   `gorm:"foreignKey:PaymentRecordID" json:"webhook_events,omitempty"`
	Refunds       []Refund         `gorm:"foreignKey:PaymentRecordID" json:"refunds,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

// RefundedCents sums refunds that were not rejected by the provider.
func (p *Payment) RefundedCents() int64 {
	var total int64
	for _, r := range p.Refunds {
		if r.Status != domain.StatusFailed {
			total += r.AmountCents
		}
	}
	return total
}

// PaymentAttempt is one entry of the append-only status transition log.
type PaymentAttempt struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	PaymentRecordID uint      `gorm:"not null;index" json:"-"`
	Status          string    `gorm:"size:20;not null" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}
