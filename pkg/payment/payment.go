package payment

import (
	"context"
	"net/http"
)

// IntentRequest carries everything an adapter needs to open a payment
// intent with its network. PaymentID is our reference and is sent to the
// provider for correlation.
type IntentRequest struct {
	PaymentID   string
	AmountCents int64
	Currency    string
	Method      string
	Description string
	Billing     BillingDetails
}

type BillingDetails struct {
	Name    string
	Email   string
	Phone   string
	Address string
	// Bank transfer
	BeneficiaryAccount string
	BankCode           string
	// Bill payment
	ServiceType   string
	AgreementCode string
	ReferenceCode string
}

// Intent is the provider-side handle created for a payment. TrackingKey is
// whatever secondary key the network uses for settlement correlation (a
// voucher reference, a receiving CLABE, a clave de rastreo).
type Intent struct {
	ProviderPaymentID string
	TrackingKey       string
	ClientSecret      string
}

// MethodDetails carries the confirmation-time secret for methods that need
// one (a tokenized card). Out-of-band methods confirm with an empty value.
type MethodDetails struct {
	CardToken string `json:"card_token"`
}

// ChargeResult is the outcome of a confirmation. Status is already mapped
// to the canonical vocabulary by the adapter.
type ChargeResult struct {
	ChargeID  string
	RawStatus string
	Status    string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Event is a parsed webhook delivery. CorrelationKey is the provider's own
// key for the payment (external id, tracking key or capture id, depending
// on the network). Status is canonical; empty means the event does not
// carry a status and the current state must be fetched from the provider.
type Event struct {
	Type           string
	CorrelationKey string
	ChargeID       string
	Status         string
}

// Provider is the contract every payment network integration satisfies.
// Status mapping must be total: an unknown provider status maps to
// PROCESSING, never dropped.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// Confirm is idempotent: confirming an already-confirmed intent returns
	// the existing charge instead of erroring.
	Confirm(ctx context.Context, providerPaymentID string, details MethodDetails) (*ChargeResult, error)
	GetStatus(ctx context.Context, providerPaymentID string) (string, error)
	Refund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error)
	// VerifyWebhookSignature is pure and must use constant-time comparison
	// for HMAC schemes.
	VerifyWebhookSignature(header http.Header, body []byte) bool
	ParseWebhookEvent(body []byte) (*Event, error)
}

// Registry holds the configured providers by name.
type Registry map[string]Provider

func (r Registry) Get(name string) Provider {
	return r[name]
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	return names
}
