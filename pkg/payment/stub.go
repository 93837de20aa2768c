package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eqhuma/internal/domain"
)

// StubProvider is a no-op provider for development: intents succeed
// immediately and webhooks are signed with a fixed local secret.
type StubProvider struct {
	Secret string
}

func NewStubProvider(secret string) *StubProvider {
	if secret == "" {
		secret = "stub-secret"
	}
	return &StubProvider{Secret: secret}
}

func (s *StubProvider) Name() string { return "stub" }

func (s *StubProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ref := fmt.Sprintf("stub_%d", time.Now().UnixNano())
	return &Intent{ProviderPaymentID: ref, TrackingKey: ref}, nil
}

func (s *StubProvider) Confirm(ctx context.Context, providerPaymentID string, details MethodDetails) (*ChargeResult, error) {
	return &ChargeResult{
		ChargeID:  providerPaymentID,
		RawStatus: "paid",
		Status:    domain.StatusCompleted,
	}, nil
}

func (s *StubProvider) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	if !strings.HasPrefix(providerPaymentID, "stub_") {
		return "", rejected("unknown_reference", "not a stub payment: %s", providerPaymentID)
	}
	return domain.StatusCompleted, nil
}

func (s *StubProvider) Refund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error) {
	return &RefundResult{
		RefundID: fmt.Sprintf("stubre_%d", time.Now().UnixNano()),
		Status:   domain.StatusCompleted,
	}, nil
}

func (s *StubProvider) VerifyWebhookSignature(header http.Header, body []byte) bool {
	sig, err := hex.DecodeString(header.Get("X-Stub-Signature"))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func (s *StubProvider) ParseWebhookEvent(body []byte) (*Event, error) {
	var ev struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("stub event: %w", err)
	}
	return &Event{Type: "stub." + strings.ToLower(ev.Status), CorrelationKey: ev.Reference, Status: ev.Status}, nil
}
