package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"eqhuma/internal/domain"
)

func TestConektaCreateIntentVoucher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key_test" {
			t.Errorf("Authorization = %q", got)
		}
		var req conektaOrderReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Charges) != 1 || req.Charges[0].PaymentMethod.Type != "oxxo_cash" {
			t.Errorf("expected one oxxo_cash charge, got %+v", req.Charges)
		}
		w.Write([]byte(`{"id":"ord_1","payment_status":"pending_payment","charges":{"data":[{"id":"ch_1","status":"pending_payment","payment_method":{"type":"oxxo_cash","reference":"93000123456789"}}]}}`))
	}))
	defer srv.Close()

	p := NewConektaProvider(srv.URL, "key_test", "whsec")
	intent, err := p.CreateIntent(context.Background(), IntentRequest{
		PaymentID:   "pay_1",
		AmountCents: 50000,
		Currency:    "MXN",
		Method:      domain.MethodCashVoucher,
		Billing:     BillingDetails{Name: "Ana", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ProviderPaymentID != "ord_1" {
		t.Errorf("ProviderPaymentID = %q", intent.ProviderPaymentID)
	}
	if intent.TrackingKey != "93000123456789" {
		t.Errorf("TrackingKey = %q", intent.TrackingKey)
	}
}

func TestConektaErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		body   string
		verify func(error) bool
	}{
		{"rejected", 422, `{"details":[{"code":"card_declined","message":"declined"}]}`, IsRejected},
		{"auth", 401, `{}`, IsAuth},
		{"unavailable", 503, `{}`, IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			p := NewConektaProvider(srv.URL, "key_test", "")
			_, err := p.GetStatus(context.Background(), "ord_1")
			if err == nil || !tt.verify(err) {
				t.Errorf("got %v, wrong kind", err)
			}
		})
	}
}

func TestConektaRefundRejectedBecomesNotRefundable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"details":[{"code":"refund_window_expired","message":"too late"}]}`))
	}))
	defer srv.Close()
	p := NewConektaProvider(srv.URL, "key_test", "")
	_, err := p.Refund(context.Background(), "ch_1", 1000, "requested")
	if !IsNotRefundable(err) {
		t.Fatalf("expected NotRefundable, got %v", err)
	}
}

func TestConektaStatusMappingIsTotal(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"pending_payment", domain.StatusProcessing},
		{"charge_pending", domain.StatusProcessing},
		{"paid", domain.StatusCompleted},
		{"declined", domain.StatusFailed},
		{"expired", domain.StatusFailed},
		{"canceled", domain.StatusCancelled},
		{"refunded", domain.StatusRefunded},
		{"some_future_status", domain.StatusProcessing},
		{"", domain.StatusProcessing},
	}
	for _, tt := range tests {
		if got := mapConektaStatus(tt.raw); got != tt.want {
			t.Errorf("mapConektaStatus(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func conektaSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestConektaVerifyWebhookSignature(t *testing.T) {
	p := NewConektaProvider("", "key_test", "whsec")
	body := []byte(`{"type":"order.paid","data":{"object":{"id":"ord_1","payment_status":"paid"}}}`)

	h := http.Header{}
	h.Set("X-Conekta-Signature", conektaSign("whsec", body))
	if !p.VerifyWebhookSignature(h, body) {
		t.Error("valid signature rejected")
	}

	tampered := []byte(`{"type":"order.paid","data":{"object":{"id":"ord_2","payment_status":"paid"}}}`)
	if p.VerifyWebhookSignature(h, tampered) {
		t.Error("tampered body accepted")
	}

	h.Set("X-Conekta-Signature", conektaSign("wrong-secret", body))
	if p.VerifyWebhookSignature(h, body) {
		t.Error("wrong secret accepted")
	}

	h.Set("X-Conekta-Signature", "not-hex")
	if p.VerifyWebhookSignature(h, body) {
		t.Error("malformed signature accepted")
	}

	noSecret := NewConektaProvider("", "key_test", "")
	h.Set("X-Conekta-Signature", conektaSign("", body))
	if noSecret.VerifyWebhookSignature(h, body) {
		t.Error("unconfigured secret must reject")
	}
}

func TestConektaParseWebhookEvent(t *testing.T) {
	p := NewConektaProvider("", "key_test", "whsec")
	body := []byte(`{"type":"order.paid","data":{"object":{"id":"ord_1","payment_status":"paid","charges":{"data":[{"id":"ch_1"}]}}}}`)
	ev, err := p.ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if ev.CorrelationKey != "ord_1" || ev.Status != domain.StatusCompleted || ev.ChargeID != "ch_1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, err := p.ParseWebhookEvent([]byte(`{"type":"ping"}`)); err == nil {
		t.Error("event without order id must fail to parse")
	}
}
