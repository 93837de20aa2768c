package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eqhuma/internal/domain"
)

// MercadoPagoProvider handles wallet checkout through the Mercado Pago
// payments API.
type MercadoPagoProvider struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	client        *http.Client
}

func NewMercadoPagoProvider(baseURL, accessToken, webhookSecret string) *MercadoPagoProvider {
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}
	return &MercadoPagoProvider{
		BaseURL:       baseURL,
		AccessToken:   accessToken,
		WebhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *MercadoPagoProvider) Name() string { return "mercadopago" }

type mpPayment struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			TicketURL string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

type mpError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

func (p *MercadoPagoProvider) do(ctx context.Context, method, path, idempotencyKey string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return unavailable("mercadopago: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable("mercadopago: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authError("mercadopago: credentials rejected (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return unavailable("mercadopago: %d %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		var e mpError
		_ = json.Unmarshal(respBody, &e)
		return rejected(e.Error, "%s", firstNonEmpty(e.Message, string(respBody)))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return unavailable("mercadopago: bad response body: %v", err)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *MercadoPagoProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	payload := map[string]interface{}{
		"transaction_amount": float64(req.AmountCents) / 100,
		"description":        req.Description,
		"external_reference": req.PaymentID,
		"payment_method_id":  "account_money",
		"payer":              map[string]string{"email": req.Billing.Email},
		"capture":            false,
	}
	var out mpPayment
	if err := p.do(ctx, http.MethodPost, "/v1/payments", req.PaymentID, payload, &out); err != nil {
		return nil, err
	}
	log.Printf("[MERCADOPAGO] payment created id=%d payment_id=%s status=%s", out.ID, req.PaymentID, out.Status)
	return &Intent{
		ProviderPaymentID: strconv.FormatInt(out.ID, 10),
		ClientSecret:      out.PointOfInteraction.TransactionData.TicketURL,
	}, nil
}

func (p *MercadoPagoProvider) Confirm(ctx context.Context, providerPaymentID string, details MethodDetails) (*ChargeResult, error) {
	payload := map[string]interface{}{"capture": true}
	var out mpPayment
	err := p.do(ctx, http.MethodPut, "/v1/payments/"+providerPaymentID, "", payload, &out)
	if err != nil {
		// An already-captured payment rejects the second capture; the retry
		// contract says return the existing result instead.
		if !IsRejected(err) {
			return nil, err
		}
		log.Printf("[MERCADOPAGO] capture of %s rejected, re-reading payment: %v", providerPaymentID, err)
		if err := p.do(ctx, http.MethodGet, "/v1/payments/"+providerPaymentID, "", nil, &out); err != nil {
			return nil, err
		}
	}
	return &ChargeResult{
		ChargeID:  strconv.FormatInt(out.ID, 10),
		RawStatus: out.Status,
		Status:    mapMercadoPagoStatus(out.Status),
	}, nil
}

func (p *MercadoPagoProvider) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	var out mpPayment
	if err := p.do(ctx, http.MethodGet, "/v1/payments/"+providerPaymentID, "", nil, &out); err != nil {
		return "", err
	}
	return mapMercadoPagoStatus(out.Status), nil
}

func (p *MercadoPagoProvider) Refund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error) {
	payload := map[string]interface{}{"amount": float64(amountCents) / 100}
	var out struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/payments/"+chargeID+"/refunds", "", payload, &out); err != nil {
		if IsRejected(err) {
			code, msg := Detail(err)
			return nil, notRefundable(code, "%s", msg)
		}
		return nil, err
	}
	status := domain.StatusProcessing
	if out.Status == "approved" {
		status = domain.StatusCompleted
	}
	return &RefundResult{RefundID: strconv.FormatInt(out.ID, 10), Status: status}, nil
}

// VerifyWebhookSignature checks the x-signature header: "ts=...,v1=..."
// where v1 is the hex HMAC-SHA256 of "id:<data.id>;request-id:<rid>;ts:<ts>;".
func (p *MercadoPagoProvider) VerifyWebhookSignature(header http.Header, body []byte) bool {
	if p.WebhookSecret == "" {
		return false
	}
	var ts, v1 string
	for _, part := range strings.Split(header.Get("x-signature"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	var ev mpWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Data.ID == "" {
		return false
	}
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", ev.Data.ID, header.Get("x-request-id"), ts)
	mac := hmac.New(sha256.New, []byte(p.WebhookSecret))
	mac.Write([]byte(manifest))
	sig, err := hex.DecodeString(v1)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, mac.Sum(nil))
}

type mpWebhookEvent struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ParseWebhookEvent: Mercado Pago notifications carry only the payment id,
// so Status stays empty and the reconciler fetches the current state.
func (p *MercadoPagoProvider) ParseWebhookEvent(body []byte) (*Event, error) {
	var ev mpWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("mercadopago event: %w", err)
	}
	if ev.Data.ID == "" {
		return nil, fmt.Errorf("mercadopago event: missing data.id")
	}
	return &Event{Type: firstNonEmpty(ev.Action, ev.Type), CorrelationKey: ev.Data.ID}, nil
}

// mapMercadoPagoStatus is total over the payment status vocabulary; unknown
// values stay PROCESSING.
func mapMercadoPagoStatus(raw string) string {
	switch raw {
	case "pending", "in_process", "in_mediation", "authorized":
		return domain.StatusProcessing
	case "approved", "accredited":
		return domain.StatusCompleted
	case "rejected":
		return domain.StatusFailed
	case "cancelled":
		return domain.StatusCancelled
	case "refunded", "charged_back":
		return domain.StatusRefunded
	default:
		log.Printf("[MERCADOPAGO] unmapped status %q, treating as PROCESSING", raw)
		return domain.StatusProcessing
	}
}
