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
	"time"

	"eqhuma/internal/domain"
)

// ConektaProvider handles card, OXXO cash-voucher and SPEI bank-transfer
// payments through the Conekta order API.
type ConektaProvider struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	client        *http.Client
}

func NewConektaProvider(baseURL, apiKey, webhookSecret string) *ConektaProvider {
	if baseURL == "" {
		baseURL = "https://api.conekta.io"
	}
	return &ConektaProvider{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ConektaProvider) Name() string { return "conekta" }

// conektaMethodTypes maps our method names onto Conekta charge types.
var conektaMethodTypes = map[string]string{
	domain.MethodCard:         "card",
	domain.MethodCashVoucher:  "oxxo_cash",
	domain.MethodBankTransfer: "spei",
}

type conektaChargePayload struct {
	PaymentMethod struct {
		Type    string `json:"type"`
		TokenID string `json:"token_id,omitempty"`
	} `json:"payment_method"`
}

type conektaOrderReq struct {
	Currency     string            `json:"currency"`
	Amount       int64             `json:"amount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CustomerInfo struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone,omitempty"`
	} `json:"customer_info"`
	Charges []conektaChargePayload `json:"charges"`
}

type conektaCharge struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod struct {
		Type      string `json:"type"`
		Reference string `json:"reference"`
		Clabe     string `json:"clabe"`
	} `json:"payment_method"`
}

type conektaOrder struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	Checkout      struct {
		ID string `json:"id"`
	} `json:"checkout"`
	Charges struct {
		Data []conektaCharge `json:"data"`
	} `json:"charges"`
}

type conektaErrorResp struct {
	Details []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"details"`
}

func (p *ConektaProvider) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return unavailable("conekta: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.conekta-v2.1.0+json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable("conekta: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authError("conekta: credentials rejected (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return unavailable("conekta: %d %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		var e conektaErrorResp
		_ = json.Unmarshal(respBody, &e)
		if len(e.Details) > 0 {
			return rejected(e.Details[0].Code, "%s", e.Details[0].Message)
		}
		return rejected("", "conekta: %d %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return unavailable("conekta: bad response body: %v", err)
		}
	}
	return nil
}

func (p *ConektaProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	chargeType, ok := conektaMethodTypes[req.Method]
	if !ok {
		return nil, rejected("unsupported_method", "conekta does not handle %s", req.Method)
	}
	payload := conektaOrderReq{
		Currency: req.Currency,
		Amount:   req.AmountCents,
		Metadata: map[string]string{"payment_id": req.PaymentID},
	}
	payload.CustomerInfo.Name = req.Billing.Name
	payload.CustomerInfo.Email = req.Billing.Email
	payload.CustomerInfo.Phone = req.Billing.Phone
	// Card charges need a token, created at confirm time; the intent opens
	// the order only. Vouchers and transfers get their charge now so the
	// payment reference exists for the customer.
	if chargeType != "card" {
		var ch conektaChargePayload
		ch.PaymentMethod.Type = chargeType
		payload.Charges = append(payload.Charges, ch)
	}
	var order conektaOrder
	if err := p.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	intent := &Intent{ProviderPaymentID: order.ID, ClientSecret: order.Checkout.ID}
	if len(order.Charges.Data) > 0 {
		pm := order.Charges.Data[0].PaymentMethod
		if pm.Reference != "" {
			intent.TrackingKey = pm.Reference
		} else if pm.Clabe != "" {
			intent.TrackingKey = pm.Clabe
		}
	}
	log.Printf("[CONEKTA] order created id=%s method=%s payment_id=%s", order.ID, chargeType, req.PaymentID)
	return intent, nil
}

func (p *ConektaProvider) Confirm(ctx context.Context, providerPaymentID string, details MethodDetails) (*ChargeResult, error) {
	// Out-of-band methods (oxxo, spei) already carry their charge; a card
	// confirm attaches the tokenized card. Either way a retry after timeout
	// must land on the existing charge, so a rejection falls back to a read.
	if details.CardToken != "" {
		var ch conektaChargePayload
		ch.PaymentMethod.Type = "card"
		ch.PaymentMethod.TokenID = details.CardToken
		var out conektaCharge
		err := p.do(ctx, http.MethodPost, "/orders/"+providerPaymentID+"/charges", ch, &out)
		if err == nil {
			return &ChargeResult{ChargeID: out.ID, RawStatus: out.Status, Status: mapConektaStatus(out.Status)}, nil
		}
		if !IsRejected(err) {
			return nil, err
		}
		log.Printf("[CONEKTA] charge on %s rejected, re-reading order: %v", providerPaymentID, err)
	}
	var order conektaOrder
	if err := p.do(ctx, http.MethodGet, "/orders/"+providerPaymentID, nil, &order); err != nil {
		return nil, err
	}
	res := &ChargeResult{RawStatus: order.PaymentStatus, Status: mapConektaStatus(order.PaymentStatus)}
	if len(order.Charges.Data) > 0 {
		res.ChargeID = order.Charges.Data[0].ID
	}
	return res, nil
}

func (p *ConektaProvider) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	var order conektaOrder
	if err := p.do(ctx, http.MethodGet, "/orders/"+providerPaymentID, nil, &order); err != nil {
		return "", err
	}
	return mapConektaStatus(order.PaymentStatus), nil
}

type conektaRefundResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (p *ConektaProvider) Refund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error) {
	payload := map[string]interface{}{"amount": amountCents, "reason": reason}
	var out conektaRefundResp
	if err := p.do(ctx, http.MethodPost, "/charges/"+chargeID+"/refunds", payload, &out); err != nil {
		if IsRejected(err) {
			code, msg := Detail(err)
			return nil, notRefundable(code, "%s", msg)
		}
		return nil, err
	}
	status := domain.StatusProcessing
	if out.Status == "refunded" || out.Status == "succeeded" {
		status = domain.StatusCompleted
	}
	return &RefundResult{RefundID: out.ID, Status: status}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 digest Conekta sends
// over the raw body.
func (p *ConektaProvider) VerifyWebhookSignature(header http.Header, body []byte) bool {
	if p.WebhookSecret == "" {
		return false
	}
	sig, err := hex.DecodeString(header.Get("X-Conekta-Signature"))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(p.WebhookSecret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

type conektaEvent struct {
	Type string `json:"type"`
	Data struct {
		Object conektaOrder `json:"object"`
	} `json:"data"`
}

func (p *ConektaProvider) ParseWebhookEvent(body []byte) (*Event, error) {
	var ev conektaEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("conekta event: %w", err)
	}
	if ev.Data.Object.ID == "" {
		return nil, fmt.Errorf("conekta event: missing order id")
	}
	out := &Event{
		Type:           ev.Type,
		CorrelationKey: ev.Data.Object.ID,
		Status:         mapConektaStatus(ev.Data.Object.PaymentStatus),
	}
	if len(ev.Data.Object.Charges.Data) > 0 {
		out.ChargeID = ev.Data.Object.Charges.Data[0].ID
	}
	return out, nil
}

// mapConektaStatus is total over Conekta's order payment_status vocabulary;
// anything unknown stays PROCESSING so a later poll or event can settle it.
func mapConektaStatus(raw string) string {
	switch raw {
	case "pending_payment", "charge_pending", "pre_authorized", "partially_paid":
		return domain.StatusProcessing
	case "paid":
		return domain.StatusCompleted
	case "declined", "expired", "charged_back":
		return domain.StatusFailed
	case "canceled", "voided":
		return domain.StatusCancelled
	case "refunded":
		return domain.StatusRefunded
	default:
		log.Printf("[CONEKTA] unmapped payment_status %q, treating as PROCESSING", raw)
		return domain.StatusProcessing
	}
}
