package payment

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eqhuma/internal/domain"
)

// STPProvider handles bill payments settled over the domestic interbank
// transfer network. Every request carries an RSA-SHA256 signature over the
// pipe-delimited original string; inbound notifications are verified
// against the network's public key.
type STPProvider struct {
	BaseURL   string
	Company   string
	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey
	client    *http.Client
}

func NewSTPProvider(baseURL, company string, signKeyPEM, verifyKeyPEM []byte) (*STPProvider, error) {
	if baseURL == "" {
		baseURL = "https://prod.stpmex.com/speiws/rest"
	}
	signKey, err := parseRSAPrivateKey(signKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("stp sign key: %w", err)
	}
	verifyKey, err := parseRSAPublicKey(verifyKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("stp verify key: %w", err)
	}
	return &STPProvider{
		BaseURL:   baseURL,
		Company:   company,
		signKey:   signKey,
		verifyKey: verifyKey,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key")
	}
	return key, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key")
	}
	return key, nil
}

func (p *STPProvider) Name() string { return "stp" }

// sign builds the original string ("||f1|f2|...||") and signs it.
func (p *STPProvider) sign(fields ...string) (string, error) {
	cadena := "||" + strings.Join(fields, "|") + "||"
	digest := sha256.Sum256([]byte(cadena))
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.signKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

type stpResult struct {
	Resultado struct {
		ID               int64  `json:"id"`
		DescripcionError string `json:"descripcionError"`
	} `json:"resultado"`
}

func (p *STPProvider) do(ctx context.Context, path string, payload, out interface{}) error {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return unavailable("stp: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable("stp: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authError("stp: signature rejected (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return unavailable("stp: %d %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		return rejected("", "stp: %d %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return unavailable("stp: bad response body: %v", err)
		}
	}
	return nil
}

// newTrackingKey builds a clave de rastreo: company prefix, date, and a
// short random suffix, alphanumeric, under 30 chars.
func (p *STPProvider) newTrackingKey() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("EQH%s%X", time.Now().Format("20060102150405"), buf)[:29]
}

func (p *STPProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.Method != domain.MethodBillPayment {
		return nil, rejected("unsupported_method", "stp does not handle %s", req.Method)
	}
	claveRastreo := p.newTrackingKey()
	monto := fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100)
	concepto := req.Billing.ServiceType + " " + req.Billing.ReferenceCode
	firma, err := p.sign(p.Company, claveRastreo, monto, req.Billing.AgreementCode, req.Billing.ReferenceCode)
	if err != nil {
		return nil, authError("stp: signing failed: %v", err)
	}
	payload := map[string]interface{}{
		"empresa":            p.Company,
		"claveRastreo":       claveRastreo,
		"monto":              monto,
		"conceptoPago":       concepto,
		"convenio":           req.Billing.AgreementCode,
		"referenciaNumerica": req.Billing.ReferenceCode,
		"nombreBeneficiario": req.Billing.Name,
		"firma":              firma,
	}
	var out stpResult
	if err := p.do(ctx, "/ordenPago/registra", payload, &out); err != nil {
		return nil, err
	}
	if out.Resultado.ID <= 0 {
		return nil, rejected("", "stp: registra rejected: %s", out.Resultado.DescripcionError)
	}
	log.Printf("[STP] orden registered id=%d clave_rastreo=%s payment_id=%s", out.Resultado.ID, claveRastreo, req.PaymentID)
	return &Intent{
		ProviderPaymentID: strconv.FormatInt(out.Resultado.ID, 10),
		TrackingKey:       claveRastreo,
	}, nil
}

// Confirm on the interbank network is a read: orders settle asynchronously
// and the registra call is the only write. Retries are therefore idempotent.
func (p *STPProvider) Confirm(ctx context.Context, providerPaymentID string, details MethodDetails) (*ChargeResult, error) {
	estado, raw, err := p.consulta(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{ChargeID: raw.ClaveRastreo, RawStatus: estado, Status: mapSTPStatus(estado)}, nil
}

type stpOrden struct {
	Estado       string `json:"estado"`
	ClaveRastreo string `json:"claveRastreo"`
}

func (p *STPProvider) consulta(ctx context.Context, providerPaymentID string) (string, *stpOrden, error) {
	firma, err := p.sign(p.Company, providerPaymentID)
	if err != nil {
		return "", nil, authError("stp: signing failed: %v", err)
	}
	payload := map[string]interface{}{"empresa": p.Company, "id": providerPaymentID, "firma": firma}
	var out struct {
		OrdenPago stpOrden `json:"ordenPago"`
	}
	if err := p.do(ctx, "/ordenPago/consultaOrden", payload, &out); err != nil {
		return "", nil, err
	}
	return out.OrdenPago.Estado, &out.OrdenPago, nil
}

func (p *STPProvider) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	estado, _, err := p.consulta(ctx, providerPaymentID)
	if err != nil {
		return "", err
	}
	return mapSTPStatus(estado), nil
}

// Refund files a devolución for a settled order. The network refuses
// devolutions outside its window or for already-returned orders.
func (p *STPProvider) Refund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error) {
	monto := fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)
	firma, err := p.sign(p.Company, chargeID, monto)
	if err != nil {
		return nil, authError("stp: signing failed: %v", err)
	}
	payload := map[string]interface{}{
		"empresa":         p.Company,
		"claveRastreo":    chargeID,
		"monto":           monto,
		"causaDevolucion": reason,
		"firma":           firma,
	}
	var out stpResult
	if err := p.do(ctx, "/ordenPago/devolucion", payload, &out); err != nil {
		if IsRejected(err) {
			code, msg := Detail(err)
			return nil, notRefundable(code, "%s", msg)
		}
		return nil, err
	}
	if out.Resultado.ID <= 0 {
		return nil, notRefundable("", "stp: devolucion rejected: %s", out.Resultado.DescripcionError)
	}
	return &RefundResult{
		RefundID: strconv.FormatInt(out.Resultado.ID, 10),
		Status:   domain.StatusProcessing,
	}, nil
}

// VerifyWebhookSignature verifies the network's RSA-SHA256 signature over
// the raw body, sent base64-encoded in X-Stp-Firma.
func (p *STPProvider) VerifyWebhookSignature(header http.Header, body []byte) bool {
	sig, err := base64.StdEncoding.DecodeString(header.Get("X-Stp-Firma"))
	if err != nil || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256(body)
	return rsa.VerifyPKCS1v15(p.verifyKey, crypto.SHA256, digest[:], sig) == nil
}

type stpWebhookEvent struct {
	ID           int64  `json:"id"`
	ClaveRastreo string `json:"claveRastreo"`
	Estado       string `json:"estado"`
	TipoOrden    string `json:"tipoOrden"`
}

func (p *STPProvider) ParseWebhookEvent(body []byte) (*Event, error) {
	var ev stpWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("stp event: %w", err)
	}
	if ev.ClaveRastreo == "" {
		return nil, fmt.Errorf("stp event: missing claveRastreo")
	}
	return &Event{
		Type:           "orden." + strings.ToLower(ev.Estado),
		CorrelationKey: ev.ClaveRastreo,
		ChargeID:       ev.ClaveRastreo,
		Status:         mapSTPStatus(ev.Estado),
	}, nil
}

// mapSTPStatus is total over the network's order states; unknown states
// stay PROCESSING.
func mapSTPStatus(raw string) string {
	switch raw {
	case "CP", "PL", "A", "TR", "XC":
		return domain.StatusProcessing
	case "LQ":
		return domain.StatusCompleted
	case "D", "DV":
		return domain.StatusFailed
	case "CN", "CXO":
		return domain.StatusCancelled
	default:
		log.Printf("[STP] unmapped estado %q, treating as PROCESSING", raw)
		return domain.StatusProcessing
	}
}
