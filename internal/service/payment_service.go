package service

import (
	"context"
	"log"
	"time"

	"eqhuma/internal/domain"
	"eqhuma/internal/models"
	"eqhuma/internal/validation"
	"eqhuma/pkg/payment"

	"github.com/google/uuid"
)

// PaymentStore is the durable-store surface the orchestrator and the
// reconciler write through. Implemented by repository.PaymentRepository.
type PaymentStore interface {
	Create(p *models.Payment) error
	GetByPaymentID(paymentID string) (*models.Payment, error)
	GetByProviderKey(provider, key string) (*models.Payment, error)
	ListByUser(userID uint, limit, offset int) ([]models.Payment, error)
	SetProviderRefs(p *models.Payment, providerPaymentID, trackingKey string) error
	SetChargeID(p *models.Payment, chargeID string) error
	ApplyStatus(p *models.Payment, to, errCode, errMsg string) (bool, error)
	AppendWebhookEvent(ev *models.WebhookEvent) error
	AddRefund(p *models.Payment, refund *models.Refund) error
}

type AuditStore interface {
	Create(entry *models.AuditLog) error
}

// methodProviders routes a payment method to the adapter that owns it.
// Adapter selection happens here and nowhere else.
var methodProviders = map[string]string{
	domain.MethodCard:         "conekta",
	domain.MethodCashVoucher:  "conekta",
	domain.MethodBankTransfer: "conekta",
	domain.MethodWallet:       "mercadopago",
	domain.MethodBillPayment:  "stp",
}

// PaymentService orchestrates the payment lifecycle: it validates requests,
// selects the adapter, persists the record and maps adapter outcomes into
// the canonical state machine.
type PaymentService struct {
	store        PaymentStore
	providers    payment.Registry
	audit        AuditStore
	refundWindow time.Duration
	// providerOverride routes every method to one provider, bypassing
	// methodProviders. Development only (stub runs).
	providerOverride string
}

func NewPaymentService(store PaymentStore, providers payment.Registry, audit AuditStore, refundWindow time.Duration, providerOverride string) *PaymentService {
	if refundWindow <= 0 {
		refundWindow = 180 * 24 * time.Hour
	}
	return &PaymentService{
		store:            store,
		providers:        providers,
		audit:            audit,
		refundWindow:     refundWindow,
		providerOverride: providerOverride,
	}
}

func (s *PaymentService) providerFor(p *models.Payment) payment.Provider {
	return s.providers.Get(p.Provider)
}

// getOwned resolves a record for a caller. Someone else's payment answers
// exactly like a missing one, before any provider call can run.
func (s *PaymentService) getOwned(userID uint, paymentID string) (*models.Payment, error) {
	p, err := s.store.GetByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// Create validates, persists a PENDING record, then opens the provider
// intent. A rejected intent moves the record to FAILED but keeps it for
// audit; an unavailable provider leaves it PENDING so the caller can retry.
func (s *PaymentService) Create(ctx context.Context, userID uint, req *validation.CreatePayment) (*models.Payment, error) {
	if err := validation.ValidateCreate(req); err != nil {
		return nil, err
	}
	providerName := methodProviders[req.Method]
	if s.providerOverride != "" {
		providerName = s.providerOverride
	}
	prov := s.providers.Get(providerName)
	if prov == nil {
		return nil, domain.ErrUnknownProvider
	}

	p := &models.Payment{
		PaymentID:          "pay_" + uuid.New().String(),
		UserID:             userID,
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
		Method:             req.Method,
		PurposeType:        req.Purpose.Type,
		PurposeItemID:      req.Purpose.ItemID,
		Status:             domain.StatusPending,
		Provider:           providerName,
		BillingName:        req.Billing.Name,
		BillingEmail:       req.Billing.Email,
		BillingPhone:       req.Billing.Phone,
		BillingAddress:     req.Billing.Address,
		BeneficiaryAccount: req.Billing.BeneficiaryAccount,
		BankCode:           req.Billing.BankCode,
		ServiceType:        req.Billing.ServiceType,
		AgreementCode:      req.Billing.AgreementCode,
		ReferenceCode:      req.Billing.ReferenceCode,
		Attempts:           []models.PaymentAttempt{{Status: domain.StatusPending}},
	}
	if err := s.store.Create(p); err != nil {
		return nil, err
	}

	intent, err := prov.CreateIntent(ctx, payment.IntentRequest{
		PaymentID:   p.PaymentID,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Method:      p.Method,
		Description: req.Description,
		Billing: payment.BillingDetails{
			Name:               p.BillingName,
			Email:              p.BillingEmail,
			Phone:              p.BillingPhone,
			Address:            p.BillingAddress,
			BeneficiaryAccount: p.BeneficiaryAccount,
			BankCode:           p.BankCode,
			ServiceType:        p.ServiceType,
			AgreementCode:      p.AgreementCode,
			ReferenceCode:      p.ReferenceCode,
		},
	})
	if err != nil {
		if payment.IsUnavailable(err) {
			// True state unknown: keep the record PENDING for a retry.
			log.Printf("[payments] %s intent unavailable for %s: %v", providerName, p.PaymentID, err)
			return p, err
		}
		code, msg := payment.Detail(err)
		if _, aerr := s.store.ApplyStatus(p, domain.StatusFailed, code, msg); aerr != nil {
			log.Printf("[payments] mark failed %s: %v", p.PaymentID, aerr)
		}
		if payment.IsAuth(err) {
			log.Printf("[payments] ALERT: %s credentials rejected, integration misconfigured", providerName)
			s.auditLog(&p.UserID, "provider_auth_failure", p.PaymentID, providerName)
		}
		return p, err
	}

	if err := s.store.SetProviderRefs(p, intent.ProviderPaymentID, intent.TrackingKey); err != nil {
		return p, err
	}
	if _, err := s.store.ApplyStatus(p, domain.StatusProcessing, "", ""); err != nil {
		return p, err
	}
	p.ClientSecret = intent.ClientSecret
	return p, nil
}

// Confirm drives a PROCESSING (or still PENDING) record through the
// adapter's confirm call. Confirming an already COMPLETED record is an
// idempotent success; other terminal states are an error.
func (s *PaymentService) Confirm(ctx context.Context, userID uint, paymentID string, details payment.MethodDetails) (*models.Payment, error) {
	p, err := s.getOwned(userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.StatusCompleted {
		return p, nil
	}
	if domain.IsTerminal(p.Status) {
		return p, domain.ErrAlreadyTerminal
	}
	if p.ProviderPaymentID == "" {
		// Intent creation never succeeded; there is nothing at the provider
		// to confirm. The caller retries create instead.
		return p, domain.ErrNoIntent
	}
	prov := s.providerFor(p)
	if prov == nil {
		return p, domain.ErrUnknownProvider
	}

	res, err := prov.Confirm(ctx, p.ProviderPaymentID, details)
	if err != nil {
		switch {
		case payment.IsRejected(err):
			code, msg := payment.Detail(err)
			_, _ = s.store.ApplyStatus(p, domain.StatusFailed, code, msg)
		case payment.IsAuth(err):
			log.Printf("[payments] ALERT: %s credentials rejected during confirm", p.Provider)
			s.auditLog(&p.UserID, "provider_auth_failure", p.PaymentID, p.Provider)
		default:
			// Unavailable (timeout included): true state unknown, leave the
			// record as-is for a later poll or webhook.
			log.Printf("[payments] confirm unavailable for %s: %v", p.PaymentID, err)
		}
		return p, err
	}

	if res.ChargeID != "" {
		if err := s.store.SetChargeID(p, res.ChargeID); err != nil {
			return p, err
		}
	}
	changed, err := s.store.ApplyStatus(p, res.Status, "", "")
	if err != nil {
		return p, err
	}
	if changed && res.Status == domain.StatusCompleted {
		s.auditLog(&p.UserID, "payment_completed", p.PaymentID, p.Provider)
	}
	return p, nil
}

// GetStatus returns the record, reading through to the adapter while the
// payment is still in flight. Safe to call arbitrarily often.
func (s *PaymentService) GetStatus(ctx context.Context, userID uint, paymentID string) (*models.Payment, error) {
	p, err := s.getOwned(userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusProcessing {
		return p, nil
	}
	prov := s.providerFor(p)
	if prov == nil {
		return p, nil
	}
	st, err := prov.GetStatus(ctx, p.ProviderPaymentID)
	if err != nil {
		// Poll failures never corrupt the record.
		log.Printf("[payments] poll %s failed: %v", p.PaymentID, err)
		return p, nil
	}
	changed, err := s.store.ApplyStatus(p, st, "", "")
	if err != nil {
		return p, err
	}
	if changed && st == domain.StatusCompleted {
		s.auditLog(&p.UserID, "payment_completed", p.PaymentID, p.Provider)
	}
	return p, nil
}

// Refund applies a full or partial refund to a COMPLETED record. The
// remaining-balance invariant is re-checked inside the store's serialized
// insert, so concurrent refunds cannot overshoot the paid amount.
func (s *PaymentService) Refund(ctx context.Context, userID uint, paymentID string, amountCents int64, reason string) (*models.Refund, error) {
	p, err := s.getOwned(userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusCompleted {
		return nil, domain.ErrNotRefundable
	}
	if !domain.MethodRefundable(p.Method) {
		return nil, domain.ErrNotRefundable
	}
	if p.CompletedAt != nil && time.Since(*p.CompletedAt) > s.refundWindow {
		return nil, domain.ErrNotRefundable
	}
	remaining := p.AmountCents - p.RefundedCents()
	if amountCents <= 0 {
		amountCents = remaining
	}
	if amountCents > remaining || remaining <= 0 {
		return nil, domain.ErrNotRefundable
	}
	prov := s.providerFor(p)
	if prov == nil {
		return nil, domain.ErrUnknownProvider
	}

	chargeRef := p.ProviderChargeID
	if chargeRef == "" {
		chargeRef = p.ProviderPaymentID
	}
	res, err := prov.Refund(ctx, chargeRef, amountCents, reason)
	if err != nil {
		if payment.IsNotRefundable(err) {
			return nil, domain.ErrNotRefundable
		}
		return nil, err
	}

	refund := &models.Refund{
		RefundID:         "re_" + uuid.New().String(),
		ProviderRefundID: res.RefundID,
		AmountCents:      amountCents,
		Reason:           reason,
		Status:           res.Status,
	}
	if res.Status == domain.StatusCompleted {
		now := time.Now()
		refund.ProcessedAt = &now
	}
	if err := s.store.AddRefund(p, refund); err != nil {
		return nil, err
	}
	s.auditLog(&p.UserID, "payment_refunded", p.PaymentID, p.Provider)

	if p.RefundedCents() >= p.AmountCents {
		if _, err := s.store.ApplyStatus(p, domain.StatusRefunded, "", ""); err != nil {
			log.Printf("[payments] mark refunded %s: %v", p.PaymentID, err)
		}
	}
	return refund, nil
}

// Cancel abandons a record that never reached the provider. Only PENDING
// records may be cancelled by the caller; everything later is driven by
// provider state.
func (s *PaymentService) Cancel(ctx context.Context, userID uint, paymentID string) (*models.Payment, error) {
	p, err := s.getOwned(userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending {
		return p, domain.ErrAlreadyTerminal
	}
	if _, err := s.store.ApplyStatus(p, domain.StatusCancelled, "", ""); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PaymentService) List(userID uint, limit, offset int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByUser(userID, limit, offset)
}

func (s *PaymentService) auditLog(userID *uint, action, resourceID, metadata string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Create(&models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: resourceID,
		Metadata:   metadata,
	})
}
