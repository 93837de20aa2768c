package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"eqhuma/internal/domain"
	"eqhuma/internal/models"
	"eqhuma/pkg/payment"
)

func newReconciler(fp *fakeProvider) (*Reconciler, *fakeStore, *fakeAudit) {
	store := &fakeStore{}
	audit := &fakeAudit{}
	reg := payment.Registry{fp.name: fp}
	return NewReconciler(store, reg, audit), store, audit
}

func processingPayment(provider string) *models.Payment {
	return &models.Payment{
		PaymentID: "pay_1", UserID: 42, AmountCents: 10000, Method: domain.MethodWallet,
		Status: domain.StatusProcessing, Provider: provider, ProviderPaymentID: "12345",
	}
}

func TestReconcilerUnknownProvider(t *testing.T) {
	rec, _, _ := newReconciler(&fakeProvider{name: "conekta", verify: true})
	err := rec.Process(context.Background(), "nope", http.Header{}, []byte(`{}`), "1.2.3.4")
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestReconcilerInvalidSignature(t *testing.T) {
	fp := &fakeProvider{
		name:   "conekta",
		verify: false,
		event:  &payment.Event{CorrelationKey: "12345", Status: domain.StatusCompleted},
	}
	rec, store, audit := newReconciler(fp)
	p := seed(t, store, processingPayment("conekta"))

	err := rec.Process(context.Background(), "conekta", http.Header{}, []byte(`{}`), "1.2.3.4")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusProcessing || len(got.WebhookEvents) != 0 {
		t.Errorf("unverified event must not touch the record: %+v", got)
	}
	rejected := false
	for _, a := range audit.actions() {
		if a == "webhook_signature_rejected" {
			rejected = true
		}
	}
	if !rejected {
		t.Errorf("rejection not audited: %v", audit.actions())
	}
}

func TestReconcilerCompletesPayment(t *testing.T) {
	fp := &fakeProvider{
		name:   "mercadopago",
		verify: true,
		event:  &payment.Event{Type: "payment.updated", CorrelationKey: "12345", Status: domain.StatusCompleted},
	}
	rec, store, audit := newReconciler(fp)
	p := seed(t, store, processingPayment("mercadopago"))

	if err := rec.Process(context.Background(), "mercadopago", http.Header{}, []byte(`{"x":1}`), "1.2.3.4"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
	if len(got.WebhookEvents) != 1 {
		t.Errorf("events = %d, want 1", len(got.WebhookEvents))
	}
	completed := false
	for _, a := range audit.actions() {
		if a == "payment_completed" {
			completed = true
		}
	}
	if !completed {
		t.Errorf("completion not audited: %v", audit.actions())
	}
}

// A thin notification has no status; the reconciler must fetch it.
func TestReconcilerThinEventFetchesStatus(t *testing.T) {
	fp := &fakeProvider{
		name:   "mercadopago",
		verify: true,
		event:  &payment.Event{Type: "payment.updated", CorrelationKey: "12345"},
		status: domain.StatusCompleted,
	}
	rec, store, _ := newReconciler(fp)
	p := seed(t, store, processingPayment("mercadopago"))

	if err := rec.Process(context.Background(), "mercadopago", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if fp.statusGets != 1 {
		t.Errorf("status fetched %d times, want 1", fp.statusGets)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
}

func TestReconcilerThinEventFetchFailureAcked(t *testing.T) {
	fp := &fakeProvider{
		name:      "mercadopago",
		verify:    true,
		event:     &payment.Event{Type: "payment.updated", CorrelationKey: "12345"},
		statusErr: &payment.Error{Kind: payment.KindUnavailable, Message: "timeout"},
	}
	rec, store, _ := newReconciler(fp)
	p := seed(t, store, processingPayment("mercadopago"))

	if err := rec.Process(context.Background(), "mercadopago", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
		t.Fatalf("fetch failure must be acknowledged: %v", err)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusProcessing {
		t.Errorf("Status = %s, want PROCESSING", got.Status)
	}
	// The delivery itself is still recorded.
	if len(got.WebhookEvents) != 1 {
		t.Errorf("events = %d, want 1", len(got.WebhookEvents))
	}
}

func TestReconcilerDuplicateDelivery(t *testing.T) {
	fp := &fakeProvider{
		name:   "conekta",
		verify: true,
		event:  &payment.Event{Type: "order.paid", CorrelationKey: "12345", ChargeID: "ch_1", Status: domain.StatusCompleted},
	}
	rec, store, _ := newReconciler(fp)
	p := seed(t, store, processingPayment("conekta"))

	for i := 0; i < 2; i++ {
		if err := rec.Process(context.Background(), "conekta", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %s", got.Status)
	}
	// Both deliveries recorded, one effective transition.
	if len(got.WebhookEvents) != 2 {
		t.Errorf("events = %d, want 2", len(got.WebhookEvents))
	}
	completedWrites := 0
	for _, a := range got.Attempts {
		if a.Status == domain.StatusCompleted {
			completedWrites++
		}
	}
	if completedWrites != 1 {
		t.Errorf("COMPLETED written %d times, want 1", completedWrites)
	}
}

// A delayed PROCESSING event arriving after completion must not regress
// the record.
func TestReconcilerStaleEventIgnored(t *testing.T) {
	fp := &fakeProvider{
		name:   "conekta",
		verify: true,
		event:  &payment.Event{Type: "order.pending_payment", CorrelationKey: "12345", Status: domain.StatusProcessing},
	}
	rec, store, _ := newReconciler(fp)
	p := processingPayment("conekta")
	p.Status = domain.StatusCompleted
	seed(t, store, p)

	if err := rec.Process(context.Background(), "conekta", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("stale event regressed status to %s", got.Status)
	}
	if len(got.WebhookEvents) != 1 {
		t.Errorf("stale delivery must still be recorded, events = %d", len(got.WebhookEvents))
	}
}

func TestReconcilerUnmatchedKeyAcked(t *testing.T) {
	fp := &fakeProvider{
		name:   "conekta",
		verify: true,
		event:  &payment.Event{Type: "order.paid", CorrelationKey: "someone-elses-order", Status: domain.StatusCompleted},
	}
	rec, _, _ := newReconciler(fp)
	if err := rec.Process(context.Background(), "conekta", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
		t.Errorf("unmatched key must be acknowledged, got %v", err)
	}
}

func TestReconcilerUnparseableAcked(t *testing.T) {
	fp := &fakeProvider{name: "conekta", verify: true, event: nil}
	rec, _, _ := newReconciler(fp)
	if err := rec.Process(context.Background(), "conekta", http.Header{}, []byte(`garbage`), "1.2.3.4"); err != nil {
		t.Errorf("unparseable event must be acknowledged, got %v", err)
	}
}

// Correlation works against the tracking key too (voucher references,
// claves de rastreo).
func TestReconcilerMatchesTrackingKey(t *testing.T) {
	fp := &fakeProvider{
		name:   "stp",
		verify: true,
		event:  &payment.Event{Type: "orden.lq", CorrelationKey: "EQH20240101T0001", ChargeID: "EQH20240101T0001", Status: domain.StatusCompleted},
	}
	rec, store, _ := newReconciler(fp)
	p := &models.Payment{
		PaymentID: "pay_1", UserID: 42, AmountCents: 10000, Method: domain.MethodBillPayment,
		Status: domain.StatusProcessing, Provider: "stp",
		ProviderPaymentID: "987654", ProviderTrackingKey: "EQH20240101T0001",
	}
	seed(t, store, p)

	if err := rec.Process(context.Background(), "stp", http.Header{}, []byte(`{}`), "1.2.3.4"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetByPaymentID(p.PaymentID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
	if got.ProviderChargeID != "EQH20240101T0001" {
		t.Errorf("charge id not captured from event: %q", got.ProviderChargeID)
	}
}
