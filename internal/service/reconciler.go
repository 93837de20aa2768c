package service

import (
	"context"
	"log"
	"net/http"
	"time"

	"eqhuma/internal/domain"
	"eqhuma/internal/models"
	"eqhuma/pkg/payment"
)

// Reconciler applies inbound provider events to payment records. Events
// race against synchronous confirmation and active polling; all three
// paths converge on the store's monotonic status write, so arrival order
// does not matter.
type Reconciler struct {
	store     PaymentStore
	providers payment.Registry
	audit     AuditStore
}

func NewReconciler(store PaymentStore, providers payment.Registry, audit AuditStore) *Reconciler {
	return &Reconciler{store: store, providers: providers, audit: audit}
}

// Process handles one webhook delivery. Only two outcomes are surfaced to
// the provider: unknown provider and invalid signature. Everything else is
// acknowledged so the provider's retry policy is not triggered by a local
// processing problem.
func (r *Reconciler) Process(ctx context.Context, providerName string, header http.Header, body []byte, remoteIP string) error {
	prov := r.providers.Get(providerName)
	if prov == nil {
		return domain.ErrUnknownProvider
	}

	if !prov.VerifyWebhookSignature(header, body) {
		log.Printf("[webhook] %s signature rejected from %s", providerName, remoteIP)
		if r.audit != nil {
			_ = r.audit.Create(&models.AuditLog{
				Action:     "webhook_signature_rejected",
				Resource:   "webhook",
				ResourceID: providerName,
				IP:         remoteIP,
			})
		}
		return domain.ErrInvalidSignature
	}

	ev, err := prov.ParseWebhookEvent(body)
	if err != nil {
		// Authentic but unparseable: log and acknowledge.
		log.Printf("[webhook] %s unparseable event: %v", providerName, err)
		return nil
	}

	p, err := r.store.GetByProviderKey(providerName, ev.CorrelationKey)
	if err != nil {
		log.Printf("[webhook] %s lookup %s failed: %v", providerName, ev.CorrelationKey, err)
		return nil
	}
	if p == nil {
		// Possibly a payment we never created, or the event outran the
		// create call's write. Tolerated.
		log.Printf("[webhook] %s no payment for key %s, acknowledging", providerName, ev.CorrelationKey)
		return nil
	}

	// Record the raw event before applying it, duplicates included.
	if err := r.store.AppendWebhookEvent(&models.WebhookEvent{
		PaymentRecordID: p.ID,
		Provider:        providerName,
		EventType:       ev.Type,
		RawPayload:      string(body),
		ReceivedAt:      time.Now(),
	}); err != nil {
		log.Printf("[webhook] %s append event for %s failed: %v", providerName, p.PaymentID, err)
		return nil
	}

	if ev.ChargeID != "" && p.ProviderChargeID == "" {
		if err := r.store.SetChargeID(p, ev.ChargeID); err != nil {
			log.Printf("[webhook] %s set charge id for %s failed: %v", providerName, p.PaymentID, err)
		}
	}

	status := ev.Status
	if status == "" {
		// Thin notification: fetch the current state from the provider.
		status, err = prov.GetStatus(ctx, p.ProviderPaymentID)
		if err != nil {
			log.Printf("[webhook] %s status fetch for %s failed: %v", providerName, p.PaymentID, err)
			return nil
		}
	}

	changed, err := r.store.ApplyStatus(p, status, "", "")
	if err != nil {
		log.Printf("[webhook] %s apply %s to %s failed: %v", providerName, status, p.PaymentID, err)
		return nil
	}
	if changed {
		log.Printf("[webhook] %s payment %s -> %s (event %s)", providerName, p.PaymentID, status, ev.Type)
		if status == domain.StatusCompleted && r.audit != nil {
			_ = r.audit.Create(&models.AuditLog{
				UserID:     &p.UserID,
				Action:     "payment_completed",
				Resource:   "payment",
				ResourceID: p.PaymentID,
				IP:         remoteIP,
			})
		}
	}
	return nil
}
