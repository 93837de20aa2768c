package repository

import (
	"errors"
	"time"

	"eqhuma/internal/domain"
	"eqhuma/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByPaymentID(paymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Preload("Attempts").Preload("WebhookEvents").Preload("Refunds").
		Where("payment_id = ?", paymentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByProviderKey locates a record by whatever correlation key the
// provider put in its event: external payment id, tracking key or charge id.
func (r *PaymentRepository) GetByProviderKey(provider, key string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Preload("Refunds").
		Where("provider = ? AND (provider_payment_id = ? OR provider_tracking_key = ? OR provider_charge_id = ?)",
			provider, key, key, key).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUser(userID uint, limit, offset int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// SetProviderRefs records the provider-side identifiers issued at intent
// creation. They are set once; an already-populated column is left alone.
func (r *PaymentRepository) SetProviderRefs(p *models.Payment, providerPaymentID, trackingKey string) error {
	err := r.db.Model(&models.Payment{}).
		Where("id = ? AND provider_payment_id = ''", p.ID).
		Updates(map[string]interface{}{
			"provider_payment_id":   providerPaymentID,
			"provider_tracking_key": trackingKey,
		}).Error
	if err != nil {
		return err
	}
	p.ProviderPaymentID = providerPaymentID
	p.ProviderTrackingKey = trackingKey
	return nil
}

func (r *PaymentRepository) SetChargeID(p *models.Payment, chargeID string) error {
	err := r.db.Model(&models.Payment{}).
		Where("id = ? AND provider_charge_id = ''", p.ID).
		Update("provider_charge_id", chargeID).Error
	if err != nil {
		return err
	}
	if p.ProviderChargeID == "" {
		p.ProviderChargeID = chargeID
	}
	return nil
}

// ApplyStatus is the single write path for status transitions. The UPDATE
// is guarded by the set of statuses `to` may overwrite, so two racing
// writers cannot regress the record: whichever lands second becomes a
// no-op unless it still represents forward progress. Returns whether the
// transition took effect; a no-op is not an error.
func (r *PaymentRepository) ApplyStatus(p *models.Payment, to, errCode, errMsg string) (bool, error) {
	priors := domain.PriorStatuses(to)
	if len(priors) == 0 {
		return false, nil
	}
	updates := map[string]interface{}{
		"status":        to,
		"error_code":    errCode,
		"error_message": errMsg,
	}
	if to == domain.StatusCompleted {
		updates["completed_at"] = time.Now()
	}
	res := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", p.ID, priors).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	p.Status = to
	p.ErrorCode = errCode
	p.ErrorMessage = errMsg
	attempt := models.PaymentAttempt{PaymentRecordID: p.ID, Status: to}
	if err := r.db.Create(&attempt).Error; err != nil {
		return true, err
	}
	p.Attempts = append(p.Attempts, attempt)
	return true, nil
}

func (r *PaymentRepository) AppendWebhookEvent(ev *models.WebhookEvent) error {
	return r.db.Create(ev).Error
}

// AddRefund inserts a refund entry while holding a row lock on the parent
// payment, re-checking the refunded total inside the transaction so two
// concurrent refunds cannot overshoot the paid amount. The unique RefundID
// index additionally rejects a double-applied retry.
func (r *PaymentRepository) AddRefund(p *models.Payment, refund *models.Refund) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, p.ID).Error; err != nil {
			return err
		}
		var refunded int64
		err := tx.Model(&models.Refund{}).
			Where("payment_record_id = ? AND status <> ?", p.ID, domain.StatusFailed).
			Select("COALESCE(SUM(amount_cents), 0)").Scan(&refunded).Error
		if err != nil {
			return err
		}
		if refunded+refund.AmountCents > locked.AmountCents {
			return domain.ErrNotRefundable
		}
		refund.PaymentRecordID = p.ID
		if err := tx.Create(refund).Error; err != nil {
			return err
		}
		p.Refunds = append(p.Refunds, *refund)
		return nil
	})
}
