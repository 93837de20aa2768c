package handler

import (
	"errors"
	"net/http"
	"strconv"

	"eqhuma/internal/domain"
	"eqhuma/internal/middleware"
	"eqhuma/internal/service"
	"eqhuma/internal/validation"
	"eqhuma/pkg/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req validation.CreatePayment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.svc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		var verr *validation.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		case payment.IsUnavailable(err):
			resp := gin.H{"error": "payment provider unavailable, retry later"}
			if p != nil {
				resp["payment_id"] = p.PaymentID
			}
			c.JSON(http.StatusServiceUnavailable, resp)
		case payment.IsAuth(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider misconfigured"})
		case payment.IsRejected(err):
			resp := gin.H{"error": "payment rejected by provider"}
			if p != nil {
				resp["payment_id"] = p.PaymentID
				resp["detail"] = p.ErrorMessage
			}
			c.JSON(http.StatusUnprocessableEntity, resp)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "payment create failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_id":             p.PaymentID,
		"status":                 p.Status,
		"provider_client_secret": p.ClientSecret,
		"provider_tracking_key":  p.ProviderTrackingKey,
	})
}

// Confirm handles POST /payments/:id/confirm.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req struct {
		MethodDetails payment.MethodDetails `json:"method_details"`
	}
	// The body is optional: out-of-band methods confirm with no details.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	p, err := h.svc.Confirm(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.MethodDetails)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, domain.ErrAlreadyTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": "payment already terminal", "status": p.Status})
		case errors.Is(err, domain.ErrNoIntent):
			c.JSON(http.StatusConflict, gin.H{"error": "payment has no provider intent, retry create", "status": p.Status})
		case payment.IsUnavailable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider unavailable, retry later", "status": p.Status})
		case payment.IsRejected(err):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment rejected by provider", "status": p.Status})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "confirm failed"})
		}
		return
	}
	c.JSON(http.StatusOK, p)
}

// Get handles GET /payments/:id, reading through to the provider while the
// payment is in flight.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.svc.GetStatus(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Refund handles POST /payments/:id/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req struct {
		AmountCents int64  `json:"amount_cents"`
		Reason      string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}
	refund, err := h.svc.Refund(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.AmountCents, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, domain.ErrNotRefundable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment not refundable"})
		case payment.IsUnavailable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider unavailable, retry later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		}
		return
	}
	c.JSON(http.StatusOK, refund)
}

// Cancel handles POST /payments/:id/cancel for records that never reached
// the provider.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	p, err := h.svc.Cancel(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, domain.ErrAlreadyTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": "payment cannot be cancelled", "status": p.Status})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		}
		return
	}
	c.JSON(http.StatusOK, p)
}

// List handles GET /payments for the authenticated caller.
func (h *PaymentHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.svc.List(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}
