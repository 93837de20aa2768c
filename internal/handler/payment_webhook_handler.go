package handler

import (
	"errors"
	"io"
	"net/http"

	"eqhuma/internal/domain"
	"eqhuma/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentWebhookHandler struct {
	reconciler *service.Reconciler
}

func NewPaymentWebhookHandler(reconciler *service.Reconciler) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{reconciler: reconciler}
}

// Handle processes POST /webhooks/:provider. The provider is acknowledged
// quickly; reconciliation problems are never surfaced as delivery failures
// except a bad signature, which is always rejected.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	err = h.reconciler.Process(c.Request.Context(), c.Param("provider"), c.Request.Header, body, c.ClientIP())
	switch {
	case errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
	case errors.Is(err, domain.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
