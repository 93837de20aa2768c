package router

import (
	"log"
	"os"

	"eqhuma/config"
	"eqhuma/internal/handler"
	"eqhuma/internal/middleware"
	"eqhuma/internal/repository"
	"eqhuma/internal/service"
	"eqhuma/pkg/payment"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Repositories
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Provider adapters. A provider with no credentials stays unregistered;
	// payments routed to it fail fast rather than half-configured.
	providers := payment.Registry{}
	if cfg.Conekta.APIKey != "" {
		providers["conekta"] = payment.NewConektaProvider(cfg.Conekta.BaseURL, cfg.Conekta.APIKey, cfg.Conekta.WebhookSecret)
	} else {
		log.Printf("[providers] conekta disabled: set CONEKTA_API_KEY to enable")
	}
	if cfg.MercadoPago.AccessToken != "" {
		providers["mercadopago"] = payment.NewMercadoPagoProvider(cfg.MercadoPago.BaseURL, cfg.MercadoPago.AccessToken, cfg.MercadoPago.WebhookSecret)
	} else {
		log.Printf("[providers] mercadopago disabled: set MERCADOPAGO_ACCESS_TOKEN to enable")
	}
	if cfg.STP.PrivateKeyPath != "" && cfg.STP.PublicKeyPath != "" {
		signKey, err := os.ReadFile(cfg.STP.PrivateKeyPath)
		if err != nil {
			log.Printf("[providers] stp disabled: %v", err)
		} else if verifyKey, err := os.ReadFile(cfg.STP.PublicKeyPath); err != nil {
			log.Printf("[providers] stp disabled: %v", err)
		} else if stp, err := payment.NewSTPProvider(cfg.STP.BaseURL, cfg.STP.Company, signKey, verifyKey); err != nil {
			log.Printf("[providers] stp disabled: %v", err)
		} else {
			providers["stp"] = stp
		}
	} else {
		log.Printf("[providers] stp disabled: set STP_PRIVATE_KEY_PATH and STP_PUBLIC_KEY_PATH to enable")
	}
	if cfg.Payment.EnableStub {
		providers["stub"] = payment.NewStubProvider("")
		log.Printf("[providers] stub provider enabled (development)")
	}
	providerOverride := cfg.Payment.ProviderOverride
	if providerOverride != "" {
		if cfg.Server.Env == "production" {
			log.Printf("[providers] PAYMENT_PROVIDER_OVERRIDE ignored in production")
			providerOverride = ""
		} else if providers.Get(providerOverride) == nil {
			log.Printf("[providers] override %q not registered, ignoring", providerOverride)
			providerOverride = ""
		} else {
			log.Printf("[providers] routing every method to %q", providerOverride)
		}
	}

	// Services
	paymentSvc := service.NewPaymentService(paymentRepo, providers, auditRepo, cfg.Payment.RefundWindow, providerOverride)
	reconciler := service.NewReconciler(paymentRepo, providers, auditRepo)

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	webhookHandler := handler.NewPaymentWebhookHandler(reconciler)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		payments := api.Group("/payments")
		payments.Use(authMw)
		{
			payments.POST("", paymentHandler.Create)
			payments.GET("", paymentHandler.List)
			payments.GET("/:id", paymentHandler.Get)
			payments.POST("/:id/confirm", paymentHandler.Confirm)
			payments.POST("/:id/refund", paymentHandler.Refund)
			payments.POST("/:id/cancel", paymentHandler.Cancel)
		}

		// One route per provider; no auth, authenticity comes from the
		// provider's own signature scheme.
		api.POST("/webhooks/:provider", webhookHandler.Handle)
	}

	return r
}
