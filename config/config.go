package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Payment     PaymentConfig
	Conekta     ConektaConfig
	MercadoPago MercadoPagoConfig
	STP         STPConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig verifies tokens minted by the platform identity service.
type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type PaymentConfig struct {
	// RefundWindow counts from the payment's completion.
	RefundWindow time.Duration
	// EnableStub registers the local no-op provider, development only.
	EnableStub bool
	// ProviderOverride routes every payment method to the named provider,
	// bypassing the method routing table. Meant for local runs against the
	// stub; ignored in production.
	ProviderOverride string
}

type ConektaConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

type MercadoPagoConfig struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
}

// STPConfig holds the interbank network credentials. The private key signs
// outbound requests; the network's public key verifies its notifications.
type STPConfig struct {
	BaseURL        string
	Company        string
	PrivateKeyPath string
	PublicKeyPath  string
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         env("PORT", "8080"),
			Env:          env("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             env("DATABASE_DSN", "eqhuma:eqhuma@tcp(localhost:3306)/eqhuma?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: env("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: 15 * time.Minute,
			Issuer:       env("JWT_ISSUER", "eqhuma"),
		},
		Payment: PaymentConfig{
			RefundWindow:     180 * 24 * time.Hour,
			EnableStub:       env("APP_ENV", "development") != "production",
			ProviderOverride: env("PAYMENT_PROVIDER_OVERRIDE", ""),
		},
		Conekta: ConektaConfig{
			BaseURL:       env("CONEKTA_BASE_URL", ""),
			APIKey:        env("CONEKTA_API_KEY", ""),
			WebhookSecret: env("CONEKTA_WEBHOOK_SECRET", ""),
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL:       env("MERCADOPAGO_BASE_URL", ""),
			AccessToken:   env("MERCADOPAGO_ACCESS_TOKEN", ""),
			WebhookSecret: env("MERCADOPAGO_WEBHOOK_SECRET", ""),
		},
		STP: STPConfig{
			BaseURL:        env("STP_BASE_URL", ""),
			Company:        env("STP_COMPANY", "EQHUMA"),
			PrivateKeyPath: env("STP_PRIVATE_KEY_PATH", ""),
			PublicKeyPath:  env("STP_PUBLIC_KEY_PATH", ""),
		},
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
