package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string

	// Payment gateways
	ActivePaymentMethod  string // "shakeout" or "easypay"
	ShakeoutBaseURL      string
	ShakeoutAPIKey       string
	EasypayBaseURL       string
	EasypayAPIKey        string
	EasypayMerchantCode  string
	EasypayInvoiceExpiry time.Duration

	// Khazenly fulfillment
	KhazenlyBaseURL      string
	KhazenlyClientID     string
	KhazenlySecret       string
	KhazenlyRefreshToken string
	KhazenlyStoreName    string
	FulfillmentRetry     bool

	// Notification providers
	WhatsAppAPIURL string
	WhatsAppAPIKey string
	SMSAPIURL      string
	SMSAPIKey      string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		Port:                 os.Getenv("PORT"),
		Env:                  os.Getenv("ENV"),
		ActivePaymentMethod:  os.Getenv("ACTIVE_PAYMENT_METHOD"),
		ShakeoutBaseURL:      os.Getenv("SHAKEOUT_BASE_URL"),
		ShakeoutAPIKey:       os.Getenv("SHAKEOUT_API_KEY"),
		EasypayBaseURL:       os.Getenv("EASYPAY_BASE_URL"),
		EasypayAPIKey:        os.Getenv("EASYPAY_API_KEY"),
		EasypayMerchantCode:  os.Getenv("EASYPAY_MERCHANT_CODE"),
		KhazenlyBaseURL:      os.Getenv("KHAZENLY_BASE_URL"),
		KhazenlyClientID:     os.Getenv("KHAZENLY_CLIENT_ID"),
		KhazenlySecret:       os.Getenv("KHAZENLY_SECRET"),
		KhazenlyRefreshToken: os.Getenv("KHAZENLY_REFRESH_TOKEN"),
		KhazenlyStoreName:    os.Getenv("KHAZENLY_STORE_NAME"),
		WhatsAppAPIURL:       os.Getenv("WHATSAPP_API_URL"),
		WhatsAppAPIKey:       os.Getenv("WHATSAPP_API_KEY"),
		SMSAPIURL:            os.Getenv("SMS_API_URL"),
		SMSAPIKey:            os.Getenv("SMS_API_KEY"),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ActivePaymentMethod == "" {
		cfg.ActivePaymentMethod = "shakeout"
	}

	// EasyPay invoice expiry is configured in milliseconds, default 48h.
	expiryMs := int64(172800000)
	if raw := os.Getenv("EASYPAY_PAYMENT_EXPIRY"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			expiryMs = parsed
		}
	}
	cfg.EasypayInvoiceExpiry = time.Duration(expiryMs) * time.Millisecond

	if raw := os.Getenv("FULFILLMENT_RETRY"); raw != "" {
		cfg.FulfillmentRetry, _ = strconv.ParseBool(raw)
	}

	return cfg
}
