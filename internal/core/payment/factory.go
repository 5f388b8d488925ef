package payment

import (
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/Ahmed3117/silverbook/internal/shared/config"
	"github.com/rs/zerolog/log"
)

// NewServiceFromConfig builds the payment service with both gateways
// registered and the configured one as default.
func NewServiceFromConfig(cfg *config.Config, orders repositories.OrderRepo, totals TotalCalculator) *Service {
	shakeout := NewShakeoutGateway(cfg.ShakeoutBaseURL, cfg.ShakeoutAPIKey)
	easypay := NewEasypayGateway(cfg.EasypayBaseURL, cfg.EasypayAPIKey, cfg.EasypayMerchantCode, cfg.EasypayInvoiceExpiry)

	defaultProvider := models.PaymentProvider(cfg.ActivePaymentMethod)
	switch defaultProvider {
	case models.ProviderShakeout, models.ProviderEasypay:
	default:
		log.Warn().
			Str("active_payment_method", cfg.ActivePaymentMethod).
			Msg("unknown payment method, defaulting to shakeout")
		defaultProvider = models.ProviderShakeout
	}

	return NewService(orders, totals, defaultProvider, shakeout, easypay)
}
