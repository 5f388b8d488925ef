package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// TotalCalculator computes the amount an invoice is created for.
type TotalCalculator interface {
	FinalTotal(ctx context.Context, order *models.Order) (float64, error)
}

// Service owns the invoice lifecycle across providers: creation with
// conflict/expiry handling, status checks and webhook payload recording.
type Service struct {
	gateways        map[models.PaymentProvider]Gateway
	orders          repositories.OrderRepo
	totals          TotalCalculator
	defaultProvider models.PaymentProvider
}

func NewService(orders repositories.OrderRepo, totals TotalCalculator, defaultProvider models.PaymentProvider, gateways ...Gateway) *Service {
	reg := make(map[models.PaymentProvider]Gateway, len(gateways))
	for _, g := range gateways {
		reg[g.Name()] = g
	}
	return &Service{
		gateways:        reg,
		orders:          orders,
		totals:          totals,
		defaultProvider: defaultProvider,
	}
}

// CreateInvoice creates an invoice with the named provider, or the default
// when provider is empty. An unexpired existing invoice is a conflict; an
// expired one is cleared before the new invoice is created. Gateway failures
// leave the order untouched.
func (s *Service) CreateInvoice(ctx context.Context, order *models.Order, provider models.PaymentProvider) (*Invoice, error) {
	if provider == "" {
		provider = s.defaultProvider
	}
	gateway, ok := s.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrGateway, provider)
	}

	now := time.Now()
	if s.hasInvoice(order, provider) {
		if !gateway.IsExpired(order, now) {
			return nil, fmt.Errorf("%w: provider %s", ErrInvoiceConflict, provider)
		}
		log.Info().
			Str("order_number", order.OrderNumber).
			Str("provider", string(provider)).
			Msg("existing invoice expired, clearing before re-invoicing")
		if err := s.clearInvoice(ctx, order, provider); err != nil {
			return nil, err
		}
	}

	amount, err := s.totals.FinalTotal(ctx, order)
	if err != nil {
		return nil, err
	}

	invoice, err := gateway.CreateInvoice(ctx, order, amount)
	if err != nil {
		return nil, err
	}

	if err := s.storeInvoice(ctx, order, provider, invoice, now); err != nil {
		return nil, err
	}
	return invoice, nil
}

// CheckStatus queries the authoritative provider; when the order names no
// provider, whichever gateway holds invoice data is probed.
func (s *Service) CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error) {
	provider, ok := order.ActiveInvoiceProvider()
	if !ok {
		return nil, ErrNoInvoice
	}
	gateway, registered := s.gateways[provider]
	if !registered {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrGateway, provider)
	}
	return gateway.CheckStatus(ctx, order)
}

// IsExpired reports whether the order's authoritative invoice is expired.
func (s *Service) IsExpired(order *models.Order, now time.Time) bool {
	provider, ok := order.ActiveInvoiceProvider()
	if !ok {
		return true
	}
	gateway, registered := s.gateways[provider]
	if !registered {
		return true
	}
	return gateway.IsExpired(order, now)
}

// RecordWebhook appends a webhook payload to the provider's stored invoice
// data so later expiry checks can see terminal statuses.
func (s *Service) RecordWebhook(ctx context.Context, order *models.Order, provider models.PaymentProvider, payload map[string]interface{}) error {
	switch provider {
	case models.ProviderShakeout:
		var data map[string]interface{}
		if len(order.ShakeoutData) > 0 {
			if err := json.Unmarshal(order.ShakeoutData, &data); err != nil {
				data = nil
			}
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		webhooks, _ := data["webhooks"].([]interface{})
		data["webhooks"] = append(webhooks, payload)
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		order.ShakeoutData = datatypes.JSON(encoded)
		return s.orders.PatchFields(ctx, order.ID, map[string]interface{}{"shakeout_data": order.ShakeoutData})

	case models.ProviderEasypay:
		var data map[string]interface{}
		if len(order.EasypayData) > 0 {
			if err := json.Unmarshal(order.EasypayData, &data); err != nil {
				data = nil
			}
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		data["invoice_details"] = payload
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		order.EasypayData = datatypes.JSON(encoded)
		return s.orders.PatchFields(ctx, order.ID, map[string]interface{}{"easypay_data": order.EasypayData})
	}
	return fmt.Errorf("%w: unknown provider %q", ErrGateway, provider)
}

func (s *Service) hasInvoice(order *models.Order, provider models.PaymentProvider) bool {
	switch provider {
	case models.ProviderShakeout:
		return order.ShakeoutInvoiceID != ""
	case models.ProviderEasypay:
		return order.EasypayInvoiceUID != ""
	}
	return false
}

func (s *Service) clearInvoice(ctx context.Context, order *models.Order, provider models.PaymentProvider) error {
	var fields map[string]interface{}
	switch provider {
	case models.ProviderShakeout:
		order.ShakeoutInvoiceID = ""
		order.ShakeoutInvoiceRef = ""
		order.ShakeoutData = nil
		order.ShakeoutCreatedAt = nil
		fields = map[string]interface{}{
			"shakeout_invoice_id":  "",
			"shakeout_invoice_ref": "",
			"shakeout_data":        nil,
			"shakeout_created_at":  nil,
		}
	case models.ProviderEasypay:
		order.EasypayInvoiceUID = ""
		order.EasypayInvoiceSequence = ""
		order.EasypayFawryRef = ""
		order.EasypayData = nil
		order.EasypayCreatedAt = nil
		fields = map[string]interface{}{
			"easypay_invoice_uid":      "",
			"easypay_invoice_sequence": "",
			"easypay_fawry_ref":        "",
			"easypay_data":             nil,
			"easypay_created_at":       nil,
		}
	}
	return s.orders.PatchFields(ctx, order.ID, fields)
}

func (s *Service) storeInvoice(ctx context.Context, order *models.Order, provider models.PaymentProvider, invoice *Invoice, createdAt time.Time) error {
	raw, err := json.Marshal(invoice.Raw)
	if err != nil {
		return err
	}

	var fields map[string]interface{}
	switch provider {
	case models.ProviderShakeout:
		order.ShakeoutInvoiceID = invoice.ID
		order.ShakeoutInvoiceRef = invoice.Ref
		order.ShakeoutData = datatypes.JSON(raw)
		order.ShakeoutCreatedAt = &createdAt
		fields = map[string]interface{}{
			"shakeout_invoice_id":  invoice.ID,
			"shakeout_invoice_ref": invoice.Ref,
			"shakeout_data":        order.ShakeoutData,
			"shakeout_created_at":  createdAt,
		}
	case models.ProviderEasypay:
		order.EasypayInvoiceUID = invoice.ID
		order.EasypayInvoiceSequence = invoice.Ref
		order.EasypayData = datatypes.JSON(raw)
		order.EasypayCreatedAt = &createdAt
		fields = map[string]interface{}{
			"easypay_invoice_uid":      invoice.ID,
			"easypay_invoice_sequence": invoice.Ref,
			"easypay_data":             order.EasypayData,
			"easypay_created_at":       createdAt,
		}
		if fawry, ok := invoice.Raw["data"].(map[string]interface{}); ok {
			if ref, ok := fawry["fawry_ref"].(string); ok && ref != "" {
				order.EasypayFawryRef = ref
				fields["easypay_fawry_ref"] = ref
			}
		}
	}

	gw := provider
	order.PaymentGateway = &gw
	fields["payment_gateway"] = string(provider)
	return s.orders.PatchFields(ctx, order.ID, fields)
}
