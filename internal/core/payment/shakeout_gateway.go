package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/rs/zerolog/log"
)

// Shake-out invoices expire 30 days after creation.
const shakeoutExpiryDays = 30

// ShakeoutGateway talks to the Shake-out invoicing API.
type ShakeoutGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewShakeoutGateway(baseURL, apiKey string) *ShakeoutGateway {
	return &ShakeoutGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *ShakeoutGateway) Name() models.PaymentProvider {
	return models.ProviderShakeout
}

func (g *ShakeoutGateway) CreateInvoice(ctx context.Context, order *models.Order, amount float64) (*Invoice, error) {
	payload := map[string]interface{}{
		"amount":    amount,
		"currency":  "EGP",
		"reference": order.OrderNumber,
	}
	if order.Address != nil {
		payload["customer"] = map[string]interface{}{
			"name":  order.Address.Name,
			"phone": order.Address.Phone,
			"email": order.Address.Email,
		}
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			InvoiceID  string `json:"invoice_id"`
			InvoiceRef string `json:"invoice_ref"`
			URL        string `json:"url"`
		} `json:"data"`
	}
	raw, err := g.do(ctx, http.MethodPost, "/api/v1/invoices", payload, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, gatewayErr(models.ProviderShakeout, "invoice creation rejected: %s", resp.Error)
	}

	log.Info().
		Str("order_number", order.OrderNumber).
		Str("invoice_id", resp.Data.InvoiceID).
		Msg("Shake-out invoice created")

	return &Invoice{
		ID:         resp.Data.InvoiceID,
		Ref:        resp.Data.InvoiceRef,
		PaymentURL: resp.Data.URL,
		Raw:        raw,
	}, nil
}

func (g *ShakeoutGateway) CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error) {
	if order.ShakeoutInvoiceID == "" {
		return nil, ErrNoInvoice
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			InvoiceStatus string `json:"invoice_status"`
		} `json:"data"`
	}
	raw, err := g.do(ctx, http.MethodGet, "/api/v1/invoices/"+order.ShakeoutInvoiceID, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, gatewayErr(models.ProviderShakeout, "status check rejected: %s", resp.Error)
	}

	return &StatusResult{
		PaymentStatus: normalizeShakeoutStatus(resp.Data.InvoiceStatus),
		Raw:           raw,
	}, nil
}

// IsExpired checks the fixed 30-day window, then the webhook history stored
// in the invoice payload for terminal statuses.
func (g *ShakeoutGateway) IsExpired(order *models.Order, now time.Time) bool {
	if order.ShakeoutInvoiceID == "" || order.ShakeoutCreatedAt == nil {
		return true
	}
	if now.After(order.ShakeoutCreatedAt.AddDate(0, 0, shakeoutExpiryDays)) {
		return true
	}

	var data struct {
		Webhooks []struct {
			InvoiceStatus string `json:"invoice_status"`
		} `json:"webhooks"`
	}
	if len(order.ShakeoutData) > 0 {
		if err := json.Unmarshal(order.ShakeoutData, &data); err == nil {
			for i := len(data.Webhooks) - 1; i >= 0; i-- {
				if terminalStatus(strings.ToLower(data.Webhooks[i].InvoiceStatus)) {
					return true
				}
			}
		}
	}
	return false
}

func (g *ShakeoutGateway) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (map[string]interface{}, error) {
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, gatewayErr(models.ProviderShakeout, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayErr(models.ProviderShakeout, "unexpected status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&raw); err != nil {
		return nil, gatewayErr(models.ProviderShakeout, "invalid response: %v", err)
	}
	encoded, _ := json.Marshal(raw)
	if err := json.Unmarshal(encoded, out); err != nil {
		return nil, gatewayErr(models.ProviderShakeout, "invalid response shape: %v", err)
	}
	return raw, nil
}

func normalizeShakeoutStatus(status string) string {
	switch strings.ToLower(status) {
	case "paid", "success":
		return StatusPaid
	case "expired":
		return StatusExpired
	case "cancelled":
		return StatusCancelled
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

var _ Gateway = (*ShakeoutGateway)(nil)
