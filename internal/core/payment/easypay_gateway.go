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

// EasypayGateway talks to the EasyPay invoicing API (Fawry rails).
type EasypayGateway struct {
	baseURL       string
	apiKey        string
	merchantCode  string
	invoiceExpiry time.Duration
	client        *http.Client
}

func NewEasypayGateway(baseURL, apiKey, merchantCode string, invoiceExpiry time.Duration) *EasypayGateway {
	if invoiceExpiry <= 0 {
		invoiceExpiry = 48 * time.Hour
	}
	return &EasypayGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		merchantCode:  merchantCode,
		invoiceExpiry: invoiceExpiry,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *EasypayGateway) Name() models.PaymentProvider {
	return models.ProviderEasypay
}

func (g *EasypayGateway) CreateInvoice(ctx context.Context, order *models.Order, amount float64) (*Invoice, error) {
	payload := map[string]interface{}{
		"merchant_code": g.merchantCode,
		"amount":        amount,
		"currency":      "EGP",
		"reference":     order.OrderNumber,
		"expiry_ms":     g.invoiceExpiry.Milliseconds(),
	}
	if order.Address != nil {
		payload["customer_name"] = order.Address.Name
		payload["customer_phone"] = order.Address.Phone
		payload["customer_email"] = order.Address.Email
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			InvoiceUID      string `json:"invoice_uid"`
			InvoiceSequence string `json:"invoice_sequence"`
			FawryRef        string `json:"fawry_ref"`
			PaymentURL      string `json:"payment_url"`
		} `json:"data"`
	}
	raw, err := g.do(ctx, http.MethodPost, "/api/invoices", payload, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, gatewayErr(models.ProviderEasypay, "invoice creation rejected: %s", resp.Error)
	}

	log.Info().
		Str("order_number", order.OrderNumber).
		Str("invoice_uid", resp.Data.InvoiceUID).
		Str("fawry_ref", resp.Data.FawryRef).
		Msg("EasyPay invoice created")

	return &Invoice{
		ID:         resp.Data.InvoiceUID,
		Ref:        resp.Data.InvoiceSequence,
		PaymentURL: resp.Data.PaymentURL,
		Raw:        raw,
	}, nil
}

func (g *EasypayGateway) CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error) {
	if order.EasypayInvoiceUID == "" || order.EasypayInvoiceSequence == "" {
		return nil, ErrNoInvoice
	}

	path := "/api/invoices/" + order.EasypayInvoiceUID + "/" + order.EasypayInvoiceSequence
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			InvoiceData struct {
				PaymentStatus string `json:"payment_status"`
			} `json:"invoice_data"`
		} `json:"data"`
	}
	raw, err := g.do(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, gatewayErr(models.ProviderEasypay, "status check rejected: %s", resp.Error)
	}

	return &StatusResult{
		PaymentStatus: normalizeEasypayStatus(resp.Data.InvoiceData.PaymentStatus),
		Raw:           raw,
	}, nil
}

// IsExpired checks the configured expiry window, then the payment status the
// last stored payload reported.
func (g *EasypayGateway) IsExpired(order *models.Order, now time.Time) bool {
	if order.EasypayInvoiceUID == "" || order.EasypayCreatedAt == nil {
		return true
	}
	if now.After(order.EasypayCreatedAt.Add(g.invoiceExpiry)) {
		return true
	}

	var data struct {
		InvoiceDetails struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"invoice_details"`
	}
	if len(order.EasypayData) > 0 {
		if err := json.Unmarshal(order.EasypayData, &data); err == nil {
			if terminalStatus(strings.ToLower(data.InvoiceDetails.PaymentStatus)) {
				return true
			}
		}
	}
	return false
}

func (g *EasypayGateway) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (map[string]interface{}, error) {
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
	req.Header.Set("X-Api-Key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, gatewayErr(models.ProviderEasypay, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayErr(models.ProviderEasypay, "unexpected status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, gatewayErr(models.ProviderEasypay, "invalid response: %v", err)
	}
	encoded, _ := json.Marshal(raw)
	if err := json.Unmarshal(encoded, out); err != nil {
		return nil, gatewayErr(models.ProviderEasypay, "invalid response shape: %v", err)
	}
	return raw, nil
}

func normalizeEasypayStatus(status string) string {
	switch strings.ToLower(status) {
	case "paid":
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

var _ Gateway = (*EasypayGateway)(nil)
