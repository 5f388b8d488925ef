package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
)

// Gateway is the per-provider contract for invoice creation, status checks
// and expiry. Implementations never write order state; the Service owns
// persistence so a provider failure leaves no partial state behind.
type Gateway interface {
	Name() models.PaymentProvider

	// CreateInvoice creates a payment invoice for the order total.
	CreateInvoice(ctx context.Context, order *models.Order, amount float64) (*Invoice, error)

	// CheckStatus queries the provider for the invoice state.
	CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error)

	// IsExpired reports whether the order's invoice for this provider is
	// expired or otherwise no longer payable. An order without invoice
	// data counts as expired so a fresh invoice can be created.
	IsExpired(order *models.Order, now time.Time) bool
}

// Invoice is the provider response to a successful invoice creation.
type Invoice struct {
	ID         string                 `json:"invoice_id"`
	Ref        string                 `json:"invoice_ref"`
	PaymentURL string                 `json:"payment_url"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// StatusResult is the provider response to a status check, with the
// provider-specific status normalized.
type StatusResult struct {
	PaymentStatus string                 `json:"payment_status"`
	Raw           map[string]interface{} `json:"raw,omitempty"`
}

// Normalized payment statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

var (
	// ErrInvoiceConflict rejects invoice creation while a non-expired
	// invoice already exists for the order.
	ErrInvoiceConflict = errors.New("order already has an active invoice")

	// ErrNoInvoice is returned by status checks on orders without any
	// gateway invoice.
	ErrNoInvoice = errors.New("no payment invoice found")

	// ErrGateway marks provider-side failures.
	ErrGateway = errors.New("payment gateway error")
)

func gatewayErr(provider models.PaymentProvider, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrGateway, provider, fmt.Sprintf(format, args...))
}

// terminalStatus reports whether a provider status string means the invoice
// can never be paid anymore.
func terminalStatus(status string) bool {
	switch status {
	case "expired", "cancelled", "failed":
		return true
	}
	return false
}

// NormalizeStatus maps a raw provider status onto the shared payment
// statuses. Used by webhook ingress, which receives provider payloads
// without going through a gateway status check.
func NormalizeStatus(provider models.PaymentProvider, status string) string {
	switch provider {
	case models.ProviderShakeout:
		return normalizeShakeoutStatus(status)
	case models.ProviderEasypay:
		return normalizeEasypayStatus(status)
	}
	return status
}
