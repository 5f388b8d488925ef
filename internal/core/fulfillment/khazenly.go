package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrFulfillment marks logistics-provider failures. By the time fulfillment
// runs, the paid/status change is already committed; callers must surface
// this error rather than swallow it.
var ErrFulfillment = errors.New("fulfillment error")

// Khazenly access tokens are shorter-lived than this in practice; an expired
// cached token is caught by the 401 retry below.
const accessTokenTTL = 50 * time.Minute

// Result is the provider response to a successful order creation.
type Result struct {
	OrderID          string                 `json:"khazenly_order_id"`
	SalesOrderNumber string                 `json:"sales_order_number"`
	OrderNumber      string                 `json:"order_number"`
	Raw              map[string]interface{} `json:"raw,omitempty"`
}

// Client creates logistics orders. The production implementation talks to
// Khazenly; tests substitute a fake.
type Client interface {
	CreateOrder(ctx context.Context, order *models.Order) (*Result, error)
}

// KhazenlyClient is the HTTP client for the Khazenly fulfillment API. It
// authenticates with the OAuth refresh-token grant, caching the access token
// between calls and re-authenticating once on a 401.
type KhazenlyClient struct {
	baseURL      string
	clientID     string
	secret       string
	refreshToken string
	storeName    string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

func NewKhazenlyClient(baseURL, clientID, secret, refreshToken, storeName string) *KhazenlyClient {
	return &KhazenlyClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		secret:       secret,
		refreshToken: refreshToken,
		storeName:    storeName,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// token returns a cached access token, refreshing it through the OAuth token
// endpoint when missing or past its TTL.
func (c *KhazenlyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	form.Set("refresh_token", c.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid token response: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		return "", fmt.Errorf("token refresh rejected (status %d): %s", resp.StatusCode, body.Error)
	}

	c.accessToken = body.AccessToken
	c.tokenExpiry = c.now().Add(accessTokenTTL)
	return c.accessToken, nil
}

func (c *KhazenlyClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func (c *KhazenlyClient) CreateOrder(ctx context.Context, order *models.Order) (*Result, error) {
	lineItems := make([]map[string]interface{}, 0, len(order.Lines))
	for _, line := range order.Lines {
		lineItems = append(lineItems, map[string]interface{}{
			"sku":      line.ProductID.String(),
			"quantity": line.Quantity,
			"size":     line.Size,
			"color":    line.Color,
			"price":    line.PriceAtSale,
		})
	}

	payload := map[string]interface{}{
		"storeName":   c.storeName,
		"orderNumber": order.OrderNumber,
		"lineItems":   lineItems,
	}
	if order.Address != nil {
		payload["customer"] = map[string]interface{}{
			"name":       order.Address.Name,
			"phone":      order.Address.Phone,
			"address":    order.Address.Address,
			"city":       order.Address.City,
			"government": models.GovernmentNames[order.Address.Government],
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFulfillment, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Client-Id", c.clientID)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: request failed: %v", ErrFulfillment, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateToken()
			continue
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: invalid response: %v", ErrFulfillment, decodeErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: unexpected status %d: %v", ErrFulfillment, resp.StatusCode, raw["error"])
		}
		break
	}

	result := &Result{Raw: raw}
	if data, ok := raw["data"].(map[string]interface{}); ok {
		result.OrderID, _ = data["khazenly_order_id"].(string)
		result.SalesOrderNumber, _ = data["sales_order_number"].(string)
		result.OrderNumber, _ = data["order_number"].(string)
	}
	if result.OrderID == "" {
		return nil, fmt.Errorf("%w: response missing order id", ErrFulfillment)
	}

	log.Info().
		Str("order_number", order.OrderNumber).
		Str("khazenly_order_id", result.OrderID).
		Str("sales_order_number", result.SalesOrderNumber).
		Msg("Khazenly order created")

	return result, nil
}

var _ Client = (*KhazenlyClient)(nil)
