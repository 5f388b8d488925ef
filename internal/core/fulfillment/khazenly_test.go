package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func khazenlyOrder() *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:          orderID,
		OrderNumber: "12345678901234567890",
		Lines: []models.OrderLine{{
			ID:        uuid.New(),
			OrderID:   &orderID,
			ProductID: uuid.New(),
			Quantity:  2,
			Size:      "M",
		}},
		Address: &models.OrderAddress{Name: "Ali", Phone: "01001234567", Government: "1", City: "Cairo"},
	}
}

func writeOrderResponse(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"khazenly_order_id":  "KH-77",
			"sales_order_number": "SO-77",
			"order_number":       "12345678901234567890",
		},
	})
}

func TestKhazenlyClientCachesAccessToken(t *testing.T) {
	var tokenCalls int
	var seenAuth []string

	mux := http.NewServeMux()
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "cid", r.FormValue("client_id"))
		assert.Equal(t, "rt", r.FormValue("refresh_token"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))
		writeOrderResponse(w)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewKhazenlyClient(server.URL, "cid", "secret", "rt", "store")

	result, err := client.CreateOrder(context.Background(), khazenlyOrder())
	require.NoError(t, err)
	assert.Equal(t, "KH-77", result.OrderID)
	assert.Equal(t, "SO-77", result.SalesOrderNumber)

	_, err = client.CreateOrder(context.Background(), khazenlyOrder())
	require.NoError(t, err)

	assert.Equal(t, 1, tokenCalls, "second call reuses the cached token")
	require.Len(t, seenAuth, 2)
	assert.Equal(t, "Bearer tok-1", seenAuth[0])
	assert.Equal(t, "Bearer tok-1", seenAuth[1])
}

func TestKhazenlyClientReauthenticatesOnUnauthorized(t *testing.T) {
	var tokenCalls, orderCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"access_token": fmt.Sprintf("tok-%d", tokenCalls)})
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		orderCalls++
		// the first token is treated as a stale session
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid session"})
			return
		}
		writeOrderResponse(w)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewKhazenlyClient(server.URL, "cid", "secret", "rt", "store")

	result, err := client.CreateOrder(context.Background(), khazenlyOrder())
	require.NoError(t, err)
	assert.Equal(t, "KH-77", result.OrderID)
	assert.Equal(t, 2, tokenCalls)
	assert.Equal(t, 2, orderCalls)
}

func TestKhazenlyClientSurfacesTokenRefusal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewKhazenlyClient(server.URL, "cid", "secret", "rt", "store")

	_, err := client.CreateOrder(context.Background(), khazenlyOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFulfillment)
}
