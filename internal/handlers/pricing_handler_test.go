package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPricingRepo struct {
	repositories.PricingRepo
	activated []uuid.UUID
}

func (s *stubPricingRepo) ActivateOverTaxConfig(_ context.Context, id uuid.UUID) error {
	s.activated = append(s.activated, id)
	return nil
}

func TestActivateOverTaxRoute(t *testing.T) {
	repo := &stubPricingRepo{}
	h := NewPricingHandler(repo)

	app := fiber.New()
	app.Post("/over-tax/:id/activate", h.ActivateOverTax)

	id := uuid.New()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/over-tax/"+id.String()+"/activate", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, repo.activated, 1)
	assert.Equal(t, id, repo.activated[0])

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/over-tax/not-a-uuid/activate", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Len(t, repo.activated, 1)
}
