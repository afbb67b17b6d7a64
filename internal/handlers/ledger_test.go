package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyka/internal/models"
	"loyka/internal/repositories"
	"loyka/internal/services/card"
	"loyka/internal/services/ledger"
	"loyka/internal/services/points"
)

func newTestApp(t *testing.T) (*fiber.App, *repositories.MemoryStore) {
	t.Helper()

	store := repositories.NewMemoryStore()
	engine := ledger.NewService(store, points.MustDefaultPolicy(), card.NewIssuer(), nil, ledger.Config{}, nil, nil)
	h := NewLedgerHandler(engine)

	app := fiber.New()
	app.Post("/api/v1/accounts/:id/transactions", h.ProcessTransaction)
	app.Get("/api/v1/accounts/:id", h.GetAccount)
	app.Get("/api/v1/accounts/:id/transactions", h.GetHistory)
	app.Get("/api/v1/accounts/:id/card", h.GetActiveCard)
	app.Post("/api/v1/accounts/:id/card/revoke", h.RevokeCard)
	return app, store
}

func seedAccount(t *testing.T, store *repositories.MemoryStore, blocked bool) *models.GuestRestaurantAccount {
	t.Helper()
	guest := &models.Guest{Phone: "+15550002222", Name: "Guest", Verified: true, Blocked: blocked}
	require.NoError(t, store.CreateGuest(guest))
	account := models.NewAccount(guest.ID, 1, "REGULAR")
	require.NoError(t, store.CreateAccount(account))
	return account
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestProcessTransactionEndpoint(t *testing.T) {
	app, store := newTestApp(t)
	account := seedAccount(t, store, false)

	resp := postJSON(t, app, fmt.Sprintf("/api/v1/accounts/%d/transactions", account.ID), fiber.Map{
		"type":   models.TransactionTypeSale,
		"amount": 1000,
		"pos_id": "pos-1",
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, float64(1000), tx["new_balance"])
}

func TestProcessTransactionEndpointErrors(t *testing.T) {
	app, store := newTestApp(t)
	account := seedAccount(t, store, false)
	blocked := seedAccount(t, store, true)

	tests := []struct {
		name       string
		path       string
		body       fiber.Map
		wantStatus int
		wantCode   string
	}{
		{
			name:       "negative amount",
			path:       fmt.Sprintf("/api/v1/accounts/%d/transactions", account.ID),
			body:       fiber.Map{"type": models.TransactionTypeSale, "amount": -5},
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown account",
			path:       "/api/v1/accounts/999/transactions",
			body:       fiber.Map{"type": models.TransactionTypeSale, "amount": 10},
			wantStatus: fiber.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "blocked guest",
			path:       fmt.Sprintf("/api/v1/accounts/%d/transactions", blocked.ID),
			body:       fiber.Map{"type": models.TransactionTypeSale, "amount": 10},
			wantStatus: fiber.StatusForbidden,
			wantCode:   "GUEST_BLOCKED",
		},
		{
			name:       "malformed id",
			path:       "/api/v1/accounts/abc/transactions",
			body:       fiber.Map{"type": models.TransactionTypeSale, "amount": 10},
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeBody(t, resp)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestProcessTransactionEndpointFailFast(t *testing.T) {
	app, store := newTestApp(t)
	account := seedAccount(t, store, false)

	unlock := store.LockAccount(account.ID)
	defer unlock()

	resp := postJSON(t, app,
		fmt.Sprintf("/api/v1/accounts/%d/transactions?wait=false", account.ID),
		fiber.Map{"type": models.TransactionTypeSale, "amount": 10})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "CONCURRENT_MODIFICATION", body["code"])
	assert.Equal(t, true, body["retryable"])
}

func TestGetAccountAndHistoryEndpoints(t *testing.T) {
	app, store := newTestApp(t)
	account := seedAccount(t, store, false)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, app, fmt.Sprintf("/api/v1/accounts/%d/transactions", account.ID), fiber.Map{
			"type":   models.TransactionTypeSale,
			"amount": 100,
			"pos_id": fmt.Sprintf("pos-%d", i),
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", account.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	acct := body["account"].(map[string]interface{})
	assert.Equal(t, float64(300), acct["balance_points"])

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d/transactions?page=1&limit=2", account.ID), nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Len(t, body["transactions"], 2)
}

func TestActiveCardEndpoints(t *testing.T) {
	app, store := newTestApp(t)
	account := seedAccount(t, store, false)

	// no card before the first settlement
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d/card", account.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	postJSON(t, app, fmt.Sprintf("/api/v1/accounts/%d/transactions", account.ID), fiber.Map{
		"type": models.TransactionTypeSale, "amount": 100, "pos_id": "pos-1",
	})

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d/card", account.ID), nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	firstToken := body["card"].(map[string]interface{})["qr_token"].(string)
	assert.NotEmpty(t, firstToken)

	resp = postJSON(t, app, fmt.Sprintf("/api/v1/accounts/%d/card/revoke", account.ID), fiber.Map{
		"reason": "lost phone",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.NotEqual(t, firstToken, body["card"].(map[string]interface{})["qr_token"])
}
