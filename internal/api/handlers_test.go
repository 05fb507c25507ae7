package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taverna-be/internal/config"
	"taverna-be/internal/order"
	"taverna-be/internal/payment"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type noopUpdater struct{}

func (noopUpdater) Apply(context.Context, string, payment.Status, map[string]interface{}) error {
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, *config.Config) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:           "https://loja.example.com",
		SecretKey:         "test-secret",
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
		MercadoPago: config.MercadoPagoConfig{
			Enabled:     true,
			AccessToken: "TEST-token",
			PublicKey:   "TEST-pub",
		},
	}

	manager, err := payment.NewManager(cfg, payment.NewRepository(db), noopUpdater{}, nil)
	require.NoError(t, err)

	return NewRouter(cfg, manager, order.NewRepository(db)), mock, cfg
}

func doJSON(router http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.10:51234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/api/admin/login",
		map[string]string{"username": "admin", "password": "hunter2"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AccessToken)
	return resp.Data.AccessToken
}

func TestListPaymentMethods(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/api/payment-methods", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool             `json:"success"`
		Data    []payment.Method `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Data)
	for _, m := range resp.Data {
		assert.Equal(t, payment.GatewayMercadoPago, m.Gateway, "paypal is not enabled in this setup")
		assert.True(t, m.Active)
	}
}

func TestFrontendConfig(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("KnownMethod", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/payment-config/pix", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "TEST-pub", resp.Data["public_key"])
	})

	t.Run("UnknownMethodIs400", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/payment-config/cheque", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProcessPaymentValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("BadBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewBufferString(`{oops`))
		req.RemoteAddr = "203.0.113.10:51234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownMethodIs400", func(t *testing.T) {
		body := map[string]interface{}{
			"order":    map[string]interface{}{"order_number": "TAV-1", "total": 10},
			"customer": map[string]interface{}{"name": "Ana", "email": "ana@example.com"},
			"payment":  map[string]interface{}{"method": "cheque"},
		}
		rec := doJSON(router, http.MethodPost, "/api/payments", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp payment.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.ErrorMessage)
	})
}

func TestGetOrder(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT .+ FROM orders`).
			WithArgs("TAV-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "order_number", "customer_name", "customer_email", "total",
				"status", "payment_status", "created_at", "updated_at",
			}).AddRow(1, "TAV-1", "Ana", "ana@example.com", 10.0, "processing", "approved", now, now))

		rec := doJSON(router, http.MethodGet, "/api/orders/TAV-1", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM orders`).
			WithArgs("TAV-0").
			WillReturnError(sql.ErrNoRows)

		rec := doJSON(router, http.MethodGet, "/api/orders/TAV-0", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("NoTokenIs401", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/admin/gateways", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BadCredentials", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/admin/login",
			map[string]string{"username": "admin", "password": "wrong"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("LoginThenAccess", func(t *testing.T) {
		token := login(t, router)

		rec := doJSON(router, http.MethodGet, "/api/admin/gateways", nil, token)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Data, payment.GatewayMercadoPago)
	})

	t.Run("GarbageTokenIs401", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/admin/gateways", nil, "not.a.token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAdminCancelStatusMapping(t *testing.T) {
	router, mock, _ := newTestRouter(t)
	token := login(t, router)

	// Unknown transaction surfaces as a validation error, which the HTTP
	// layer renders as 400.
	mock.ExpectQuery(`SELECT .+ FROM payment_transactions`).
		WillReturnError(sql.ErrNoRows)

	rec := doJSON(router, http.MethodPost, "/api/admin/payments/mercadopago/ghost/cancel",
		map[string]string{"reason": "test"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
