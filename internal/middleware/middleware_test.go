package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taverna-be/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestResolveRateTier(t *testing.T) {
	cases := []struct {
		path string
		tier string
	}{
		{"/webhook/mercadopago", "webhook"},
		{"/webhook/paypal", "webhook"},
		{"/api/admin/login", "strict"},
		{"/api/admin/payments/paypal/5O1/cancel", "strict"},
		{"/api/admin/payments/mercadopago/555/refund", "strict"},
		{"/api/payment-methods", "general"},
		{"/healthz", "general"},
	}

	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, c.path, nil)
		_, _, tier := resolveRateTier(req)
		assert.Equal(t, c.tier, tier, "path %s", c.path)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimitMiddleware(next)

	t.Run("StrictTierEventuallyBlocks", func(t *testing.T) {
		blocked := false
		for i := 0; i < burstStrict+2; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
			req.RemoteAddr = "198.51.100.7:1000"
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, req)
			if rec.Code == http.StatusTooManyRequests {
				blocked = true
			}
		}
		assert.True(t, blocked)
	})

	t.Run("DifferentIPsGetSeparateBuckets", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
		req.RemoteAddr = "198.51.100.8:1000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("TiersHaveSeparateQuotas", func(t *testing.T) {
		// The IP exhausted its strict bucket above, general still flows.
		req := httptest.NewRequest(http.MethodGet, "/api/payment-methods", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetVisitorReusesLimiter(t *testing.T) {
	a := getVisitor("test-key", rate.Limit(1), 1)
	b := getVisitor("test-key", rate.Limit(1), 1)
	assert.Same(t, a, b)
}

func TestRequireAdmin(t *testing.T) {
	const secret = "test-secret"
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := AdminUserFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		w.WriteHeader(http.StatusOK)
	})
	guarded := RequireAdmin(secret)(next)

	t.Run("ValidToken", func(t *testing.T) {
		token, err := auth.IssueAdminToken("admin", secret)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := auth.IssueAdminToken("admin", "other-secret")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("NonAdminRole", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":  "shopper",
			"role": "customer",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":  "admin",
			"role": "admin",
			"exp":  time.Now().Add(-time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
