package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFrom(ctx))
	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("PropagatesIncomingHeader", func(t *testing.T) {
		var got string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RequestIDFrom(r.Context())
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-abc")
		rec := httptest.NewRecorder()
		RequestIDMiddleware(next).ServeHTTP(rec, req)

		assert.Equal(t, "req-abc", got)
		assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
	})

	t.Run("GeneratesWhenMissing", func(t *testing.T) {
		var got string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RequestIDFrom(r.Context())
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		RequestIDMiddleware(next).ServeHTTP(rec, req)

		assert.NotEmpty(t, got)
		assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
	})
}
