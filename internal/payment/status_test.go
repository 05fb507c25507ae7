package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapMercadoPagoStatus(t *testing.T) {
	cases := map[string]Status{
		"pending":      StatusPending,
		"approved":     StatusApproved,
		"authorized":   StatusAuthorized,
		"in_process":   StatusInProcess,
		"in_mediation": StatusInDispute,
		"rejected":     StatusFailed,
		"cancelled":    StatusCancelled,
		"refunded":     StatusRefunded,
		"charged_back": StatusChargedBack,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapMercadoPagoStatus(raw), "raw status %q", raw)
	}

	t.Run("UnknownDegradesToPending", func(t *testing.T) {
		assert.Equal(t, StatusPending, MapMercadoPagoStatus("some_future_status"))
		assert.Equal(t, StatusPending, MapMercadoPagoStatus(""))
	})
}

func TestMapPayPalStatus(t *testing.T) {
	cases := map[string]Status{
		"CREATED":               StatusPending,
		"SAVED":                 StatusPending,
		"PAYER_ACTION_REQUIRED": StatusPending,
		"APPROVED":              StatusAuthorized,
		"COMPLETED":             StatusApproved,
		"CAPTURED":              StatusApproved,
		"VOIDED":                StatusCancelled,
		"DENIED":                StatusFailed,
		"EXPIRED":               StatusFailed,
		"FAILED":                StatusFailed,
		"REFUNDED":              StatusRefunded,
		"PARTIALLY_REFUNDED":    StatusPartiallyRefunded,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapPayPalStatus(raw), "raw status %q", raw)
	}

	t.Run("CaseInsensitive", func(t *testing.T) {
		assert.Equal(t, StatusApproved, MapPayPalStatus("completed"))
	})

	t.Run("UnknownDegradesToPending", func(t *testing.T) {
		assert.Equal(t, StatusPending, MapPayPalStatus("SOMETHING_NEW"))
	})
}

func TestHelpers(t *testing.T) {
	t.Run("SplitName", func(t *testing.T) {
		first, last := splitName("Maria da Silva")
		assert.Equal(t, "Maria", first)
		assert.Equal(t, "da Silva", last)

		first, last = splitName("Madonna")
		assert.Equal(t, "Madonna", first)
		assert.Empty(t, last)
	})

	t.Run("DigitsOnly", func(t *testing.T) {
		assert.Equal(t, "12345678901", digitsOnly("123.456.789-01"))
		assert.Empty(t, digitsOnly("abc"))
	})

	t.Run("DocumentType", func(t *testing.T) {
		assert.Equal(t, "CPF", documentType("123.456.789-01"))
		assert.Equal(t, "CNPJ", documentType("12.345.678/0001-90"))
	})

	t.Run("FormatAmount", func(t *testing.T) {
		assert.Equal(t, "100.00", formatAmount(100))
		assert.Equal(t, "99.90", formatAmount(99.9))
	})
}
