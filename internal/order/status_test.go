package order

import (
	"testing"

	"taverna-be/internal/payment"

	"github.com/stretchr/testify/assert"
)

func TestFromPaymentStatus(t *testing.T) {
	cases := map[payment.Status]Status{
		payment.StatusPending:           StatusPending,
		payment.StatusInProcess:         StatusPending,
		payment.StatusAuthorized:        StatusProcessing,
		payment.StatusApproved:          StatusProcessing,
		payment.StatusFailed:            StatusFailed,
		payment.StatusCancelled:         StatusCancelled,
		payment.StatusRefunded:          StatusRefunded,
		payment.StatusPartiallyRefunded: StatusPartiallyRefunded,
		payment.StatusChargedBack:       StatusDisputed,
		payment.StatusInDispute:         StatusDisputed,
	}
	for ps, want := range cases {
		assert.Equal(t, want, FromPaymentStatus(ps), "payment status %q", ps)
	}

	t.Run("UnknownLeavesPending", func(t *testing.T) {
		assert.Equal(t, StatusPending, FromPaymentStatus(payment.Status("weird")))
	})
}

func TestPaymentTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to payment.Status
		want     bool
	}{
		{payment.StatusPending, payment.StatusApproved, true},
		{payment.StatusApproved, payment.StatusRefunded, true},
		{payment.StatusApproved, payment.StatusPartiallyRefunded, true},
		{payment.StatusPartiallyRefunded, payment.StatusRefunded, true},
		{payment.StatusPartiallyRefunded, payment.StatusPartiallyRefunded, true},
		{payment.StatusPartiallyRefunded, payment.StatusApproved, false},
		{payment.StatusPartiallyRefunded, payment.StatusPending, false},
		{payment.StatusRefunded, payment.StatusApproved, false},
		{payment.StatusRefunded, payment.StatusPending, false},
		{payment.StatusCancelled, payment.StatusApproved, false},
		{payment.StatusChargedBack, payment.StatusApproved, false},
		{payment.StatusFailed, payment.StatusPending, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, paymentTransitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
