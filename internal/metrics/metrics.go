package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics groups the Prometheus collectors for the payment core.
type PaymentMetrics struct {
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	TransactionsInitiatedTotal *prometheus.CounterVec
	StatusTransitionsTotal     *prometheus.CounterVec

	WebhooksReceivedTotal  *prometheus.CounterVec
	WebhooksDuplicateTotal *prometheus.CounterVec

	RefundsTotal       *prometheus.CounterVec
	RefundAmountTotal  *prometheus.CounterVec
	GatewayErrorsTotal *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	f := promauto.With(reg)
	return &PaymentMetrics{
		GatewayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Outbound vendor API requests by gateway, endpoint and outcome",
			},
			[]string{"gateway", "endpoint", "outcome"},
		),
		GatewayRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Latency of outbound vendor API requests",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"gateway", "endpoint"},
		),
		TransactionsInitiatedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transactions_initiated_total",
				Help: "Payment transactions initiated by gateway, method and outcome",
			},
			[]string{"gateway", "payment_method", "outcome"},
		),
		StatusTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_status_transitions_total",
				Help: "Canonical payment status transitions applied to orders",
			},
			[]string{"gateway", "status"},
		),
		WebhooksReceivedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhooks_received_total",
				Help: "Webhook deliveries by gateway and processing result",
			},
			[]string{"gateway", "result"},
		),
		WebhooksDuplicateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhooks_duplicate_total",
				Help: "Webhook deliveries dropped as at-least-once duplicates",
			},
			[]string{"gateway"},
		),
		RefundsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_refunds_total",
				Help: "Refund operations by gateway and kind (full/partial)",
			},
			[]string{"gateway", "kind"},
		),
		RefundAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_refund_amount_total",
				Help: "Refunded amount by gateway and currency",
			},
			[]string{"gateway", "currency"},
		),
		GatewayErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_errors_total",
				Help: "Gateway operation failures by gateway and error kind",
			},
			[]string{"gateway", "error_kind"},
		),
	}
}

func (m *PaymentMetrics) ObserveGatewayRequest(gateway, endpoint string, start time.Time, ok bool) {
	outcome := "error"
	if ok {
		outcome = "success"
	}
	m.GatewayRequestsTotal.WithLabelValues(gateway, endpoint, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(gateway, endpoint).Observe(time.Since(start).Seconds())
}

func (m *PaymentMetrics) RecordInitiated(gateway, method string, ok bool) {
	outcome := "error"
	if ok {
		outcome = "success"
	}
	m.TransactionsInitiatedTotal.WithLabelValues(gateway, method, outcome).Inc()
}

func (m *PaymentMetrics) RecordStatusTransition(gateway, status string) {
	m.StatusTransitionsTotal.WithLabelValues(gateway, status).Inc()
}

func (m *PaymentMetrics) RecordWebhook(gateway, result string) {
	m.WebhooksReceivedTotal.WithLabelValues(gateway, result).Inc()
}

func (m *PaymentMetrics) RecordDuplicateWebhook(gateway string) {
	m.WebhooksDuplicateTotal.WithLabelValues(gateway).Inc()
}

func (m *PaymentMetrics) RecordRefund(gateway, currency string, amount float64, partial bool) {
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.RefundsTotal.WithLabelValues(gateway, kind).Inc()
	m.RefundAmountTotal.WithLabelValues(gateway, currency).Add(amount)
}

func (m *PaymentMetrics) RecordGatewayError(gateway, kind string) {
	m.GatewayErrorsTotal.WithLabelValues(gateway, kind).Inc()
}
