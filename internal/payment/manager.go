package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"taverna-be/internal/config"
	"taverna-be/internal/logger"
	"taverna-be/internal/metrics"

	"go.uber.org/zap"
)

// Response is the uniform result shape every Manager operation produces.
// Failures carry a machine code and a human message instead of an error
// value, so transports can serialize them directly.
type Response struct {
	Success      bool        `json:"success"`
	Data         interface{} `json:"data,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	// ErrorKind carries the classification for transports to map onto
	// status codes; the wire payload only sees code and message.
	ErrorKind ErrorKind `json:"-"`
}

func success(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

func failure(err error) *Response {
	e := AsError(err)
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	return &Response{Success: false, ErrorCode: code, ErrorMessage: e.Message, ErrorKind: e.Kind}
}

// Manager is the single entry point for payment operations. It owns the
// configured gateway instances and routes each call to the right one; callers
// never construct or hold gateways themselves.
type Manager struct {
	gateways map[string]Gateway
	repo     Repository
	orders   OrderUpdater
	mt       *metrics.PaymentMetrics
}

// NewManager instantiates every enabled gateway. A gateway that is enabled
// but misconfigured fails construction, so a broken deployment dies at boot
// instead of at the first checkout.
func NewManager(cfg *config.Config, repo Repository, orders OrderUpdater, mt *metrics.PaymentMetrics) (*Manager, error) {
	m := &Manager{
		gateways: make(map[string]Gateway),
		repo:     repo,
		orders:   orders,
		mt:       mt,
	}

	if cfg.MercadoPago.Enabled {
		g, err := NewMercadoPagoGateway(cfg.MercadoPago, cfg.BaseURL, repo, orders, mt)
		if err != nil {
			return nil, err
		}
		m.gateways[GatewayMercadoPago] = g
	}
	if cfg.PayPal.Enabled {
		g, err := NewPayPalGateway(cfg.PayPal, cfg.BaseURL, repo, orders, mt)
		if err != nil {
			return nil, err
		}
		m.gateways[GatewayPayPal] = g
	}

	if len(m.gateways) == 0 {
		return nil, fmt.Errorf("no payment gateway enabled")
	}
	return m, nil
}

// Gateway returns the named gateway or a validation error for unknown or
// disabled names.
func (m *Manager) Gateway(name string) (Gateway, error) {
	g, found := m.gateways[name]
	if !found {
		return nil, NewValidationError("unknown or disabled gateway %q", name)
	}
	return g, nil
}

// GatewayByMethod routes a storefront payment method to its gateway.
func (m *Manager) GatewayByMethod(method string) (Gateway, error) {
	for _, cat := range methodCatalog {
		if cat.ID != method {
			continue
		}
		if !cat.Active {
			return nil, NewValidationError("payment method %q is not available", method)
		}
		return m.Gateway(cat.Gateway)
	}
	return nil, NewValidationError("unknown payment method %q", method)
}

// ListAvailableGateways names the gateways that are configured and enabled.
func (m *Manager) ListAvailableGateways() []string {
	names := make([]string, 0, len(m.gateways))
	for name := range m.gateways {
		names = append(names, name)
	}
	return names
}

// ListPaymentMethods returns the storefront method catalog, filtered to
// methods whose gateway is actually enabled.
func (m *Manager) ListPaymentMethods(activeOnly bool) []Method {
	out := make([]Method, 0, len(methodCatalog))
	for _, cat := range methodCatalog {
		if _, enabled := m.gateways[cat.Gateway]; !enabled {
			continue
		}
		if activeOnly && !cat.Active {
			continue
		}
		out = append(out, cat)
	}
	return out
}

// ProcessPayment validates the input, routes by payment method and initiates
// the transaction. Every attempt, failed or not, lands in the attempt log.
func (m *Manager) ProcessPayment(ctx context.Context, order OrderData, customer CustomerData, pay PaymentData) *Response {
	g, err := m.GatewayByMethod(pay.Method)
	if err != nil {
		m.saveAttempt(ctx, order.OrderNumber, pay.Method, "", "", err)
		return failure(err)
	}

	init, err := g.InitiateTransaction(ctx, order, customer, pay)
	if err != nil {
		m.recordError(g.Name(), err)
		m.saveAttempt(ctx, order.OrderNumber, pay.Method, g.Name(), "", err)
		return failure(err)
	}

	m.saveAttempt(ctx, order.OrderNumber, pay.Method, g.Name(), init.TransactionID, nil)
	return success(init)
}

// ProcessWebhook records the delivery, deduplicates it and hands the body to
// the gateway. The transport has already authenticated the request via
// VerifyWebhook. Duplicates short-circuit as success so the vendor stops
// retrying.
func (m *Manager) ProcessWebhook(ctx context.Context, gatewayName string, payload []byte) *Response {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return failure(err)
	}

	eventID, eventType, txID := peekWebhookIdentity(payload)
	if eventID == "" {
		return failure(NewValidationError("webhook payload carries no event id"))
	}

	webhookID, duplicate, err := m.repo.SaveWebhookEvent(ctx, gatewayName, eventID, eventType, txID, payload)
	if err != nil {
		return failure(NewInternalError(err))
	}
	if duplicate {
		m.recordDuplicate(gatewayName)
		logger.FromCtx(ctx).Info("duplicate webhook delivery acknowledged",
			zap.String("gateway", gatewayName),
			zap.String("event_id", eventID),
		)
		return success(&CallbackResult{Handled: true, Duplicate: true, EventType: eventType})
	}

	result, err := g.HandleCallback(ctx, payload)
	if err != nil {
		m.recordError(gatewayName, err)
		m.recordWebhook(gatewayName, "failed")
		if markErr := m.repo.MarkWebhookFailed(ctx, webhookID, AsError(err).Message); markErr != nil {
			logger.FromCtx(ctx).Error("failed marking webhook", zap.Error(markErr))
		}
		return failure(err)
	}

	if markErr := m.repo.MarkWebhookProcessed(ctx, webhookID); markErr != nil {
		logger.FromCtx(ctx).Error("failed marking webhook", zap.Error(markErr))
	}
	m.recordWebhook(gatewayName, "processed")
	if result.Handled && !result.Duplicate && m.mt != nil {
		m.mt.RecordStatusTransition(gatewayName, string(result.Status))
	}
	return success(result)
}

func (m *Manager) CheckStatus(ctx context.Context, gatewayName, transactionID string) *Response {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return failure(err)
	}
	info, err := g.CheckTransactionStatus(ctx, transactionID)
	if err != nil {
		m.recordError(gatewayName, err)
		return failure(err)
	}
	return success(info)
}

func (m *Manager) Cancel(ctx context.Context, gatewayName, transactionID, reason string) *Response {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return failure(err)
	}
	res, err := g.CancelTransaction(ctx, transactionID, reason)
	if err != nil {
		m.recordError(gatewayName, err)
		return failure(err)
	}
	return success(res)
}

func (m *Manager) Refund(ctx context.Context, gatewayName, transactionID string, amount *float64, reason string) *Response {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return failure(err)
	}
	res, err := g.RefundTransaction(ctx, transactionID, amount, reason)
	if err != nil {
		m.recordError(gatewayName, err)
		return failure(err)
	}
	return success(res)
}

// FrontendConfig returns the checkout UI configuration for one method.
func (m *Manager) FrontendConfig(method string) *Response {
	g, err := m.GatewayByMethod(method)
	if err != nil {
		return failure(err)
	}
	return success(g.FrontendConfig(method))
}

func (m *Manager) saveAttempt(ctx context.Context, orderNumber, method, gateway, txID string, opErr error) {
	msg := ""
	if opErr != nil {
		msg = AsError(opErr).Message
	}
	if err := m.repo.SaveAttempt(ctx, orderNumber, method, gateway, txID, opErr == nil, msg); err != nil {
		logger.FromCtx(ctx).Error("failed saving payment attempt", zap.Error(err))
	}
	if m.mt != nil && gateway != "" {
		m.mt.RecordInitiated(gateway, method, opErr == nil)
	}
}

func (m *Manager) recordError(gateway string, err error) {
	if m.mt != nil {
		m.mt.RecordGatewayError(gateway, string(KindOf(err)))
	}
}

func (m *Manager) recordWebhook(gateway, result string) {
	if m.mt != nil {
		m.mt.RecordWebhook(gateway, result)
	}
}

func (m *Manager) recordDuplicate(gateway string) {
	if m.mt != nil {
		m.mt.RecordDuplicateWebhook(gateway)
		m.mt.RecordWebhook(gateway, "duplicate")
	}
}

// peekWebhookIdentity pulls the event id, type and transaction hint out of a
// raw webhook body without knowing which vendor sent it. MercadoPago uses
// numeric id/type/data.id, PayPal string id/event_type/resource.id.
func peekWebhookIdentity(payload []byte) (eventID, eventType, transactionID string) {
	var probe struct {
		ID        flexID `json:"id"`
		Type      string `json:"type"`
		EventType string `json:"event_type"`
		Data      struct {
			ID flexID `json:"id"`
		} `json:"data"`
		Resource struct {
			ID string `json:"id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", "", ""
	}

	eventID = probe.ID.String()
	eventType = probe.Type
	if eventType == "" {
		eventType = probe.EventType
	}
	transactionID = probe.Data.ID.String()
	if transactionID == "" {
		transactionID = probe.Resource.ID
	}
	return eventID, eventType, transactionID
}
