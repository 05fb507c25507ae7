package payment

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taverna-be/internal/config"
	"taverna-be/internal/logger"
	"taverna-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	payPalAPIBase        = "https://api-m.paypal.com"
	payPalSandboxAPIBase = "https://api-m.sandbox.paypal.com"

	// Tokens are refreshed this long before their advertised expiry so an
	// in-flight request never carries one that dies mid-call.
	tokenExpirySlack = 60 * time.Second
)

// Local states from which a PayPal order may still be voided.
var ppCancellableStatuses = map[Status]bool{
	StatusPending:    true,
	StatusAuthorized: true,
}

type paypalGateway struct {
	cfg    config.PayPalConfig
	client *apiClient
	repo   Repository
	orders OrderUpdater
	mt     *metrics.PaymentMetrics

	baseURL string
	apiBase string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway builds the REST v2 Orders integration.
func NewPayPalGateway(cfg config.PayPalConfig, baseURL string, repo Repository, orders OrderUpdater, mt *metrics.PaymentMetrics) (Gateway, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("paypal: client credentials not configured")
	}

	apiBase := payPalAPIBase
	if cfg.Sandbox {
		apiBase = payPalSandboxAPIBase
	}

	g := &paypalGateway{
		cfg:     cfg,
		repo:    repo,
		orders:  orders,
		mt:      mt,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiBase: apiBase,
	}
	g.client = newAPIClient(GatewayPayPal, apiBase, g.authorize, mt)
	return g, nil
}

func (g *paypalGateway) Name() string {
	return GatewayPayPal
}

// authorize attaches a bearer token, fetching a fresh one when the cached
// token is absent or near expiry.
func (g *paypalGateway) authorize(ctx context.Context, req *http.Request) error {
	token, err := g.ensureAccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (g *paypalGateway) ensureAccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := g.client.doForm(ctx, g.apiBase+"/v1/oauth2/token", form, g.cfg.ClientID, g.cfg.ClientSecret, &resp)
	if err != nil {
		return "", AsError(err)
	}
	if resp.AccessToken == "" {
		return "", NewVendorError("oauth_failed", "paypal token response missing access_token")
	}

	g.accessToken = resp.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenExpirySlack)
	logger.L().Debug("paypal access token refreshed",
		zap.Time("expires_at", g.tokenExpiry),
	)
	return g.accessToken, nil
}

func (g *paypalGateway) InitiateTransaction(ctx context.Context, order OrderData, customer CustomerData, pay PaymentData) (*Initiation, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}

	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayPayPal),
		zap.String("order_number", order.OrderNumber),
	)

	payload := g.orderPayload(order, customer)

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := g.client.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &resp); err != nil {
		return nil, AsError(err)
	}
	if resp.ID == "" {
		return nil, NewInternalError(fmt.Errorf("paypal order response missing id"))
	}

	var approveURL string
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approveURL = l.Href
			break
		}
	}

	additional, _ := json.Marshal(map[string]interface{}{
		"paypal_order_id": resp.ID,
	})
	tx := &Transaction{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Gateway:        GatewayPayPal,
		TransactionID:  resp.ID,
		Status:         StatusPending,
		RawStatus:      resp.Status,
		Amount:         order.Total,
		Currency:       "BRL",
		PaymentMethod:  MethodPayPal,
		AdditionalData: additional,
	}
	if err := g.repo.SaveTransaction(ctx, tx); err != nil {
		log.Error("failed saving transaction", zap.Error(err))
		return nil, NewInternalError(err)
	}

	log.Info("paypal order created", zap.String("paypal_order_id", resp.ID))

	return &Initiation{
		TransactionID: resp.ID,
		Status:        MapPayPalStatus(resp.Status),
		RedirectURL:   approveURL,
	}, nil
}

func (g *paypalGateway) orderPayload(order OrderData, customer CustomerData) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(order.Items))
	var itemTotal float64
	for _, it := range order.Items {
		itemTotal += it.Price * float64(it.Quantity)
		items = append(items, map[string]interface{}{
			"name":        it.Name,
			"description": it.Description,
			"quantity":    fmt.Sprintf("%d", it.Quantity),
			"unit_amount": map[string]string{
				"currency_code": "BRL",
				"value":         formatAmount(it.Price),
			},
		})
	}

	return map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": order.OrderNumber,
				"invoice_id":   order.OrderNumber,
				"description":  "Pedido " + order.OrderNumber,
				"amount": map[string]interface{}{
					"currency_code": "BRL",
					"value":         formatAmount(order.Total),
					"breakdown": map[string]interface{}{
						"item_total": map[string]string{
							"currency_code": "BRL",
							"value":         formatAmount(itemTotal),
						},
					},
				},
				"items": items,
			},
		},
		"application_context": map[string]interface{}{
			"brand_name":          "Taverna da Impressão 3D",
			"locale":              "pt-BR",
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
			"return_url":          g.baseURL + "/checkout/paypal/return",
			"cancel_url":          g.baseURL + "/checkout/paypal/cancel",
		},
	}
}

// ppOrder is the subset of the /v2/checkout/orders resource this package
// reads.
type ppOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		InvoiceID   string `json:"invoice_id"`
		Amount      struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
			Refunds []struct {
				ID     string `json:"id"`
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"refunds"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o ppOrder) statusInfo() *StatusInfo {
	info := &StatusInfo{
		TransactionID: o.ID,
		Status:        MapPayPalStatus(o.Status),
		RawStatus:     o.Status,
	}
	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		info.ExternalReference = pu.ReferenceID
		info.Amount = parseAmount(pu.Amount.Value)
		info.Currency = pu.Amount.CurrencyCode
		for _, c := range pu.Payments.Captures {
			info.CaptureIDs = append(info.CaptureIDs, c.ID)
		}
		for _, r := range pu.Payments.Refunds {
			info.RefundedAmount += parseAmount(r.Amount.Value)
		}
	}
	return info
}

func (g *paypalGateway) CheckTransactionStatus(ctx context.Context, transactionID string) (*StatusInfo, error) {
	if transactionID == "" {
		return nil, NewValidationError("transaction id is required")
	}

	var o ppOrder
	if err := g.client.do(ctx, http.MethodGet, "/v2/checkout/orders/"+transactionID, nil, &o); err != nil {
		return nil, AsError(err)
	}
	return o.statusInfo(), nil
}

// ppWebhook is the PayPal webhook event envelope.
type ppWebhook struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		InvoiceID     string `json:"invoice_id"`
		CustomID      string `json:"custom_id"`
		Amount        struct {
			Value string `json:"value"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// Webhook event types that move a payment. Everything else is acknowledged
// untouched.
var ppHandledEvents = map[string]bool{
	"CHECKOUT.ORDER.APPROVED":       true,
	"PAYMENT.AUTHORIZATION.CREATED": true,
	"PAYMENT.CAPTURE.COMPLETED":     true,
	"PAYMENT.CAPTURE.DENIED":        true,
	"PAYMENT.CAPTURE.REVERSED":      true,
	"PAYMENT.CAPTURE.REFUNDED":      true,
}

func (g *paypalGateway) HandleCallback(ctx context.Context, payload []byte) (*CallbackResult, error) {
	var evt ppWebhook
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, NewValidationError("malformed webhook payload: %v", err)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayPayPal),
		zap.String("event_type", evt.EventType),
	)

	if !ppHandledEvents[evt.EventType] {
		log.Debug("ignoring webhook event")
		return &CallbackResult{Handled: false, EventType: evt.EventType}, nil
	}

	orderID := g.resolveOrderID(evt)
	if orderID == "" {
		return nil, NewValidationError("webhook carries no resolvable order id")
	}

	// Payload status is advisory only; the order is re-read from the API.
	var o ppOrder
	if err := g.client.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &o); err != nil {
		return nil, AsError(err)
	}

	info := o.statusInfo()
	status := info.Status
	rawStatus := info.RawStatus

	// A refund event does not change the order resource status, so the
	// full/partial decision comes from the refunded amount.
	if evt.EventType == "PAYMENT.CAPTURE.REFUNDED" {
		if info.RefundedAmount >= info.Amount {
			status = StatusRefunded
		} else {
			status = StatusPartiallyRefunded
		}
		rawStatus = string(status)
	}

	duplicate, err := g.repo.SaveStatusEvent(ctx, GatewayPayPal, orderID, rawStatus)
	if err != nil {
		return nil, NewInternalError(err)
	}
	if duplicate {
		log.Info("status already applied, skipping",
			zap.String("paypal_order_id", orderID),
			zap.String("raw_status", rawStatus),
		)
		return &CallbackResult{
			Handled:       true,
			Duplicate:     true,
			EventType:     evt.EventType,
			TransactionID: orderID,
			OrderNumber:   info.ExternalReference,
			Status:        status,
			RawStatus:     rawStatus,
		}, nil
	}

	details := map[string]interface{}{
		"event_type": evt.EventType,
	}
	if len(info.CaptureIDs) > 0 {
		details["capture_ids"] = info.CaptureIDs
	}
	if err := g.repo.UpdateTransactionStatus(ctx, GatewayPayPal, orderID, status, rawStatus, details); err != nil {
		return nil, NewInternalError(err)
	}

	orderNumber := info.ExternalReference
	if orderNumber == "" {
		orderNumber = evt.Resource.InvoiceID
	}
	if orderNumber == "" {
		return nil, NewInternalError(fmt.Errorf("paypal order %s has no reference", orderID))
	}

	if err := g.orders.Apply(ctx, orderNumber, status, details); err != nil {
		return nil, AsError(err)
	}

	log.Info("payment status applied",
		zap.String("paypal_order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.String("status", string(status)),
	)

	return &CallbackResult{
		Handled:       true,
		EventType:     evt.EventType,
		TransactionID: orderID,
		OrderNumber:   orderNumber,
		Status:        status,
		RawStatus:     rawStatus,
	}, nil
}

// resolveOrderID finds the checkout order behind a webhook: order events
// carry it directly, capture events hide it in supplementary_data.
func (g *paypalGateway) resolveOrderID(evt ppWebhook) string {
	if strings.HasPrefix(evt.EventType, "CHECKOUT.ORDER.") {
		return evt.Resource.ID
	}
	return evt.Resource.SupplementaryData.RelatedIDs.OrderID
}

func (g *paypalGateway) CancelTransaction(ctx context.Context, transactionID, reason string) (*CancelResult, error) {
	if transactionID == "" {
		return nil, NewValidationError("transaction id is required")
	}

	local, err := g.repo.GetTransaction(ctx, GatewayPayPal, transactionID)
	if err != nil {
		return nil, NewValidationError("unknown transaction %s", transactionID)
	}
	if !ppCancellableStatuses[local.Status] {
		return nil, NewInvalidStateError("cannot cancel transaction in status %s", local.Status)
	}

	info, err := g.CheckTransactionStatus(ctx, transactionID)
	if err != nil {
		return nil, AsError(err)
	}
	if !ppCancellableStatuses[info.Status] {
		return nil, NewInvalidStateError("cannot cancel transaction in status %s", info.Status)
	}

	// An unapproved order cannot be voided on the vendor side, it just
	// expires. Only an authorized one needs the void call.
	if info.Status == StatusAuthorized {
		if err := g.client.do(ctx, http.MethodPost, "/v2/checkout/orders/"+transactionID+"/void", nil, nil); err != nil {
			return nil, AsError(err)
		}
	}

	details := map[string]interface{}{"cancel_reason": reason}
	if err := g.repo.UpdateTransactionStatus(ctx, GatewayPayPal, transactionID, StatusCancelled, "VOIDED", details); err != nil {
		return nil, NewInternalError(err)
	}
	if err := g.orders.Apply(ctx, local.OrderNumber, StatusCancelled, details); err != nil {
		return nil, AsError(err)
	}

	logger.FromCtx(ctx).Info("paypal order cancelled",
		zap.String("transaction_id", transactionID),
		zap.String("order_number", local.OrderNumber),
	)
	return &CancelResult{TransactionID: transactionID, Status: StatusCancelled}, nil
}

func (g *paypalGateway) RefundTransaction(ctx context.Context, transactionID string, amount *float64, reason string) (*RefundResult, error) {
	if transactionID == "" {
		return nil, NewValidationError("transaction id is required")
	}

	local, err := g.repo.GetTransaction(ctx, GatewayPayPal, transactionID)
	if err != nil {
		return nil, NewValidationError("unknown transaction %s", transactionID)
	}
	// partially_refunded stays refundable until the total is exhausted.
	if local.Status != StatusApproved && local.Status != StatusPartiallyRefunded {
		return nil, NewInvalidStateError("cannot refund transaction in status %s", local.Status)
	}

	partial := amount != nil
	if partial {
		if *amount <= 0 {
			return nil, NewValidationError("refund amount must be positive")
		}
		if *amount >= local.Amount {
			return nil, NewValidationError("partial refund amount %.2f must be below transaction total %.2f", *amount, local.Amount)
		}
	}

	info, err := g.CheckTransactionStatus(ctx, transactionID)
	if err != nil {
		return nil, AsError(err)
	}
	// The order stays COMPLETED after partial refunds; the refund total in
	// purchase_units tells how much is left.
	if info.Status != StatusApproved && info.Status != StatusPartiallyRefunded {
		return nil, NewInvalidStateError("cannot refund transaction in status %s", info.Status)
	}
	if len(info.CaptureIDs) == 0 {
		return nil, NewInvalidStateError("transaction has no capture to refund")
	}

	total := info.Amount
	if total <= 0 {
		total = local.Amount
	}
	remaining := total - info.RefundedAmount
	if remaining <= centTolerance {
		return nil, NewInvalidStateError("transaction %s has no refundable amount left", transactionID)
	}
	if partial && *amount > remaining+centTolerance {
		return nil, NewValidationError("partial refund amount %.2f exceeds the remaining refundable %.2f", *amount, remaining)
	}

	// Refunds go against the capture, not the order.
	captureID := info.CaptureIDs[0]

	var body map[string]interface{}
	if partial {
		body = map[string]interface{}{
			"amount": map[string]string{
				"currency_code": local.Currency,
				"value":         formatAmount(*amount),
			},
		}
	}
	if reason != "" {
		if body == nil {
			body = map[string]interface{}{}
		}
		body["note_to_payer"] = reason
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.client.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", body, &resp); err != nil {
		return nil, AsError(err)
	}

	// A partial amount that exhausts the remainder completes the refund.
	refunded := remaining
	status := StatusRefunded
	if partial {
		refunded = *amount
		if refunded < remaining-centTolerance {
			status = StatusPartiallyRefunded
		}
	}
	partial = status == StatusPartiallyRefunded

	if err := g.repo.SaveRefund(ctx, GatewayPayPal, transactionID, resp.ID, refunded, local.Currency, reason, resp.Status); err != nil {
		return nil, NewInternalError(err)
	}
	details := map[string]interface{}{
		"refund_id":     resp.ID,
		"capture_id":    captureID,
		"refund_reason": reason,
	}
	if err := g.repo.UpdateTransactionStatus(ctx, GatewayPayPal, transactionID, status, string(status), details); err != nil {
		return nil, NewInternalError(err)
	}
	if err := g.orders.Apply(ctx, local.OrderNumber, status, details); err != nil {
		return nil, AsError(err)
	}

	if g.mt != nil {
		g.mt.RecordRefund(GatewayPayPal, local.Currency, refunded, partial)
	}
	logger.FromCtx(ctx).Info("paypal refund issued",
		zap.String("transaction_id", transactionID),
		zap.String("refund_id", resp.ID),
		zap.Bool("partial", partial),
	)

	return &RefundResult{
		TransactionID: transactionID,
		RefundID:      resp.ID,
		Status:        status,
		Amount:        refunded,
		Partial:       partial,
	}, nil
}

func (g *paypalGateway) FrontendConfig(method string) map[string]interface{} {
	return map[string]interface{}{
		"gateway":   GatewayPayPal,
		"client_id": g.cfg.ClientID,
		"sandbox":   g.cfg.Sandbox,
		"currency":  "BRL",
		"locale":    "pt-BR",
		"intent":    "capture",
	}
}

// VerifyWebhook checks the configured webhook id against the delivery
// headers. Like the MercadoPago token this is a first filter; trust comes
// from re-querying the API.
func (g *paypalGateway) VerifyWebhook(r *http.Request) error {
	if g.cfg.WebhookID == "" {
		return nil
	}
	if r.Header.Get("Paypal-Transmission-Id") == "" {
		return NewValidationError("missing paypal transmission headers")
	}
	got := r.Header.Get("Paypal-Webhook-Id")
	if got != "" && !hmac.Equal([]byte(got), []byte(g.cfg.WebhookID)) {
		return NewValidationError("webhook id mismatch")
	}
	return nil
}
