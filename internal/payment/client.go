package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taverna-be/internal/logger"
	"taverna-be/internal/metrics"

	"go.uber.org/zap"
)

// One fixed timeout per outbound call; a timed-out call surfaces as a
// network error and is safe for the caller to retry.
const requestTimeout = 30 * time.Second

const maxLoggedBody = 512

type authFunc func(ctx context.Context, req *http.Request) error

// apiClient issues JSON requests against one vendor REST API and normalizes
// transport and status-code failures into the payment error taxonomy.
type apiClient struct {
	gateway    string
	baseURL    string
	httpClient *http.Client
	auth       authFunc
	metrics    *metrics.PaymentMetrics
}

func newAPIClient(gateway, baseURL string, auth authFunc, m *metrics.PaymentMetrics) *apiClient {
	return &apiClient{
		gateway: gateway,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		auth:    auth,
		metrics: m,
	}
}

// do sends one request and decodes the JSON response into out (out may be
// nil for fire-and-forget calls). Returns *Error on any failure.
func (c *apiClient) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", c.gateway),
		zap.String("endpoint", endpoint),
	)
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return NewInternalError(err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "TavernaDaImpressao3D/1.0")

	if c.auth != nil {
		if err := c.auth(ctx, req); err != nil {
			c.observe(endpoint, start, false)
			return AsError(err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, start, false)
		log.Error("gateway request failed", zap.Error(err))
		return NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, start, false)
		return NewNetworkError(fmt.Errorf("reading %s response: %w", c.gateway, err))
	}

	if resp.StatusCode >= 400 {
		c.observe(endpoint, start, false)
		code, msg := vendorErrorFrom(respBody, resp.StatusCode)
		log.Error("gateway returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.String("vendor_code", code),
			zap.ByteString("response", truncateBytes(respBody, maxLoggedBody)),
		)
		return NewVendorError(code, msg)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.observe(endpoint, start, false)
			log.Error("failed decoding gateway response", zap.Error(err))
			return NewInternalError(fmt.Errorf("decoding %s response: %w", c.gateway, err))
		}
	}

	c.observe(endpoint, start, true)
	return nil
}

// doForm posts application/x-www-form-urlencoded with HTTP basic auth.
// Used for the PayPal OAuth token exchange, which is the one call that is
// not JSON-in.
func (c *apiClient) doForm(ctx context.Context, rawURL string, form url.Values, user, pass string, out interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return NewInternalError(err)
	}
	req.SetBasicAuth(user, pass)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("oauth", start, false)
		return NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("oauth", start, false)
		return NewNetworkError(err)
	}

	if resp.StatusCode >= 400 {
		c.observe("oauth", start, false)
		code, msg := vendorErrorFrom(respBody, resp.StatusCode)
		return NewVendorError(code, msg)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.observe("oauth", start, false)
		return NewInternalError(err)
	}

	c.observe("oauth", start, true)
	return nil
}

func (c *apiClient) observe(endpoint string, start time.Time, ok bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveGatewayRequest(c.gateway, metricEndpoint(endpoint), start, ok)
}

// metricEndpoint collapses identifier path segments to {id} so the endpoint
// metric label keeps a bounded cardinality.
func metricEndpoint(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	segs := strings.Split(endpoint, "/")
	for i, s := range segs {
		if s == "" || versionSegment(s) {
			continue
		}
		if strings.ContainsAny(s, "0123456789") || strings.ContainsAny(s, "-_") {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}

func versionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// vendorErrorFrom extracts the most useful code/message pair from a vendor
// error body. Gateways disagree on field names, so this probes the common
// shapes before falling back to the HTTP status.
func vendorErrorFrom(body []byte, httpStatus int) (code, message string) {
	code = fmt.Sprintf("http_%d", httpStatus)
	message = fmt.Sprintf("gateway error (HTTP %d)", httpStatus)

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return code, message
	}

	if v, ok := parsed["error"].(string); ok && v != "" {
		code = v
	} else if v, ok := parsed["name"].(string); ok && v != "" {
		code = v
	}

	if v, ok := parsed["message"].(string); ok && v != "" {
		message = v
	} else if v, ok := parsed["error_description"].(string); ok && v != "" {
		message = v
	} else if details, ok := parsed["details"].([]interface{}); ok && len(details) > 0 {
		if d, ok := details[0].(map[string]interface{}); ok {
			if v, ok := d["description"].(string); ok && v != "" {
				message = v
			}
		}
	}

	return code, message
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
