package api

import (
	"net/http"

	"taverna-be/internal/config"
	"taverna-be/internal/logger"
	"taverna-be/internal/middleware"
	"taverna-be/internal/order"
	"taverna-be/internal/payment"
	"taverna-be/internal/payment/webhook"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every HTTP surface: the public checkout API, the vendor
// webhook endpoints, the JWT-guarded admin API and the metrics endpoint.
func NewRouter(cfg *config.Config, manager *payment.Manager, orders order.Repository) http.Handler {
	h := &handlers{
		cfg:     cfg,
		manager: manager,
		orders:  orders,
	}
	wh := webhook.NewHandler(manager)

	r := mux.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware)

	// Vendor-facing.
	r.HandleFunc("/webhook/{gateway}", wh.ServeWebhook).Methods(http.MethodPost)

	// Storefront-facing.
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/payments", h.processPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/{gateway}/{transactionID}", h.checkStatus).Methods(http.MethodGet)
	api.HandleFunc("/payment-methods", h.listMethods).Methods(http.MethodGet)
	api.HandleFunc("/payment-config/{method}", h.frontendConfig).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderNumber}", h.getOrder).Methods(http.MethodGet)

	// Back-office.
	api.HandleFunc("/admin/login", h.adminLogin).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin(cfg.SecretKey))
	admin.HandleFunc("/gateways", h.listGateways).Methods(http.MethodGet)
	admin.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	admin.HandleFunc("/payments/{gateway}/{transactionID}/cancel", h.cancelPayment).Methods(http.MethodPost)
	admin.HandleFunc("/payments/{gateway}/{transactionID}/refund", h.refundPayment).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	return r
}
