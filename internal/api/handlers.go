package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"taverna-be/internal/auth"
	"taverna-be/internal/config"
	"taverna-be/internal/logger"
	"taverna-be/internal/order"
	"taverna-be/internal/payment"
	"taverna-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type handlers struct {
	cfg     *config.Config
	manager *payment.Manager
	orders  order.Repository
}

// paymentRequest is the checkout payload the storefront posts.
type paymentRequest struct {
	Order struct {
		ID          uint    `json:"id"`
		OrderNumber string  `json:"order_number"`
		Total       float64 `json:"total"`
		Items       []struct {
			Name        string  `json:"name"`
			Description string  `json:"description"`
			Price       float64 `json:"price"`
			Quantity    int     `json:"quantity"`
		} `json:"items"`
	} `json:"order"`
	Customer struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Document      string `json:"document"`
		Phone         string `json:"phone"`
		PhoneAreaCode string `json:"phone_area_code"`
		ZipCode       string `json:"zip_code"`
		Street        string `json:"street"`
		Number        string `json:"number"`
		City          string `json:"city"`
		State         string `json:"state"`
	} `json:"customer"`
	Payment struct {
		Method       string `json:"method"`
		Installments int    `json:"installments"`
		CardToken    string `json:"card_token"`
		CardBrand    string `json:"card_brand"`
	} `json:"payment"`
}

func (h *handlers) processPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderData := payment.OrderData{
		ID:          req.Order.ID,
		OrderNumber: req.Order.OrderNumber,
		Total:       req.Order.Total,
	}
	for _, it := range req.Order.Items {
		orderData.Items = append(orderData.Items, payment.OrderItem{
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Quantity:    it.Quantity,
		})
	}
	customer := payment.CustomerData{
		Name:          req.Customer.Name,
		Email:         req.Customer.Email,
		Document:      req.Customer.Document,
		Phone:         req.Customer.Phone,
		PhoneAreaCode: req.Customer.PhoneAreaCode,
		ZipCode:       req.Customer.ZipCode,
		Street:        req.Customer.Street,
		Number:        req.Customer.Number,
		City:          req.Customer.City,
		State:         req.Customer.State,
	}
	pay := payment.PaymentData{
		Method:       req.Payment.Method,
		Installments: req.Payment.Installments,
		CardToken:    req.Payment.CardToken,
		CardBrand:    req.Payment.CardBrand,
	}

	resp := h.manager.ProcessPayment(r.Context(), orderData, customer, pay)
	writeResponse(w, resp)
}

func (h *handlers) checkStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resp := h.manager.CheckStatus(r.Context(), vars["gateway"], vars["transactionID"])
	writeResponse(w, resp)
}

func (h *handlers) listMethods(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	utils.WriteJSON(w, http.StatusOK, &payment.Response{
		Success: true,
		Data:    h.manager.ListPaymentMethods(activeOnly),
	})
}

func (h *handlers) frontendConfig(w http.ResponseWriter, r *http.Request) {
	resp := h.manager.FrontendConfig(mux.Vars(r)["method"])
	writeResponse(w, resp)
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByOrderNumber(r.Context(), mux.Vars(r)["orderNumber"])
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			utils.WriteJSONError(w, http.StatusNotFound, "order not found")
			return
		}
		logger.FromCtx(r.Context()).Error("failed loading order", zap.Error(err))
		utils.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, &payment.Response{Success: true, Data: o})
}

func (h *handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := auth.VerifyAdminCredentials(req.Username, req.Password, h.cfg.AdminUser, h.cfg.AdminPasswordHash); err != nil {
		utils.WriteJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.IssueAdminToken(req.Username, h.cfg.SecretKey)
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed issuing token", zap.Error(err))
		utils.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.WriteJSON(w, http.StatusOK, &payment.Response{
		Success: true,
		Data:    map[string]string{"access_token": token},
	})
}

func (h *handlers) listGateways(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, &payment.Response{
		Success: true,
		Data:    h.manager.ListAvailableGateways(),
	})
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.orders.List(r.Context(), limit, offset)
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed listing orders", zap.Error(err))
		utils.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, &payment.Response{Success: true, Data: list})
}

func (h *handlers) cancelPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	vars := mux.Vars(r)
	resp := h.manager.Cancel(r.Context(), vars["gateway"], vars["transactionID"], req.Reason)
	writeResponse(w, resp)
}

func (h *handlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	vars := mux.Vars(r)
	resp := h.manager.Refund(r.Context(), vars["gateway"], vars["transactionID"], req.Amount, req.Reason)
	writeResponse(w, resp)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeResponse picks the HTTP status from the error classification: bad
// input 400, business-rule rejections 409, vendor rejections 502, network
// trouble 504, everything else 500.
func writeResponse(w http.ResponseWriter, resp *payment.Response) {
	if resp.Success {
		utils.WriteJSON(w, http.StatusOK, resp)
		return
	}

	status := http.StatusInternalServerError
	switch resp.ErrorKind {
	case payment.ErrKindValidation:
		status = http.StatusBadRequest
	case payment.ErrKindInvalidState:
		status = http.StatusConflict
	case payment.ErrKindVendor:
		status = http.StatusBadGateway
	case payment.ErrKindNetwork:
		status = http.StatusGatewayTimeout
	}
	utils.WriteJSON(w, status, resp)
}
