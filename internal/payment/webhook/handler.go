package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"taverna-be/internal/logger"
	"taverna-be/internal/payment"
	"taverna-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Vendors retry on non-2xx, so the status code is the contract here: 200
// means "stop sending this one", 5xx means "try again later". Client errors
// that retrying can never fix get 4xx.
type Handler struct {
	Manager *payment.Manager
}

func NewHandler(manager *payment.Manager) *Handler {
	return &Handler{Manager: manager}
}

// ServeWebhook handles POST /webhook/{gateway}.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := mux.Vars(r)["gateway"]
	log := logger.FromCtx(r.Context()).With(zap.String("gateway", gatewayName))

	g, err := h.Manager.Gateway(gatewayName)
	if err != nil {
		utils.WriteJSONError(w, http.StatusNotFound, "unknown gateway")
		return
	}

	if err := g.VerifyWebhook(r); err != nil {
		log.Warn("webhook rejected", zap.Error(err))
		utils.WriteJSONError(w, http.StatusUnauthorized, "webhook verification failed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()

	if !json.Valid(body) {
		utils.WriteJSONError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	resp := h.Manager.ProcessWebhook(r.Context(), gatewayName, body)
	if !resp.Success {
		switch resp.ErrorKind {
		case payment.ErrKindValidation:
			// A malformed or unverifiable delivery will never succeed on
			// retry; acknowledge and drop it.
			log.Warn("dropping unprocessable webhook", zap.String("reason", resp.ErrorMessage))
			utils.WriteJSON(w, http.StatusOK, resp)
		default:
			log.Error("webhook processing failed", zap.String("reason", resp.ErrorMessage))
			utils.WriteJSON(w, http.StatusInternalServerError, resp)
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}
