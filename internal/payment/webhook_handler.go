package payment

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

const CallbackKeyHeader = "X-Callback-Key"

// WebhookHandler receives gateway callbacks. Replays of an already settled
// payment are acknowledged so the gateway stops retrying.
type WebhookHandler struct {
	*transport.BaseHandler
	processor Processor
	reader    Reader
	key       string
	logger    *slog.Logger
}

func NewWebhookHandler(base *transport.BaseHandler, processor Processor, reader Reader, key string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: base,
		processor:   processor,
		reader:      reader,
		key:         key,
		logger:      logger,
	}
}

func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.key == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(CallbackKeyHeader)), []byte(h.key)) != 1 {
		h.logger.Warn("payment callback rejected: bad callback key", "remote", r.RemoteAddr)
		h.HandleError(w, internal.NewUnauthorizedError("invalid callback key", internal.ErrCodeInvalidToken))
		return
	}

	var req CallbackRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.logger.Error("invalid payment callback request", "error", err)
		h.HandleError(w, err)
		return
	}

	h.logger.Info("received payment callback", "ref_id", req.RefID, "status", req.Status)

	p, err := h.reader.GetByRef(r.Context(), req.RefID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	switch req.Status {
	case CallbackStatusSuccess:
		_, err = h.processor.VerifyPayment(r.Context(), p.ID, req.RefID, nil)
	case CallbackStatusFailed:
		reason := req.FailureReason
		if reason == "" {
			reason = "declined by gateway"
		}
		_, err = h.processor.FailPayment(r.Context(), p.ID, reason)
	}

	switch {
	case err == nil:
		h.WriteJSON(w, http.StatusOK, CallbackResponse{Status: "success", Message: "callback processed successfully"})
	case errors.Is(err, internal.ErrPaymentDeadlineExpired):
		h.WriteJSON(w, http.StatusOK, CallbackResponse{Status: "expired", Message: "payment deadline expired; reservation released"})
	case internal.IsType(err, internal.ErrorTypeState):
		h.logger.Info("payment callback ignored", "ref_id", req.RefID, "reason", err.Error())
		h.WriteJSON(w, http.StatusOK, CallbackResponse{Status: "ignored", Message: err.Error()})
	default:
		h.logger.Error("failed to process payment callback", "error", err, "ref_id", req.RefID)
		h.HandleError(w, err)
	}
}
