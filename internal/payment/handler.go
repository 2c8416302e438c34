package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

// Processor runs the payment operations that have side effects beyond the
// ledger (events, waitlist promotion).
type Processor interface {
	VerifyPayment(ctx context.Context, paymentID int64, ref string, actor *user.Principal) (*VerifyResult, error)
	FailPayment(ctx context.Context, paymentID int64, reason string) (*Payment, error)
	RetryPayment(ctx context.Context, reservationID int64, actor *user.Principal) (*Payment, error)
	CheckoutPayment(ctx context.Context, paymentID int64, actor *user.Principal) (*Payment, error)
}

type Reader interface {
	History(ctx context.Context, actor *user.Principal, f HistoryFilter) ([]HistoryItem, int64, error)
	Detail(ctx context.Context, id int64, actor *user.Principal) (*HistoryItem, error)
	GetByRef(ctx context.Context, ref string) (*Payment, error)
}

type Handler struct {
	*transport.BaseHandler
	Processor Processor
	Reader    Reader
	Logger    *slog.Logger
}

func NewHandler(base *transport.BaseHandler, processor Processor, reader Reader, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: base,
		Processor:   processor,
		Reader:      reader,
		Logger:      logger,
	}
}

// Verify handles POST /api/v1/payment/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req VerifyRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	result, err := h.Processor.VerifyPayment(r.Context(), req.PaymentID, req.RefID, actor)
	if errors.Is(err, internal.ErrPaymentDeadlineExpired) {
		h.Logger.Info("Verify: payment arrived after deadline", "payment_id", req.PaymentID, "user_id", actor.ID)
		h.HandleError(w, err)
		return
	}
	if err != nil {
		h.Logger.Error("Verify: service error", "error", err, "payment_id", req.PaymentID, "user_id", actor.ID)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, VerifyResponse{Detail: "Payment verified.", VerifyResult: result})
}

// Fail handles POST /api/v1/payment/{id}/fail
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	var req FailRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Processor.FailPayment(r.Context(), id, req.Reason)
	if err != nil {
		h.Logger.Error("Fail: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// Retry handles POST /api/v1/payment/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	var req RetryRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Processor.RetryPayment(r.Context(), req.ReservationID, actor)
	if err != nil {
		h.Logger.Error("Retry: service error", "error", err, "reservation_id", req.ReservationID, "user_id", actor.ID)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("Retry: payment attempt opened", "payment_id", p.ID, "reservation_id", req.ReservationID, "user_id", actor.ID)
	h.WriteJSON(w, http.StatusCreated, p)
}

// Checkout handles POST /api/v1/payment/{id}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Processor.CheckoutPayment(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("Checkout: service error", "error", err, "payment_id", id, "user_id", actor.ID)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, p)
}

// History handles GET /api/v1/payment/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	filter, err := ParseHistoryFilter(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	items, total, err := h.Reader.History(r.Context(), actor, filter)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, HistoryResponse{Count: total, Results: items})
}

// Detail handles GET /api/v1/payment/history/{id}
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	item, err := h.Reader.Detail(r.Context(), id, actor)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, item)
}
