package waitlist

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

type Processor interface {
	JoinWaitlist(ctx context.Context, cmd JoinCommand) (*Entry, error)
	CancelWaitlist(ctx context.Context, id int64, actor *user.Principal) (*Entry, error)
	ClaimWaitlist(ctx context.Context, id int64, actor *user.Principal) (*Conversion, error)
}

type Lister interface {
	ListForUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Entry, int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Processor Processor
	Lister    Lister
	Location  *time.Location
	Logger    *slog.Logger
}

func NewHandler(base *transport.BaseHandler, processor Processor, lister Lister, loc *time.Location, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: base,
		Processor:   processor,
		Lister:      lister,
		Location:    loc,
		Logger:      logger,
	}
}

// Join handles POST /api/v1/waitlist
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	var req JoinRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	cmd, err := req.Command(actor.ID, h.Location)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	entry, err := h.Processor.JoinWaitlist(r.Context(), cmd)
	if err != nil {
		h.Logger.Info("Join: rejected", "error", err, "user_id", actor.ID, "table_id", cmd.TableID)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, JoinResponse{Detail: joinedMessage(entry), Entry: entry})
}

// List handles GET /api/v1/waitlist
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	limit, err := h.QueryInt(r, "limit", 20)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	offset, err := h.QueryInt(r, "offset", 0)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	entries, total, err := h.Lister.ListForUser(r.Context(), actor.ID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Count: total, Results: entries})
}

// Cancel handles POST /api/v1/waitlist/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	entry, err := h.Processor.CancelWaitlist(r.Context(), id, actor)
	if err != nil {
		h.HandleStateAsBadRequest(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"detail": "Waitlist entry cancelled.",
		"entry":  entry,
	})
}

// Claim handles POST /api/v1/waitlist/{id}/claim
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
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

	conv, err := h.Processor.ClaimWaitlist(r.Context(), id, actor)
	if errors.Is(err, internal.ErrClaimDeadlineExpired) {
		h.HandleError(w, internal.ErrClaimDeadlineExpired.WithMessage("Payment deadline has passed."))
		return
	}
	if err != nil {
		h.Logger.Info("Claim: rejected", "error", err, "entry_id", id, "user_id", actor.ID)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ClaimResponse{
		Detail:     "Reservation created successfully. Please complete the payment.",
		Conversion: conv,
	})
}
