package reservation

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

// Processor runs the reservation transitions that have side effects beyond
// the reservation row.
type Processor interface {
	CreateReservation(ctx context.Context, cmd CreateCommand) (*Booking, error)
	CancelReservation(ctx context.Context, id int64, actor *user.Principal, reason string) (*Reservation, error)
}

type Reader interface {
	ListForUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Reservation, int64, error)
	GetForActor(ctx context.Context, id int64, actor *user.Principal) (*Reservation, error)
}

type Handler struct {
	*transport.BaseHandler
	Processor    Processor
	Reader       Reader
	Availability *AvailabilityService
	Logger       *slog.Logger
}

func NewHandler(base *transport.BaseHandler, processor Processor, reader Reader, availability *AvailabilityService, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:  base,
		Processor:    processor,
		Reader:       reader,
		Availability: availability,
		Logger:       logger,
	}
}

// Search handles GET /api/v1/availability
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	restaurantID, err := strconv.ParseInt(q.Get("restaurant"), 10, 64)
	if err != nil || restaurantID <= 0 {
		h.HandleError(w, internal.NewValidationFieldError("restaurant", "restaurant is required", internal.ErrCodeValidationFailed))
		return
	}
	people, err := h.QueryInt(r, "number_of_people", 1)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	res, err := h.Availability.Search(r.Context(), AvailabilityQuery{
		RestaurantID:   restaurantID,
		Date:           q.Get("date"),
		StartTime:      q.Get("start_time"),
		EndTime:        q.Get("end_time"),
		NumberOfPeople: people,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

// Create handles POST /api/v1/reservations
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	var req CreateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	cmd, err := req.Command(actor.ID, h.Availability.Location())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	booking, err := h.Processor.CreateReservation(r.Context(), cmd)
	if err != nil {
		h.Logger.Info("Create: rejected", "error", err, "user_id", actor.ID, "table_id", cmd.TableID)
		h.HandleStateAsBadRequest(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, CreateResponse{
		Detail:  "Reservation created successfully. Please complete the payment.",
		Booking: booking,
	})
}

// List handles GET /api/v1/reservations
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

	items, total, err := h.Reader.ListForUser(r.Context(), actor.ID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Count: total, Results: items})
}

// Get handles GET /api/v1/reservations/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.Reader.GetForActor(r.Context(), id, actor)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

// Cancel handles POST /api/v1/reservations/{id}/cancel
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
	var req CancelRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	res, err := h.Processor.CancelReservation(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.HandleStateAsBadRequest(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"detail":      "Reservation cancelled.",
		"reservation": res,
	})
}
