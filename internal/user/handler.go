package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/table-reservation/internal/transport"
)

type ServiceAPI interface {
	Profile(ctx context.Context, userID int64) (*Profile, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// GetCurrentUser handles GET /me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.Principal(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	profile, err := h.Service.Profile(r.Context(), p.ID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, profile)
}
