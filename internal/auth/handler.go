package auth

import (
	"net/http"

	"github.com/frahmantamala/table-reservation/internal/transport"
)

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

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	resp, err := h.Service.Authenticate(r.Context(), req)
	if err != nil {
		h.Logger.Warn("authentication failed", "error", err)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
