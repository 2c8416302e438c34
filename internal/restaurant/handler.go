package restaurant

import (
	"context"
	"net/http"
	"strings"

	"github.com/frahmantamala/table-reservation/internal/transport"
)

type ServiceAPI interface {
	GetAllRestaurants(ctx context.Context) ([]RestaurantResponse, error)
	GetRestaurant(ctx context.Context, id int64) (*RestaurantResponse, error)
	GetTables(ctx context.Context, id int64, tableType string, party int) (*TablesResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetRestaurants handles GET /api/v1/restaurants
func (h *Handler) GetRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.Service.GetAllRestaurants(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RestaurantsResponse{
		Restaurants: restaurants,
	})
}

// GetRestaurant handles GET /api/v1/restaurants/{id}
func (h *Handler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	resp, err := h.Service.GetRestaurant(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetTables handles GET /api/v1/restaurants/{id}/tables
func (h *Handler) GetTables(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	party, err := h.QueryInt(r, "number_of_people", 0)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	tableType := strings.ToUpper(r.URL.Query().Get("table_type"))

	resp, err := h.Service.GetTables(r.Context(), id, tableType, party)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
