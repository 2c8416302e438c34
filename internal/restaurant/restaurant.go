package restaurant

import restaurantDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"

type (
	Restaurant = restaurantDatamodel.Restaurant
	Table      = restaurantDatamodel.Table
)

func ToResponse(r *Restaurant, tableCount int) RestaurantResponse {
	return RestaurantResponse{
		ID:                 r.ID,
		Name:               r.Name,
		Address:            r.Address,
		Phone:              r.Phone,
		NormalPricePerSeat: r.NormalPricePerSeat,
		VIPPricePerSeat:    r.VIPPricePerSeat,
		OpeningTime:        r.OpeningTime,
		ClosingTime:        r.ClosingTime,
		TableCount:         tableCount,
	}
}

func ToTableResponse(r *Restaurant, t *Table) TableResponse {
	return TableResponse{
		ID:        t.ID,
		Number:    t.Number,
		TableType: t.TableType,
		Capacity:  t.Capacity,
		SeatPrice: r.SeatPrice(t.TableType),
	}
}

// fits reports whether t matches the optional type and party filters.
func fits(t *Table, tableType string, party int) bool {
	if tableType != "" && t.TableType != tableType {
		return false
	}
	return t.Capacity >= party
}

const (
	TableTypeNormal = restaurantDatamodel.TableTypeNormal
	TableTypeVIP    = restaurantDatamodel.TableTypeVIP
)
