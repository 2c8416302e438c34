package restaurant

import "github.com/shopspring/decimal"

type RestaurantResponse struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Address            string          `json:"address"`
	Phone              string          `json:"phone"`
	NormalPricePerSeat decimal.Decimal `json:"normal_price_per_seat"`
	VIPPricePerSeat    decimal.Decimal `json:"vip_price_per_seat"`
	OpeningTime        string          `json:"opening_time"`
	ClosingTime        string          `json:"closing_time"`
	TableCount         int             `json:"table_count"`
}

type RestaurantsResponse struct {
	Restaurants []RestaurantResponse `json:"restaurants"`
}

type TableResponse struct {
	ID        int64           `json:"id"`
	Number    int             `json:"number"`
	TableType string          `json:"table_type"`
	Capacity  int             `json:"capacity"`
	SeatPrice decimal.Decimal `json:"seat_price"`
}

type TablesResponse struct {
	RestaurantID int64           `json:"restaurant_id"`
	Tables       []TableResponse `json:"tables"`
}
