package restaurant

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TableTypeNormal = "NORMAL"
	TableTypeVIP    = "VIP"
)

type Restaurant struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	Name               string          `gorm:"column:name;not null" json:"name"`
	Address            string          `gorm:"column:address" json:"address"`
	Phone              string          `gorm:"column:phone" json:"phone"`
	NormalPricePerSeat decimal.Decimal `gorm:"column:normal_price_per_seat;type:numeric(12,2);not null" json:"normal_price_per_seat"`
	VIPPricePerSeat    decimal.Decimal `gorm:"column:vip_price_per_seat;type:numeric(12,2);not null" json:"vip_price_per_seat"`
	OpeningTime        string          `gorm:"column:opening_time;not null" json:"opening_time"`
	ClosingTime        string          `gorm:"column:closing_time;not null" json:"closing_time"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// SeatPrice is the per-seat rate for the given table type.
func (r *Restaurant) SeatPrice(tableType string) decimal.Decimal {
	if tableType == TableTypeVIP {
		return r.VIPPricePerSeat
	}
	return r.NormalPricePerSeat
}

type Table struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	RestaurantID int64     `gorm:"column:restaurant_id;not null;uniqueIndex:idx_restaurant_table_number" json:"restaurant_id"`
	Number       int       `gorm:"column:number;not null;uniqueIndex:idx_restaurant_table_number" json:"number"`
	TableType    string    `gorm:"column:table_type;not null;default:NORMAL" json:"table_type"`
	Capacity     int       `gorm:"column:capacity;not null" json:"capacity"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Table) TableName() string {
	return "restaurant_tables"
}

func (t *Table) IsVIP() bool {
	return t.TableType == TableTypeVIP
}
