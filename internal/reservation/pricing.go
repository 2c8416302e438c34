package reservation

import "github.com/shopspring/decimal"

// Price is what a party pays: guests times the per-seat rate of the table type.
func Price(r *Restaurant, t *Table, guests int) decimal.Decimal {
	return r.SeatPrice(t.TableType).Mul(decimal.NewFromInt(int64(guests)))
}

// TablePrice is the listing price shown by availability search, (capacity-1) seats.
func TablePrice(r *Restaurant, t *Table) decimal.Decimal {
	seats := t.Capacity - 1
	if seats < 0 {
		seats = 0
	}
	return r.SeatPrice(t.TableType).Mul(decimal.NewFromInt(int64(seats)))
}
