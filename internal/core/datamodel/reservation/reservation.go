package reservation

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

const ExpiredReason = "payment deadline expired"

type Reservation struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	UserID             int64           `gorm:"column:user_id;not null;index" json:"user_id"`
	TableID            int64           `gorm:"column:table_id;not null;index:idx_reservation_slot" json:"table_id"`
	Date               time.Time       `gorm:"column:date;type:date;not null;index:idx_reservation_slot" json:"date"`
	StartAt            time.Time       `gorm:"column:start_at;not null" json:"start_at"`
	EndAt              time.Time       `gorm:"column:end_at;not null" json:"end_at"`
	GuestCount         int             `gorm:"column:guest_count;not null" json:"guest_count"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Status             string          `gorm:"column:status;not null;default:pending;index" json:"status"`
	PaymentDeadline    *time.Time      `gorm:"column:payment_deadline" json:"payment_deadline,omitempty"`
	CancellationReason string          `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

func (r *Reservation) CanCancel() bool {
	return r.IsActive()
}

func (r *Reservation) CanConfirm() bool {
	return r.Status == StatusPending
}

func (r *Reservation) DeadlinePassed(now time.Time) bool {
	return r.PaymentDeadline != nil && r.PaymentDeadline.Before(now)
}

func (r *Reservation) Slot() Slot {
	return Slot{TableID: r.TableID, Date: r.Date, Start: r.StartAt, End: r.EndAt}
}

// Slot is a table, a calendar date and a half-open [Start, End) window.
type Slot struct {
	TableID int64     `json:"table_id"`
	Date    time.Time `json:"date"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

func (s Slot) Overlaps(o Slot) bool {
	return s.TableID == o.TableID && s.Date.Equal(o.Date) && Overlaps(s.Start, s.End, o.Start, o.End)
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
