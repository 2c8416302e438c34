package waitlist

import "time"

const (
	StatusWaiting   = "waiting"
	StatusNotified  = "notified"
	StatusConverted = "converted"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// OpenStatuses are the non-terminal statuses; at most one open entry per user and slot.
var OpenStatuses = []string{StatusWaiting, StatusNotified}

type Entry struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	UserID          int64      `gorm:"column:user_id;not null;index" json:"user_id"`
	TableID         int64      `gorm:"column:table_id;not null;index:idx_waitlist_bucket" json:"table_id"`
	Date            time.Time  `gorm:"column:date;type:date;not null;index:idx_waitlist_bucket" json:"date"`
	StartAt         time.Time  `gorm:"column:start_at;not null;index:idx_waitlist_bucket" json:"start_at"`
	EndAt           time.Time  `gorm:"column:end_at;not null" json:"end_at"`
	GuestCount      int        `gorm:"column:guest_count;not null" json:"guest_count"`
	Status          string     `gorm:"column:status;not null;default:waiting;index" json:"status"`
	Position        int        `gorm:"column:position;not null" json:"position"`
	NotifiedAt      *time.Time `gorm:"column:notified_at" json:"notified_at,omitempty"`
	PaymentDeadline *time.Time `gorm:"column:payment_deadline" json:"payment_deadline,omitempty"`
	ReservationID   *int64     `gorm:"column:reservation_id;uniqueIndex" json:"reservation_id,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Entry) TableName() string {
	return "waitlist_entries"
}

func (e *Entry) ClaimExpired(now time.Time) bool {
	return e.PaymentDeadline != nil && e.PaymentDeadline.Before(now)
}
