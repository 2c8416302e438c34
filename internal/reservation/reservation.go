package reservation

import (
	"time"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	reservationDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
)

type (
	Reservation = reservationDatamodel.Reservation
	Slot        = reservationDatamodel.Slot
	Table       = restaurant.Table
	Restaurant  = restaurant.Restaurant
)

const (
	StatusPending   = reservationDatamodel.StatusPending
	StatusConfirmed = reservationDatamodel.StatusConfirmed
	StatusCancelled = reservationDatamodel.StatusCancelled
	StatusCompleted = reservationDatamodel.StatusCompleted
	StatusExpired   = reservationDatamodel.StatusExpired

	ExpiredReason = reservationDatamodel.ExpiredReason
)

// CreateCommand carries a normalized admission request. Times are absolute
// instants; Date is the calendar day the window belongs to.
type CreateCommand struct {
	UserID     int64
	TableID    int64
	Date       time.Time
	Start      time.Time
	End        time.Time
	GuestCount int
	// PaymentGrace overrides the configured grace period when positive,
	// e.g. the claim window for reservations produced by the waitlist.
	PaymentGrace time.Duration
}

func (c CreateCommand) Slot() Slot {
	return Slot{TableID: c.TableID, Date: c.Date, Start: c.Start, End: c.End}
}

// Booking is a freshly admitted reservation together with its first payment attempt.
type Booking struct {
	Reservation *Reservation     `json:"reservation"`
	Payment     *payment.Payment `json:"payment"`
}
