package waitlist

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/waitlist"
	"github.com/frahmantamala/table-reservation/internal/reservation"
)

type Entry = waitlist.Entry

const (
	StatusWaiting   = waitlist.StatusWaiting
	StatusNotified  = waitlist.StatusNotified
	StatusConverted = waitlist.StatusConverted
	StatusExpired   = waitlist.StatusExpired
	StatusCancelled = waitlist.StatusCancelled
)

// Repository is the waitlist store. WithTx rebinds it to an open transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id int64) (*Entry, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Entry, error)
	HasOpenDuplicate(ctx context.Context, userID int64, slot reservation.Slot) (bool, error)
	MaxPosition(ctx context.Context, tableID int64, date, start time.Time) (int, error)
	// FirstWaiting returns the oldest WAITING entry overlapping slot, or nil.
	FirstWaiting(ctx context.Context, slot reservation.Slot) (*Entry, error)
	TransitionStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error)
	ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Entry, int64, error)
	ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
}

// JoinCommand is a normalized waitlist request; times are absolute instants.
type JoinCommand struct {
	UserID     int64
	TableID    int64
	Date       time.Time
	Start      time.Time
	End        time.Time
	GuestCount int
}

func (c JoinCommand) Slot() reservation.Slot {
	return reservation.Slot{TableID: c.TableID, Date: c.Date, Start: c.Start, End: c.End}
}

// SlotOf returns the window an entry is waiting for.
func SlotOf(e *Entry) reservation.Slot {
	return reservation.Slot{TableID: e.TableID, Date: e.Date, Start: e.StartAt, End: e.EndAt}
}

// Conversion is a claimed entry together with the reservation it produced.
type Conversion struct {
	Entry   *Entry               `json:"entry"`
	Booking *reservation.Booking `json:"booking"`
}
