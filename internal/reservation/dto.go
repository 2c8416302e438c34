package reservation

import (
	"time"

	"github.com/frahmantamala/table-reservation/internal"
)

// SlotRequest is the wire shape shared by reservation and waitlist requests.
// Date and clocks are local to the restaurant's timezone.
type SlotRequest struct {
	Table      int64  `json:"table" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
	GuestCount int    `json:"guest_count" validate:"required,gte=1"`
}

func (r SlotRequest) Resolve(loc *time.Location) (Window, error) {
	w, err := ResolveWindow(r.Date, r.StartTime, r.EndTime, loc)
	if err != nil {
		return Window{}, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidWindow)
	}
	return w, nil
}

type CreateRequest struct {
	SlotRequest
}

// Command resolves the request for userID.
func (r CreateRequest) Command(userID int64, loc *time.Location) (CreateCommand, error) {
	w, err := r.Resolve(loc)
	if err != nil {
		return CreateCommand{}, err
	}
	return CreateCommand{
		UserID:     userID,
		TableID:    r.Table,
		Date:       w.Date,
		Start:      w.Start,
		End:        w.End,
		GuestCount: r.GuestCount,
	}, nil
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type CreateResponse struct {
	Detail string `json:"detail"`
	*Booking
}

type ListResponse struct {
	Count   int64          `json:"count"`
	Results []*Reservation `json:"results"`
}
