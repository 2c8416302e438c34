package waitlist

import (
	"fmt"
	"time"

	"github.com/frahmantamala/table-reservation/internal/reservation"
)

type JoinRequest struct {
	reservation.SlotRequest
}

func (r JoinRequest) Command(userID int64, loc *time.Location) (JoinCommand, error) {
	w, err := r.Resolve(loc)
	if err != nil {
		return JoinCommand{}, err
	}
	return JoinCommand{
		UserID:     userID,
		TableID:    r.Table,
		Date:       w.Date,
		Start:      w.Start,
		End:        w.End,
		GuestCount: r.GuestCount,
	}, nil
}

type JoinResponse struct {
	Detail string `json:"detail"`
	Entry  *Entry `json:"entry"`
}

func joinedMessage(e *Entry) string {
	return fmt.Sprintf("You have been added to the waitlist at position %d.", e.Position)
}

type ListResponse struct {
	Count   int64    `json:"count"`
	Results []*Entry `json:"results"`
}

type ClaimResponse struct {
	Detail string `json:"detail"`
	*Conversion
}
