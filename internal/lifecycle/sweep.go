package lifecycle

import (
	"context"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/events"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
)

// Sweep operations are idempotent per item; the scheduler batches them.

func (o *Orchestrator) ListExpiredPending(ctx context.Context, limit int) ([]*reservation.Reservation, error) {
	return o.reservations.ListExpiredPending(ctx, limit)
}

// ExpireReservation releases a PENDING reservation past its payment deadline
// and promotes the next waiter. Rows that already moved on are skipped.
func (o *Orchestrator) ExpireReservation(ctx context.Context, id int64) error {
	r, ok, err := o.reservations.MarkExpired(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	o.metrics.Reservation(reservation.StatusExpired)
	o.voidPending(ctx, r.ID, reservation.ExpiredReason)
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationExpired, r))

	_, err = o.OnSlotFreed(ctx, r.Slot(), CauseExpired)
	return err
}

func (o *Orchestrator) ListExpiredClaims(ctx context.Context, limit int) ([]*waitlist.Entry, error) {
	return o.waitlist.ListExpiredClaims(ctx, limit)
}

// ExpireClaim closes a lapsed claim, releases any reservation still pending on
// its behalf and cascades the promotion to the next waiter.
func (o *Orchestrator) ExpireClaim(ctx context.Context, id int64) error {
	e, ok, err := o.waitlist.Expire(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	o.publish(ctx, events.NewWaitlistEvent(events.EventTypeWaitlistExpired, e))

	if e.ReservationID != nil {
		r, expired, err := o.reservations.MarkExpired(ctx, *e.ReservationID)
		if err != nil && !internal.IsType(err, internal.ErrorTypeNotFound) {
			return err
		}
		if expired {
			o.metrics.Reservation(reservation.StatusExpired)
			o.voidPending(ctx, r.ID, reservation.ExpiredReason)
			o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationExpired, r))
		}
	}

	_, err = o.OnSlotFreed(ctx, waitlist.SlotOf(e), CauseClaimExpired)
	return err
}

func (o *Orchestrator) ListCompletable(ctx context.Context, limit int) ([]*reservation.Reservation, error) {
	return o.reservations.ListCompletable(ctx, limit)
}

func (o *Orchestrator) CompleteReservation(ctx context.Context, id int64) error {
	r, err := o.reservations.Complete(ctx, id)
	if err != nil {
		return err
	}
	o.metrics.Reservation(reservation.StatusCompleted)
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationCompleted, r))
	return nil
}
