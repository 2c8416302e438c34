// Package lifecycle owns the flows that span reservations, payments and the
// waitlist. The domain services never call each other sideways; every
// cross-cutting side effect (events, voiding payments, promotion) lives here.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/events"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/payment"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

// Causes reported with slot.freed.
const (
	CauseCancelled    = "cancelled"
	CauseExpired      = "expired"
	CauseClaimExpired = "claim_expired"
)

const voidReasonCancelled = "reservation cancelled"

type Config struct {
	AutoConvert      bool
	RetryMaxAttempts uint64
	RetryBaseDelay   time.Duration
}

type Orchestrator struct {
	reservations *reservation.Service
	ledger       *payment.Ledger
	waitlist     *waitlist.Service
	publisher    events.Publisher
	metrics      *metrics.LifecycleMetrics
	cfg          Config
	logger       *slog.Logger
}

func NewOrchestrator(
	reservations *reservation.Service,
	ledger *payment.Ledger,
	wl *waitlist.Service,
	publisher events.Publisher,
	m *metrics.LifecycleMetrics,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	return &Orchestrator{
		reservations: reservations,
		ledger:       ledger,
		waitlist:     wl,
		publisher:    publisher,
		metrics:      m,
		cfg:          cfg,
		logger:       logger,
	}
}

func (o *Orchestrator) CreateReservation(ctx context.Context, cmd reservation.CreateCommand) (*reservation.Booking, error) {
	booking, err := o.reservations.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	o.metrics.Reservation(reservation.StatusPending)
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationCreated, booking.Reservation))
	return booking, nil
}

// CancelReservation frees the slot, voids any open payment attempt and hands
// the window to the waitlist.
func (o *Orchestrator) CancelReservation(ctx context.Context, id int64, actor *user.Principal, reason string) (*reservation.Reservation, error) {
	r, err := o.reservations.Cancel(ctx, id, actor, reason)
	if err != nil {
		return nil, err
	}
	o.metrics.Reservation(reservation.StatusCancelled)
	o.voidPending(ctx, r.ID, voidReasonCancelled)
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationCancelled, r))
	o.promoteQuietly(ctx, r.Slot(), CauseCancelled)
	return r, nil
}

// VerifyPayment confirms the reservation behind a payment. A late payment
// releases the slot before the deadline error is returned.
func (o *Orchestrator) VerifyPayment(ctx context.Context, paymentID int64, ref string, actor *user.Principal) (*payment.VerifyResult, error) {
	res, err := o.ledger.Verify(ctx, paymentID, ref, actor)
	if errors.Is(err, internal.ErrPaymentDeadlineExpired) && res != nil {
		o.metrics.Payment(payment.StatusFailed)
		o.publish(ctx, events.NewPaymentEvent(events.EventTypePaymentFailed, res.Payment))
		if res.Reservation != nil {
			o.metrics.Reservation(reservation.StatusExpired)
			o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationExpired, res.Reservation))
			o.voidPending(ctx, res.Reservation.ID, reservation.ExpiredReason)
			o.promoteQuietly(ctx, res.Reservation.Slot(), CauseExpired)
		}
		return res, err
	}
	if err != nil {
		return nil, err
	}
	o.metrics.Payment(payment.StatusVerified)
	o.metrics.Reservation(reservation.StatusConfirmed)
	o.publish(ctx, events.NewPaymentEvent(events.EventTypePaymentVerified, res.Payment))
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationConfirmed, res.Reservation))
	return res, nil
}

func (o *Orchestrator) FailPayment(ctx context.Context, paymentID int64, reason string) (*payment.Payment, error) {
	p, err := o.ledger.Fail(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}
	o.metrics.Payment(payment.StatusFailed)
	o.publish(ctx, events.NewPaymentEvent(events.EventTypePaymentFailed, p))
	return p, nil
}

func (o *Orchestrator) RetryPayment(ctx context.Context, reservationID int64, actor *user.Principal) (*payment.Payment, error) {
	return o.ledger.Retry(ctx, reservationID, actor)
}

func (o *Orchestrator) CheckoutPayment(ctx context.Context, paymentID int64, actor *user.Principal) (*payment.Payment, error) {
	return o.ledger.Checkout(ctx, paymentID, actor)
}

func (o *Orchestrator) JoinWaitlist(ctx context.Context, cmd waitlist.JoinCommand) (*waitlist.Entry, error) {
	return o.waitlist.Join(ctx, cmd)
}

func (o *Orchestrator) CancelWaitlist(ctx context.Context, id int64, actor *user.Principal) (*waitlist.Entry, error) {
	return o.waitlist.Cancel(ctx, id, actor)
}

// ClaimWaitlist converts a notified entry. An expired claim passes the window
// on to the next waiter before the error is returned.
func (o *Orchestrator) ClaimWaitlist(ctx context.Context, id int64, actor *user.Principal) (*waitlist.Conversion, error) {
	conv, err := o.waitlist.Convert(ctx, id, actor)
	if errors.Is(err, internal.ErrClaimDeadlineExpired) && conv != nil {
		o.publish(ctx, events.NewWaitlistEvent(events.EventTypeWaitlistExpired, conv.Entry))
		o.promoteQuietly(ctx, waitlist.SlotOf(conv.Entry), CauseClaimExpired)
		return conv, err
	}
	if err != nil {
		return nil, err
	}
	o.recordConversion(ctx, conv)
	return conv, nil
}

// OnSlotFreed promotes the oldest overlapping waiter and, with auto-convert
// on, claims the slot for them straight away. A failed conversion leaves the
// entry NOTIFIED for the user to claim. Returns the promoted entry or nil.
func (o *Orchestrator) OnSlotFreed(ctx context.Context, slot reservation.Slot, cause string) (*waitlist.Entry, error) {
	o.publish(ctx, events.NewSlotFreedEvent(slot, cause))

	entry, err := o.promote(ctx, slot)
	if err != nil {
		o.metrics.Promotion("error")
		return nil, err
	}
	if entry == nil {
		o.metrics.Promotion("none")
		return nil, nil
	}
	o.publish(ctx, events.NewWaitlistEvent(events.EventTypeWaitlistNotified, entry))

	if !o.cfg.AutoConvert {
		o.metrics.Promotion("notified")
		return entry, nil
	}

	conv, err := o.waitlist.Convert(ctx, entry.ID, nil)
	if err != nil {
		o.metrics.Promotion("convert_failed")
		o.logger.Warn("auto-convert failed; entry left for manual claim",
			"entry_id", entry.ID,
			"error", err)
		if conv != nil {
			return conv.Entry, nil
		}
		return entry, nil
	}
	o.metrics.Promotion("converted")
	o.recordConversion(ctx, conv)
	return conv.Entry, nil
}

// promote retries only transient store failures. Promotion acts on WAITING
// rows alone, so a repeated attempt after a commit finds nothing to do.
func (o *Orchestrator) promote(ctx context.Context, slot reservation.Slot) (*waitlist.Entry, error) {
	var entry *waitlist.Entry
	backoff := retry.WithMaxRetries(o.cfg.RetryMaxAttempts, retry.NewExponential(o.cfg.RetryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		e, err := o.waitlist.Promote(ctx, slot)
		if err != nil {
			if internal.IsType(err, internal.ErrorTypeInternal) {
				o.logger.Warn("waitlist promotion attempt failed", "table_id", slot.TableID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

func (o *Orchestrator) promoteQuietly(ctx context.Context, slot reservation.Slot, cause string) {
	if _, err := o.OnSlotFreed(ctx, slot, cause); err != nil {
		o.logger.Error("waitlist promotion failed",
			"table_id", slot.TableID,
			"start_at", slot.Start,
			"cause", cause,
			"error", err)
	}
}

func (o *Orchestrator) recordConversion(ctx context.Context, conv *waitlist.Conversion) {
	o.metrics.Reservation(reservation.StatusPending)
	o.publish(ctx, events.NewWaitlistEvent(events.EventTypeWaitlistConverted, conv.Entry))
	o.publish(ctx, events.NewReservationEvent(events.EventTypeReservationCreated, conv.Booking.Reservation))
}

func (o *Orchestrator) voidPending(ctx context.Context, reservationID int64, reason string) {
	n, err := o.ledger.VoidPending(ctx, reservationID, reason)
	if err != nil {
		o.logger.Error("failed to void pending payments", "reservation_id", reservationID, "error", err)
		return
	}
	if n > 0 {
		o.metrics.Payment(payment.StatusFailed)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
