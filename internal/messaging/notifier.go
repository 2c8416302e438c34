package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/table-reservation/internal/core/events"
)

// Notifier turns lifecycle events into customer-facing notices. Delivery is
// a structured log line; events nobody is told about are skipped.
type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Handle(_ context.Context, env Envelope) error {
	msg, ok := Message(env)
	if !ok {
		return nil
	}
	n.logger.Info("notification",
		"event_type", env.Type,
		"event_id", env.ID,
		"user_id", env.Data["user_id"],
		"message", msg)
	return nil
}

// Message renders the notice for env, if the event warrants one.
func Message(env Envelope) (string, bool) {
	switch env.Type {
	case events.EventTypeReservationCreated:
		return fmt.Sprintf("Reservation %v on %s is held until %s. Please complete payment.",
			env.Data["reservation_id"], env.Field("date"), deadline(env, "payment_deadline")), true
	case events.EventTypeReservationConfirmed:
		return fmt.Sprintf("Reservation %v on %s is confirmed.", env.Data["reservation_id"], env.Field("date")), true
	case events.EventTypeReservationExpired:
		return fmt.Sprintf("Reservation %v expired because payment was not received in time.", env.Data["reservation_id"]), true
	case events.EventTypeReservationCancelled:
		return fmt.Sprintf("Reservation %v was cancelled.", env.Data["reservation_id"]), true
	case events.EventTypePaymentFailed:
		return fmt.Sprintf("Payment %v failed: %s", env.Data["payment_id"], env.Field("failure_reason")), true
	case events.EventTypeWaitlistNotified:
		return fmt.Sprintf("A table opened up on %s. Claim it before %s.",
			env.Field("date"), deadline(env, "claim_deadline")), true
	case events.EventTypeWaitlistExpired:
		return "Your waitlist claim window has passed.", true
	}
	return "", false
}

func deadline(env Envelope, field string) string {
	if v := env.Field(field); v != "" {
		return v
	}
	if v, ok := env.Data[field]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return "the deadline"
}
