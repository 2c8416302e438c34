package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/table-reservation/internal/core/events"
)

// Relay forwards every bus event to a Sink.
type Relay struct {
	sink        Sink
	maxAttempts uint64
	baseDelay   time.Duration
	logger      *slog.Logger
}

func NewRelay(sink Sink, maxAttempts uint64, baseDelay time.Duration, logger *slog.Logger) *Relay {
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &Relay{sink: sink, maxAttempts: maxAttempts, baseDelay: baseDelay, logger: logger}
}

// Attach subscribes the relay to every event type on bus.
func (r *Relay) Attach(bus *events.EventBus) {
	bus.Subscribe(events.Wildcard, r.Handle)
}

func (r *Relay) Handle(ctx context.Context, event events.Event) error {
	env := NewEnvelope(event)
	body, err := env.Marshal()
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(r.maxAttempts, retry.NewExponential(r.baseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.sink.Send(ctx, env.Key(), body); err != nil {
			r.logger.Warn("event relay attempt failed", "event_type", env.Type, "event_id", env.ID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("event relay gave up", "event_type", env.Type, "event_id", env.ID, "error", err)
		return err
	}
	return nil
}
