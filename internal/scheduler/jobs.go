package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
)

const (
	JobExpirePendingReservations = "expire-pending-reservations"
	JobExpireWaitlistClaims      = "expire-waitlist-claims"
	JobCompleteReservations      = "complete-reservations"
)

const defaultBatchSize = 100

// Sweeper is the part of the lifecycle orchestrator the sweeps drive.
type Sweeper interface {
	ListExpiredPending(ctx context.Context, limit int) ([]*reservation.Reservation, error)
	ExpireReservation(ctx context.Context, id int64) error
	ListExpiredClaims(ctx context.Context, limit int) ([]*waitlist.Entry, error)
	ExpireClaim(ctx context.Context, id int64) error
	ListCompletable(ctx context.Context, limit int) ([]*reservation.Reservation, error)
	CompleteReservation(ctx context.Context, id int64) error
}

// batchJob lists up to batch ids and handles each one independently; one
// failing item never stops the rest.
type batchJob struct {
	name   string
	batch  int
	list   func(ctx context.Context, limit int) ([]int64, error)
	handle func(ctx context.Context, id int64) error
	logger *slog.Logger
}

func (j *batchJob) Name() string { return j.name }

func (j *batchJob) Run(ctx context.Context) error {
	ids, err := j.list(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("%s: list: %w", j.name, err)
	}
	if len(ids) == 0 {
		return nil
	}

	var errs error
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		if err := j.handle(ctx, id); err != nil {
			j.logger.Warn("sweep item failed", "job", j.name, "id", id, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("id %d: %w", id, err))
			continue
		}
		done++
	}
	j.logger.Info("sweep finished", "job", j.name, "found", len(ids), "processed", done)
	return errs
}

func normalizeBatch(n int) int {
	if n <= 0 {
		return defaultBatchSize
	}
	return n
}

func NewExpirePendingReservationsJob(s Sweeper, batch int, logger *slog.Logger) Job {
	return &batchJob{
		name:  JobExpirePendingReservations,
		batch: normalizeBatch(batch),
		list: func(ctx context.Context, limit int) ([]int64, error) {
			rows, err := s.ListExpiredPending(ctx, limit)
			return reservationIDs(rows), err
		},
		handle: s.ExpireReservation,
		logger: logger,
	}
}

func NewExpireWaitlistClaimsJob(s Sweeper, batch int, logger *slog.Logger) Job {
	return &batchJob{
		name:  JobExpireWaitlistClaims,
		batch: normalizeBatch(batch),
		list: func(ctx context.Context, limit int) ([]int64, error) {
			rows, err := s.ListExpiredClaims(ctx, limit)
			ids := make([]int64, 0, len(rows))
			for _, e := range rows {
				ids = append(ids, e.ID)
			}
			return ids, err
		},
		handle: s.ExpireClaim,
		logger: logger,
	}
}

func NewCompleteReservationsJob(s Sweeper, batch int, logger *slog.Logger) Job {
	return &batchJob{
		name:  JobCompleteReservations,
		batch: normalizeBatch(batch),
		list: func(ctx context.Context, limit int) ([]int64, error) {
			rows, err := s.ListCompletable(ctx, limit)
			return reservationIDs(rows), err
		},
		handle: s.CompleteReservation,
		logger: logger,
	}
}

func reservationIDs(rows []*reservation.Reservation) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

// SweepRegistry registers the three sweeps with their configured schedules.
func SweepRegistry(s Sweeper, cfg internal.SchedulerConfig, logger *slog.Logger) *Registry {
	reg := NewRegistry()
	reg.Register(NewExpirePendingReservationsJob(s, cfg.BatchSize, logger), schedule(JobExpirePendingReservations, cfg.Jobs.ExpirePendingReservations))
	reg.Register(NewExpireWaitlistClaimsJob(s, cfg.BatchSize, logger), schedule(JobExpireWaitlistClaims, cfg.Jobs.ExpireWaitlistClaims))
	reg.Register(NewCompleteReservationsJob(s, cfg.BatchSize, logger), schedule(JobCompleteReservations, cfg.Jobs.CompleteReservations))
	return reg
}

func schedule(name string, j internal.JobConfig) RecurringJob {
	interval := j.Interval
	if j.Disabled {
		interval = 0
	}
	return RecurringJob{Name: name, Interval: interval, Timeout: j.Timeout}
}
