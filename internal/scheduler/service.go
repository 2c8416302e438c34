package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

const defaultTimeout = 30 * time.Second

type ServiceParams struct {
	Logger   *slog.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
}

// Service runs every registered job on its own ticker.
type Service struct {
	logger   *slog.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.CronJobMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	locks := params.Locks
	if locks == nil {
		locks = NoopLocks()
	}
	return &Service{
		logger:   params.Logger,
		registry: registry,
		locks:    locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per enabled job and blocks until ctx is cancelled.
// Every lock is built before the first loop starts, so a lock error leaves
// nothing running.
func (s *Service) Run(ctx context.Context) error {
	type scheduled struct {
		entry entry
		lock  Lock
	}
	var loops []scheduled
	for _, e := range s.registry.schedules() {
		if e.schedule.Interval <= 0 {
			s.logger.Info("job disabled", "job", e.schedule.Name)
			continue
		}
		lock, err := s.locks(e.schedule.Name)
		if err != nil {
			return fmt.Errorf("lock for %s: %w", e.schedule.Name, err)
		}
		loops = append(loops, scheduled{entry: e, lock: lock})
	}

	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(e entry, lock Lock) {
			defer wg.Done()
			s.loop(ctx, e, lock)
		}(l.entry, l.lock)
	}
	s.logger.Info("scheduler started", "jobs", len(loops))
	<-ctx.Done()
	wg.Wait()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// RunOnce runs every registered job a single time, in order, ignoring
// intervals. Errors are aggregated by the jobs themselves and logged here.
func (s *Service) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, e := range s.registry.schedules() {
		lock, err := s.locks(e.schedule.Name)
		if err != nil {
			return fmt.Errorf("lock for %s: %w", e.schedule.Name, err)
		}
		if err := s.runCycle(ctx, e, lock); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) loop(ctx context.Context, e entry, lock Lock) {
	if err := s.runCycle(ctx, e, lock); err != nil {
		s.logger.Error("scheduled run failed", "job", e.schedule.Name, "error", err)
	}
	ticker := time.NewTicker(e.schedule.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runCycle(ctx, e, lock); err != nil {
				s.logger.Error("scheduled run failed", "job", e.schedule.Name, "error", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context, e entry, lock Lock) error {
	name := e.schedule.Name
	locked, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logger.Debug("another instance holds the job lock; skipping", "job", name)
		s.metrics.IncSkipped(name)
		return nil
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.Error("failed to release job lock", "job", name, "error", relErr)
		}
	}()
	return s.runJob(ctx, e)
}

func (s *Service) runJob(ctx context.Context, e entry) error {
	name := e.schedule.Name
	timeout := e.schedule.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := e.job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(name, duration)

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration_ms", duration.Milliseconds(), "error", err)
		s.metrics.IncFailure(name)
		return err
	}
	s.logger.Debug("job completed", "job", name, "duration_ms", duration.Milliseconds())
	s.metrics.IncSuccess(name)
	return nil
}
