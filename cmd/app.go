package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/auth"
	"github.com/frahmantamala/table-reservation/internal/core/events"
	"github.com/frahmantamala/table-reservation/internal/lifecycle"
	"github.com/frahmantamala/table-reservation/internal/messaging"
	"github.com/frahmantamala/table-reservation/internal/payment"
	paymentPostgres "github.com/frahmantamala/table-reservation/internal/payment/postgres"
	"github.com/frahmantamala/table-reservation/internal/paymentgateway"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	reservationPostgres "github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/scheduler"
	"github.com/frahmantamala/table-reservation/internal/user"
	userPostgres "github.com/frahmantamala/table-reservation/internal/user/postgres"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	waitlistPostgres "github.com/frahmantamala/table-reservation/internal/waitlist/postgres"
	"github.com/frahmantamala/table-reservation/pkg/db"
	"github.com/frahmantamala/table-reservation/pkg/logger"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
	"github.com/frahmantamala/table-reservation/pkg/redis"
)

type appOptions struct {
	// Gateway starts the simulated payment gateway worker pool.
	Gateway bool
}

// Dependencies is everything the commands share, wired once.
type Dependencies struct {
	Config   *internal.Config
	Logger   *slog.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry *prometheus.Registry
	Location *time.Location

	Bus  *events.EventBus
	Sink messaging.Sink

	Reservations *reservation.Service
	Availability *reservation.AvailabilityService
	Ledger       *payment.Ledger
	History      *paymentPostgres.HistoryReader
	Waitlist     *waitlist.Service
	Orchestrator *lifecycle.Orchestrator
	Gateway      *paymentgateway.Client
	Auth         *auth.Service
	Users        *user.Service
	Scheduler    *scheduler.Service
}

func initializeDependencies(ctx context.Context, opts appOptions) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.Init(cfg.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	loc, err := cfg.Reservation.Location()
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Config: cfg, Logger: lg, Location: loc}

	deps.DB, err = db.New(ctx, db.Options{
		DSN:             cfg.Database.Source,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := deps.DB.SQL()
	if err != nil {
		deps.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		deps.Redis, err = redis.New(ctx, redis.Config{
			URL:      cfg.Redis.URL,
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps.Bus = events.NewEventBus(lg)
	msg := cfg.Messaging
	deps.Sink, err = messaging.NewSink(msg.Driver, msg.AMQPURL, msg.Queue, msg.KafkaBrokers, msg.KafkaTopic, lg)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open event sink: %w", err)
	}
	messaging.NewRelay(deps.Sink, cfg.Scheduler.RetryMaxAttempts, cfg.Scheduler.RetryBaseDelay, lg).Attach(deps.Bus)

	gormDB := deps.DB.DB()
	reservationRepo := reservationPostgres.NewReservationRepository(gormDB)
	deps.Reservations = reservation.NewService(deps.DB, reservationRepo, reservation.Config{
		PaymentGracePeriod: cfg.Reservation.PaymentGracePeriod,
	}, lg)
	deps.Availability = reservation.NewAvailabilityService(reservationRepo, loc, lg)

	deps.History = paymentPostgres.NewHistoryReader(sqlx.NewDb(sqlDB, "pgx"))
	deps.Ledger = payment.NewLedger(deps.DB, paymentPostgres.NewPaymentRepository(gormDB), deps.History, deps.Reservations, lg)
	if opts.Gateway {
		gw := cfg.PaymentGateway
		callback := gw.CallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/api/v1/payment/callback", cfg.Server.Port)
		}
		deps.Gateway, err = paymentgateway.NewClient(paymentgateway.Config{
			Workers:     gw.Workers,
			QueueSize:   gw.QueueSize,
			Latency:     gw.Latency,
			FailureRate: gw.FailureRate,
			CallbackURL: callback,
			CallbackKey: gw.CallbackKey,
		}, lg)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to start payment gateway: %w", err)
		}
		deps.Ledger.WithGateway(deps.Gateway)
	}

	deps.Waitlist = waitlist.NewService(deps.DB, waitlistPostgres.NewWaitlistRepository(gormDB), deps.Reservations, waitlist.Config{
		ClaimWindow: cfg.Reservation.ClaimWindow,
	}, lg)

	deps.Orchestrator = lifecycle.NewOrchestrator(
		deps.Reservations,
		deps.Ledger,
		deps.Waitlist,
		deps.Bus,
		metrics.NewLifecycleMetrics(deps.Registry),
		lifecycle.Config{
			AutoConvert:      cfg.Waitlist.AutoConvert,
			RetryMaxAttempts: cfg.Scheduler.RetryMaxAttempts,
			RetryBaseDelay:   cfg.Scheduler.RetryBaseDelay,
		},
		lg,
	)

	userRepo := userPostgres.NewUserRepository(gormDB)
	deps.Auth = auth.NewService(userRepo, auth.NewJWTTokenGenerator(cfg.Security), cfg.Security, lg)
	deps.Users = user.NewService(userRepo, deps.Auth, lg)

	locks := scheduler.NoopLocks()
	if deps.Redis != nil {
		locks = scheduler.RedisLocks(deps.Redis, cfg.Scheduler.LockTTL)
	}
	deps.Scheduler, err = scheduler.NewService(scheduler.ServiceParams{
		Logger:   lg,
		Registry: scheduler.SweepRegistry(deps.Orchestrator, cfg.Scheduler, lg),
		Locks:    locks,
		Metrics:  metrics.NewCronJobMetrics(deps.Registry),
	})
	if err != nil {
		deps.Close()
		return nil, err
	}

	return deps, nil
}

func (d *Dependencies) drainGateway() {
	if d.Gateway != nil {
		d.Gateway.Shutdown()
		d.Gateway = nil
	}
}

// Close drains in-flight events before closing the transports they use.
func (d *Dependencies) Close() {
	d.drainGateway()
	if d.Bus != nil {
		d.Bus.Wait()
	}
	if d.Sink != nil {
		if err := d.Sink.Close(); err != nil {
			d.Logger.Error("event sink close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}
