package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/table-reservation/internal/auth"
	"github.com/frahmantamala/table-reservation/internal/payment"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/restaurant"
	restaurantPostgres "github.com/frahmantamala/table-reservation/internal/restaurant/postgres"
	"github.com/frahmantamala/table-reservation/internal/transport"
	"github.com/frahmantamala/table-reservation/internal/transport/middleware"
	"github.com/frahmantamala/table-reservation/internal/transport/rest"
	"github.com/frahmantamala/table-reservation/internal/user"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

var withScheduler bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP API. The payment gateway simulator runs in-process and calls back into this server.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "run the background sweeps in this process")
}

func startHTTPServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := rest.LoadOpenAPI(ctx); err != nil {
		return fmt.Errorf("api document: %w", err)
	}

	deps, err := initializeDependencies(ctx, appOptions{Gateway: true})
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, routerDeps(deps))

	cfg := deps.Config
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	if withScheduler && cfg.Scheduler.Enabled {
		go func() {
			if err := deps.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				deps.Logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting HTTP server", "address", addr, "env", cfg.Env)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Let queued charges call back before the listener goes away.
	deps.drainGateway()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("server shutdown error", "error", err)
	}
	deps.Logger.Info("server stopped")
	return nil
}

func routerDeps(deps *Dependencies) rest.RouterDeps {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	var limiter middleware.WindowLimiter
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	pingers := map[string]rest.Pinger{"database": deps.DB}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	return rest.RouterDeps{
		Base: base,
		Handlers: rest.Handlers{
			Auth:         auth.NewHandler(base, deps.Auth),
			Restaurants:  restaurant.NewHandler(base, restaurant.NewService(restaurantPostgres.NewRestaurantRepository(deps.DB.DB()), deps.Logger)),
			Users:        user.NewHandler(base, deps.Users),
			Reservations: reservation.NewHandler(base, deps.Orchestrator, deps.Reservations, deps.Availability, deps.Logger),
			Payments:     payment.NewHandler(base, deps.Orchestrator, deps.Ledger, deps.Logger),
			Webhook:      payment.NewWebhookHandler(base, deps.Orchestrator, deps.Ledger, cfg.PaymentGateway.CallbackKey, deps.Logger),
			Waitlist:     waitlist.NewHandler(base, deps.Orchestrator, deps.Waitlist, deps.Location, deps.Logger),
			Maintenance:  rest.NewMaintenanceHandler(base, deps.Scheduler),
			Health:       rest.NewHealthHandler(pingers),
		},
		Resolver:      deps.Auth,
		Limiter:       limiter,
		RateLimit:     cfg.RateLimit,
		HTTPMetrics:   metrics.NewHTTPMetrics(deps.Registry),
		Gatherer:      deps.Registry,
		MetricsPath:   metricsPath(cfg.Observability.Metrics.Enabled, cfg.Observability.Metrics.Path),
		AllowedOrigin: cfg.Server.AllowedOrigins,
		Logger:        deps.Logger,
	}
}

func metricsPath(enabled bool, path string) string {
	if !enabled {
		return ""
	}
	return path
}
