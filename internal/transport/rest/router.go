package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/auth"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/payment"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/restaurant"
	"github.com/frahmantamala/table-reservation/internal/transport"
	"github.com/frahmantamala/table-reservation/internal/transport/middleware"
	"github.com/frahmantamala/table-reservation/internal/transport/swagger"
	userHandler "github.com/frahmantamala/table-reservation/internal/user"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

// Handlers groups the HTTP handlers. Nil handlers leave their routes unmounted.
type Handlers struct {
	Auth         *auth.Handler
	Restaurants  *restaurant.Handler
	Users        *userHandler.Handler
	Reservations *reservation.Handler
	Payments     *payment.Handler
	Webhook      *payment.WebhookHandler
	Waitlist     *waitlist.Handler
	Maintenance  *MaintenanceHandler
	Health       *HealthHandler
}

type RouterDeps struct {
	Base     *transport.BaseHandler
	Handlers Handlers
	Resolver middleware.PrincipalResolver
	// Limiter is nil when rate limiting is off.
	Limiter       middleware.WindowLimiter
	RateLimit     internal.RateLimitConfig
	HTTPMetrics   *metrics.HTTPMetrics
	Gatherer      prometheus.Gatherer
	MetricsPath   string
	AllowedOrigin string
	Logger        *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	h := deps.Handlers
	base := deps.Base

	router.Use(middleware.RequestID(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigin))
	router.Use(middleware.LoggingMiddleware(deps.Logger, deps.HTTPMetrics))
	router.Use(middleware.RecoveryMiddleware(deps.Logger))

	router.Get("/openapi.yml", serveOpenAPI)
	router.Handle("/swagger/*", swagger.Handler())
	if deps.Gatherer != nil && deps.MetricsPath != "" {
		router.Method(http.MethodGet, deps.MetricsPath, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var limiter func(http.Handler) http.Handler
	if deps.RateLimit.Enabled && deps.Limiter != nil {
		limiter = middleware.RateLimit(base, deps.Limiter, deps.RateLimit.Requests, deps.RateLimit.Window)
	} else {
		limiter = func(next http.Handler) http.Handler { return next }
	}
	can := func(caps ...user.Capability) func(http.Handler) http.Handler {
		return middleware.RequireCapability(base, caps...)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Webhook != nil {
			r.Post("/payment/callback", h.Webhook.HandlePaymentCallback)
		}

		r.Group(func(pub chi.Router) {
			pub.Use(limiter)
			if h.Auth != nil {
				pub.Post("/auth/login", h.Auth.Login)
			}
			if h.Restaurants != nil {
				pub.Get("/restaurants", h.Restaurants.GetRestaurants)
				pub.Get("/restaurants/{id}", h.Restaurants.GetRestaurant)
				pub.Get("/restaurants/{id}/tables", h.Restaurants.GetTables)
			}
			if h.Reservations != nil {
				pub.Get("/availability", h.Reservations.Search)
			}
		})

		if deps.Resolver == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(base, deps.Resolver))
			pr.Use(limiter)

			if h.Users != nil {
				pr.Get("/me", h.Users.GetCurrentUser)
			}

			if h.Reservations != nil {
				pr.Route("/reservations", func(rr chi.Router) {
					rr.With(can(user.CapReserve)).Post("/", h.Reservations.Create)
					rr.Get("/", h.Reservations.List)
					rr.Get("/{id}", h.Reservations.Get)
					rr.Post("/{id}/cancel", h.Reservations.Cancel)
				})
			}

			if h.Payments != nil {
				pr.Route("/payment", func(pmr chi.Router) {
					pmr.With(can(user.CapVerifyPayment)).Post("/verify", h.Payments.Verify)
					pmr.With(can(user.CapFailPayment)).Post("/{id}/fail", h.Payments.Fail)
					pmr.With(can(user.CapReserve)).Post("/retry", h.Payments.Retry)
					pmr.With(can(user.CapReserve)).Post("/{id}/checkout", h.Payments.Checkout)
					pmr.Get("/history", h.Payments.History)
					pmr.Get("/history/{id}", h.Payments.Detail)
				})
			}

			if h.Waitlist != nil {
				pr.Route("/waitlist", func(wr chi.Router) {
					wr.With(can(user.CapJoinWaitlist)).Post("/", h.Waitlist.Join)
					wr.Get("/", h.Waitlist.List)
					wr.Post("/{id}/cancel", h.Waitlist.Cancel)
					wr.With(can(user.CapJoinWaitlist)).Post("/{id}/claim", h.Waitlist.Claim)
				})
			}

			if h.Maintenance != nil {
				pr.With(can(user.CapRunMaintenance)).Post("/maintenance/sweep", h.Maintenance.Sweep)
			}
		})
	})
}
