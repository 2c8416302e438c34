package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

// WindowLimiter is satisfied by the redis client.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per caller in fixed windows. Authenticated callers
// are keyed by user id, anonymous ones by remote address. Limiter failures
// let the request through.
func RateLimit(base *transport.BaseHandler, limiter WindowLimiter, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := rateScope(r)
			ok, count, err := limiter.FixedWindowAllow(r.Context(), scope, limit, window)
			if err != nil {
				base.Logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				base.HandleError(w, internal.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateScope(r *http.Request) string {
	if p, ok := internal.UserFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(p.ID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
