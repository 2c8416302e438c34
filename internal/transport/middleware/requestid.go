package middleware

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/table-reservation/pkg/logger"
)

const TraceHeader = "X-Trace-ID"

// RequestID propagates the caller's trace id or mints one, and seeds the
// request logger from base tagged with it.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if traceID == "" || len(traceID) > 128 {
				traceID = uuid.NewString()
			}

			ctx := logger.With(logger.Into(r.Context(), base), "trace_id", traceID)
			w.Header().Set(TraceHeader, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
