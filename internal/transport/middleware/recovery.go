package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/table-reservation/internal"
)

// RecoveryMiddleware provides panic recovery with detailed logging
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					status, body := internal.NewInternalError("internal server error", fmt.Errorf("panic: %v", rec)).ToHTTPResponse()
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(status)
					_ = json.NewEncoder(w).Encode(body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
