package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

// RequireCapability lets the request through when the caller's role grants
// any of caps. It must run after Authenticate.
func RequireCapability(base *transport.BaseHandler, caps ...user.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := base.Principal(r)
			if err != nil {
				base.HandleError(w, err)
				return
			}

			for _, c := range caps {
				if p.Can(c) {
					next.ServeHTTP(w, r)
					return
				}
			}

			base.Logger.Warn("access denied: missing capability",
				slog.Int64("user_id", p.ID),
				slog.String("role", string(p.Role)),
				slog.Any("required", caps))
			base.HandleError(w, internal.ErrMissingCapability)
		})
	}
}
