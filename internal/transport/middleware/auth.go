package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/transport"
	"github.com/frahmantamala/table-reservation/pkg/logger"
)

// PrincipalResolver turns a bearer token into the calling principal.
type PrincipalResolver interface {
	Principal(ctx context.Context, token string) (*user.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// resolved principal on the request context.
func Authenticate(base *transport.BaseHandler, resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				base.HandleError(w, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeInvalidToken))
				return
			}

			p, err := resolver.Principal(r.Context(), token)
			if err != nil {
				base.HandleError(w, err)
				return
			}

			ctx := internal.ContextWithUser(r.Context(), p)
			ctx = logger.With(ctx, "user_id", p.ID, "role", p.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
