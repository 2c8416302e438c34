package internal

import (
	"context"
	"time"

	"github.com/frahmantamala/table-reservation/internal/core/user"
)

type ctxKey string

const ContextUserKey ctxKey = "principal"

func UserFromContext(ctx context.Context) (*user.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(ContextUserKey).(*user.Principal)
	return p, ok && p != nil
}

func ContextWithUser(ctx context.Context, p *user.Principal) context.Context {
	return context.WithValue(ctx, ContextUserKey, p)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
