package internal

import (
	"context"
	"time"
)

type ctxKey string

const contextActorKey ctxKey = "actor"

// Actor identifies who triggered an operation. It is passed explicitly so the
// façade never reaches into ambient auth state; the surrounding app decides
// how it is populated.
type Actor struct {
	Name string
	Role string
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	if actor, ok := ctx.Value(contextActorKey).(Actor); ok {
		return actor, true
	}
	return Actor{}, false
}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if
// duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
