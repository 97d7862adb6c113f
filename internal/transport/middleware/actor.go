package middleware

import (
	"net/http"

	"github.com/kasflow/payment-batch/internal"
	"github.com/kasflow/payment-batch/pkg/logger"
)

// ActorContext lifts the caller identity forwarded by the gateway into an
// explicit Actor on the request context. Authentication happens upstream;
// these headers only say who to attribute mutations to in logs.
func ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("X-User-Name")
		if name == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor := internal.Actor{Name: name, Role: r.Header.Get("X-User-Role")}
		ctx := internal.ContextWithActor(r.Context(), actor)
		ctx = logger.With(ctx, "actor", actor.Name)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
