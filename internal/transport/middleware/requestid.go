package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kasflow/payment-batch/pkg/logger"
)

// TraceID propagates or mints a trace id and stores a logger carrying it in
// the request context.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
