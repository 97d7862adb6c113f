package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/kasflow/payment-batch/internal/batch"
	"github.com/kasflow/payment-batch/internal/notification"
	"github.com/kasflow/payment-batch/internal/transport/middleware"
	"github.com/kasflow/payment-batch/internal/transport/swagger"
)

// RegisterAllRoutes wires the batch view-model API. Workflow actions live
// under POST routes; the administrative status override is a separate PATCH
// so it can never be confused with the guided flow.
func RegisterAllRoutes(router *chi.Mux, upstream UpstreamPinger, batchHandler *batch.Handler, notificationHandler *notification.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(upstream)

	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.ActorContext)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if notificationHandler != nil {
			r.Get("/notifications", notificationHandler.GetNotifications)
		}

		if batchHandler != nil {
			r.Route("/batches", func(br chi.Router) {
				br.Get("/", batchHandler.ListBatches)
				br.Get("/stats", batchHandler.GetStats)
				br.Get("/{id}", batchHandler.GetBatch)
				br.Get("/{id}/file", batchHandler.DownloadFile)

				br.Post("/{id}/mark-sent-to-bank", batchHandler.MarkSentToBank)
				br.Post("/{id}/mark-processing", batchHandler.MarkProcessing)
				br.Post("/{id}/mark-completed", batchHandler.MarkCompleted)
				br.Post("/{id}/confirm-completed", batchHandler.ConfirmCompleted)
				br.Post("/{id}/retry", batchHandler.Retry)

				br.Patch("/{id}/status", batchHandler.OverrideStatus)
			})
		}
	})
}
