package notification

import (
	"net/http"
	"strconv"

	"github.com/kasflow/payment-batch/internal/transport"
	"github.com/kasflow/payment-batch/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	center *Center
}

func NewHandler(center *Center) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		center:      center,
	}
}

// GetNotifications serves the recent feed, newest first.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.center.Recent(limit),
		"limit":         limit,
	})
}
