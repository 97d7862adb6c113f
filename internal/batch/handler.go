package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	errors "github.com/kasflow/payment-batch/internal"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
	"github.com/kasflow/payment-batch/internal/transport"
	"github.com/kasflow/payment-batch/pkg/logger"
)

// ServiceAPI is what the handlers need from the façade.
type ServiceAPI interface {
	ListBatches(ctx context.Context, filter Filter) (*datamodel.Page, error)
	GetBatch(ctx context.Context, batchID string) (*datamodel.PaymentBatch, error)
	Stats(ctx context.Context, filter Filter) (Stats, error)
	InFlight(batchID string) bool

	MarkSentToBank(ctx context.Context, batchID string) error
	MarkProcessing(ctx context.Context, batchID string) error
	MarkCompleted(ctx context.Context, req *MarkCompletedRequest) error
	ConfirmCompleted(ctx context.Context, req *ConfirmCompletedRequest) error
	Retry(ctx context.Context, batchID string) error
	OverrideStatus(ctx context.Context, req *OverrideStatusRequest) error

	OpenFile(ctx context.Context, batchID, fileName string) (io.ReadCloser, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

// View is one list row: the record plus everything the UI derives from it.
// Eligibility is recomputed on every request from the latest cached record,
// never stored.
type View struct {
	datamodel.PaymentBatch
	Display         datamodel.Display `json:"display"`
	ProgressPercent float64           `json:"progress_percent"`
	EligibleActions []Action          `json:"eligible_actions"`
	InFlight        bool              `json:"in_flight"`
}

// DetailView adds the full timeline and uses the detail eligibility rule.
type DetailView struct {
	View
	Timeline []StepView `json:"timeline"`
}

// PageView is the page envelope with derived rows.
type PageView struct {
	Content       []View `json:"content"`
	TotalElements int64  `json:"total_elements"`
	TotalPages    int    `json:"total_pages"`
	PageNumber    int    `json:"page_number"`
	PageSize      int    `json:"page_size"`
}

func (h *Handler) buildView(b *datamodel.PaymentBatch, actions ActionSet) View {
	return View{
		PaymentBatch:    *b,
		Display:         datamodel.DisplayFor(b.Status),
		ProgressPercent: ProgressPercent(b.Status),
		EligibleActions: actions.List(),
		InFlight:        h.Service.InFlight(b.ID),
	}
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.Logger.Error("ListBatches: invalid filter", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	page, err := h.Service.ListBatches(r.Context(), filter)
	if err != nil {
		h.Logger.Error("ListBatches: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	resp := PageView{
		Content:       make([]View, 0, len(page.Content)),
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages,
		PageNumber:    page.PageNumber,
		PageSize:      page.PageSize,
	}
	for i := range page.Content {
		b := &page.Content[i]
		resp.Content = append(resp.Content, h.buildView(b, EligibleActions(b)))
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	b, err := h.Service.GetBatch(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("GetBatch: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	resp := DetailView{
		View:     h.buildView(b, DetailEligibleActions(b)),
		Timeline: Timeline(b.Status),
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	stats, err := h.Service.Stats(r.Context(), filter)
	if err != nil {
		h.Logger.Error("GetStats: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) MarkSentToBank(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "MarkSentToBank", string(datamodel.StatusSentToBank), h.Service.MarkSentToBank)
}

func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "MarkProcessing", string(datamodel.StatusProcessing), h.Service.MarkProcessing)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "Retry", "retrying", h.Service.Retry)
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, name, resultStatus string, fn func(context.Context, string) error) {
	batchID := chi.URLParam(r, "id")

	if err := fn(r.Context(), batchID); err != nil {
		h.Logger.Error(name+": service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info(name+": action accepted", "batch_id", batchID)
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": resultStatus})
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req MarkCompletedRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.Error("MarkCompleted: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	req.BatchID = batchID

	if err := h.Service.MarkCompleted(r.Context(), &req); err != nil {
		h.Logger.Error("MarkCompleted: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": string(datamodel.StatusCompleted)})
}

func (h *Handler) ConfirmCompleted(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req ConfirmCompletedRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.Error("ConfirmCompleted: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	req.BatchID = batchID

	if err := h.Service.ConfirmCompleted(r.Context(), &req); err != nil {
		h.Logger.Error("ConfirmCompleted: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("ConfirmCompleted: batch completed", "batch_id", batchID)
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": string(datamodel.StatusCompleted)})
}

func (h *Handler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req OverrideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("OverrideStatus: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.BatchID = batchID

	if err := h.Service.OverrideStatus(r.Context(), &req); err != nil {
		h.Logger.Error("OverrideStatus: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("OverrideStatus: status overridden", "batch_id", batchID, "status", req.Status)
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	fileName := r.URL.Query().Get("name")

	body, err := h.Service.OpenFile(r.Context(), batchID, fileName)
	if err != nil {
		h.Logger.Error("DownloadFile: service error", "error", err, "batch_id", batchID, "file_name", fileName)
		h.HandleServiceError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	if _, err := io.Copy(w, body); err != nil {
		// Headers already flushed, nothing left but to log.
		h.Logger.Error("DownloadFile: stream interrupted", "error", err, "batch_id", batchID)
	}
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()

	filter := Filter{
		BankNames: q["bank_name"],
		SortBy:    q.Get("sort_by"),
		SortDir:   q.Get("sort_dir"),
	}

	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, datamodel.Status(s))
	}

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Page = n
		}
	}
	if v := q.Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Size = n
		}
	}

	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filter{}, invalidDateError("date_from", v)
		}
		filter.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filter{}, invalidDateError("date_to", v)
		}
		filter.DateTo = &t
	}

	return filter, nil
}

func invalidDateError(field, value string) error {
	return errors.NewValidationFieldError(field,
		fmt.Sprintf("%s must be RFC3339, got %q", field, value), errors.ErrCodeInvalidFilter)
}
