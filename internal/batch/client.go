package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	errors "github.com/kasflow/payment-batch/internal"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

// API is the remote batch service boundary. The server owns every record and
// every status transition; this client only issues requests and reflects
// responses.
type API interface {
	ListBatches(ctx context.Context, filter Filter) (*datamodel.Page, error)
	GetBatch(ctx context.Context, batchID string) (*datamodel.PaymentBatch, error)

	MarkSentToBank(ctx context.Context, batchID string) error
	MarkProcessing(ctx context.Context, batchID string) error
	MarkCompleted(ctx context.Context, req *MarkCompletedRequest) error
	ConfirmCompleted(ctx context.Context, req *ConfirmCompletedRequest) error
	Retry(ctx context.Context, batchID string) error
	UpdateStatus(ctx context.Context, req *OverrideStatusRequest) error

	DownloadFile(ctx context.Context, batchID, fileName string) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// Client talks HTTP to the upstream batch API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

func (c *Client) ListBatches(ctx context.Context, filter Filter) (*datamodel.Page, error) {
	params := url.Values{}
	for _, s := range filter.Statuses {
		params.Add("status", string(s))
	}
	for _, b := range filter.BankNames {
		params.Add("bank_name", b)
	}
	if filter.DateFrom != nil {
		params.Set("date_from", filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if filter.DateTo != nil {
		params.Set("date_to", filter.DateTo.UTC().Format(time.RFC3339))
	}
	params.Set("page", strconv.Itoa(filter.Page))
	params.Set("size", strconv.Itoa(filter.Size))
	params.Set("sort_by", filter.SortBy)
	params.Set("sort_dir", filter.SortDir)

	var page datamodel.Page
	if err := c.doJSON(ctx, http.MethodGet, "/batches?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetBatch(ctx context.Context, batchID string) (*datamodel.PaymentBatch, error) {
	var b datamodel.PaymentBatch
	if err := c.doJSON(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) MarkSentToBank(ctx context.Context, batchID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/batches/"+url.PathEscape(batchID)+"/mark-sent-to-bank", nil, nil)
}

func (c *Client) MarkProcessing(ctx context.Context, batchID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/batches/"+url.PathEscape(batchID)+"/mark-processing", nil, nil)
}

func (c *Client) MarkCompleted(ctx context.Context, req *MarkCompletedRequest) error {
	body := map[string]string{}
	if req.Notes != "" {
		body["notes"] = req.Notes
	}
	return c.doJSON(ctx, http.MethodPatch, "/batches/"+url.PathEscape(req.BatchID)+"/mark-completed", body, nil)
}

func (c *Client) ConfirmCompleted(ctx context.Context, req *ConfirmCompletedRequest) error {
	if req.PaymentIDs == nil {
		// The wire contract wants the field present even when the server is
		// left to resolve payments by batch.
		req.PaymentIDs = []string{}
	}
	return c.doJSON(ctx, http.MethodPost, "/batches/confirm-completed", req, nil)
}

func (c *Client) Retry(ctx context.Context, batchID string) error {
	return c.doJSON(ctx, http.MethodPost, "/batches/"+url.PathEscape(batchID)+"/retry", nil, nil)
}

func (c *Client) UpdateStatus(ctx context.Context, req *OverrideStatusRequest) error {
	body := map[string]string{"status": string(req.Status)}
	if req.Reason != "" {
		body["reason"] = req.Reason
	}
	return c.doJSON(ctx, http.MethodPatch, "/batches/"+url.PathEscape(req.BatchID)+"/status", body, nil)
}

func (c *Client) DownloadFile(ctx context.Context, batchID, fileName string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/batches/%s/file?name=%s",
		c.baseURL, url.PathEscape(batchID), url.QueryEscape(fileName))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build download request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("file download request failed", "error", err, "batch_id", batchID, "file_name", fileName)
		return nil, errors.NewExternalError("could not reach the batch service", errors.ErrCodeUpstreamUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.logger.Error("file download returned error", "status", resp.StatusCode, "batch_id", batchID)
		return nil, errors.NewExternalError(
			fmt.Sprintf("download failed with status %d", resp.StatusCode),
			errors.ErrCodeDownloadFailed, nil)
	}

	return resp.Body, nil
}

// Ping issues the cheapest possible list query to verify the upstream is
// reachable.
func (c *Client) Ping(ctx context.Context) error {
	var page datamodel.Page
	return c.doJSON(ctx, http.MethodGet, "/batches?page=0&size=1", nil, &page)
}

// upstreamError is the error envelope the batch API returns. Both the nested
// and flat shapes appear in the wild, so decode tries both.
type upstreamError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func (e *upstreamError) text() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to marshal request body", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.NewInternalError("failed to build request", err)
	}
	c.setHeaders(httpReq)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("upstream request failed", "error", err, "method", method, "path", path)
		return errors.NewExternalError("could not reach the batch service", errors.ErrCodeUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError("failed to read upstream response", errors.ErrCodeUpstreamUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return c.mapErrorStatus(resp.StatusCode, respBody, method, path)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.logger.Error("failed to decode upstream response", "error", err, "path", path)
			return errors.NewExternalError("invalid response from the batch service", errors.ErrCodeUpstreamUnavailable, err)
		}
	}

	return nil
}

func (c *Client) mapErrorStatus(status int, body []byte, method, path string) error {
	var envelope upstreamError
	_ = json.Unmarshal(body, &envelope)
	message := envelope.text()

	c.logger.Warn("upstream returned error",
		"status", status,
		"method", method,
		"path", path,
		"message", message)

	switch status {
	case http.StatusNotFound:
		return errors.ErrBatchNotFound
	case http.StatusConflict, http.StatusBadRequest, http.StatusUnprocessableEntity:
		// A mutation refused because the client's view of the status is
		// stale. The façade reacts by refetching true state.
		if method != http.MethodGet {
			return errors.NewTransitionRejectedError(message)
		}
	}

	if message == "" {
		message = fmt.Sprintf("batch service returned status %d", status)
	}
	return errors.NewExternalError(message, errors.ErrCodeUpstreamUnavailable, nil)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
