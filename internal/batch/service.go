package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	errors "github.com/kasflow/payment-batch/internal"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
	"github.com/kasflow/payment-batch/internal/core/events"
)

// Service is the façade in front of the remote batch API: every read goes
// through its caches, every write through its per-batch in-flight guard, and
// every outcome out through the event bus. Nothing else may touch the caches.
type Service struct {
	api    API
	bus    *events.EventBus
	logger *slog.Logger

	lists   *ttlCache[*datamodel.Page]
	details *ttlCache[*datamodel.PaymentBatch]

	mu         sync.Mutex
	inflight   map[string]bool
	lastFilter *Filter
}

func NewService(api API, bus *events.EventBus, logger *slog.Logger, cacheTTL time.Duration) *Service {
	return &Service{
		api:      api,
		bus:      bus,
		logger:   logger,
		lists:    newTTLCache[*datamodel.Page](cacheTTL),
		details:  newTTLCache[*datamodel.PaymentBatch](cacheTTL),
		inflight: make(map[string]bool),
	}
}

// Close stops the cache janitors. In-flight requests are left to settle on
// their own; their results simply go unused.
func (s *Service) Close() {
	s.lists.close()
	s.details.close()
}

// ListBatches serves a page from cache when fresh, otherwise fetches it. The
// filter is normalized against the previously used one so any criteria change
// lands on page 0.
func (s *Service) ListBatches(ctx context.Context, filter Filter) (*datamodel.Page, error) {
	s.mu.Lock()
	prev := s.lastFilter
	filter = filter.Normalize(prev)
	normalized := filter
	s.lastFilter = &normalized
	s.mu.Unlock()

	if appErr := filter.Validate(); appErr != nil {
		return nil, appErr
	}

	key := filter.CacheKey()
	if page, ok := s.lists.get(key); ok {
		s.logger.Debug("batch list served from cache", "key", key)
		return page, nil
	}

	gen := s.lists.generation()
	page, err := s.api.ListBatches(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list batches", "error", err, "key", key)
		return nil, err
	}

	s.lists.setIfCurrent(key, page, gen)
	return page, nil
}

// RefreshList bypasses the cache for one filter and repopulates it. Used by
// the poller and by manual refresh.
func (s *Service) RefreshList(ctx context.Context, filter Filter) (*datamodel.Page, error) {
	filter = filter.Normalize(nil)
	if appErr := filter.Validate(); appErr != nil {
		return nil, appErr
	}

	s.lists.invalidate(filter.CacheKey())
	gen := s.lists.generation()

	page, err := s.api.ListBatches(ctx, filter)
	if err != nil {
		return nil, err
	}

	// A mutation that settled while this fetch was in flight bumped the
	// generation; the pre-mutation page is dropped instead of cached.
	s.lists.setIfCurrent(filter.CacheKey(), page, gen)
	return page, nil
}

// GetBatch serves one batch, cached separately from lists.
func (s *Service) GetBatch(ctx context.Context, batchID string) (*datamodel.PaymentBatch, error) {
	if batchID == "" {
		return nil, errors.NewValidationError("batch id is required", errors.ErrCodeInvalidBatchID)
	}

	if b, ok := s.details.get(batchID); ok {
		return b, nil
	}

	gen := s.details.generation()
	b, err := s.api.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s.details.setIfCurrent(batchID, b, gen)
	return b, nil
}

// Stats aggregates the currently loaded page for the filter. Page-local by
// contract; see Aggregate.
func (s *Service) Stats(ctx context.Context, filter Filter) (Stats, error) {
	page, err := s.ListBatches(ctx, filter)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(page), nil
}

// InFlight reports whether a mutation for the batch is pending, so callers
// can render the corresponding action disabled.
func (s *Service) InFlight(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[batchID]
}

func (s *Service) MarkSentToBank(ctx context.Context, batchID string) error {
	return s.runMutation(ctx, batchID, ActionMarkSentToBank, "batch marked as sent to bank", func(ctx context.Context) error {
		return s.api.MarkSentToBank(ctx, batchID)
	})
}

func (s *Service) MarkProcessing(ctx context.Context, batchID string) error {
	return s.runMutation(ctx, batchID, ActionMarkProcessing, "batch marked as processing", func(ctx context.Context) error {
		return s.api.MarkProcessing(ctx, batchID)
	})
}

// MarkCompleted is the status-only completion. User-facing flows should
// prefer ConfirmCompleted, which also settles dependent approvals.
func (s *Service) MarkCompleted(ctx context.Context, req *MarkCompletedRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.runMutation(ctx, req.BatchID, ActionMarkCompleted, "batch marked as completed", func(ctx context.Context) error {
		return s.api.MarkCompleted(ctx, req)
	})
}

func (s *Service) ConfirmCompleted(ctx context.Context, req *ConfirmCompletedRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.runMutation(ctx, req.BatchID, ActionConfirmCompleted, "batch completed and approvals updated", func(ctx context.Context) error {
		return s.api.ConfirmCompleted(ctx, req)
	})
}

func (s *Service) Retry(ctx context.Context, batchID string) error {
	return s.runMutation(ctx, batchID, ActionRetry, "batch queued for reprocessing", func(ctx context.Context) error {
		return s.api.Retry(ctx, batchID)
	})
}

// OverrideStatus is the administrative escape hatch, separate from the guided
// workflow actions and validated to require an explicit override flag.
func (s *Service) OverrideStatus(ctx context.Context, req *OverrideStatusRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.runMutation(ctx, req.BatchID, Action("overrideStatus"), "batch status overridden", func(ctx context.Context) error {
		return s.api.UpdateStatus(ctx, req)
	})
}

// runMutation wraps every state-changing request with the shared contract:
// one mutation per batch id at a time, no optimistic local writes, cache
// invalidation plus a success notification on success, an error notification
// and a forced refetch of true state on a rejected transition.
func (s *Service) runMutation(ctx context.Context, batchID string, action Action, successMessage string, fn func(context.Context) error) error {
	if batchID == "" {
		return errors.NewValidationError("batch id is required", errors.ErrCodeInvalidBatchID)
	}

	if !s.acquire(batchID) {
		s.logger.Warn("mutation rejected, another action in flight", "batch_id", batchID, "action", action)
		return errors.ErrMutationInFlight
	}
	defer s.release(batchID)

	err := fn(ctx)
	if err != nil {
		s.notifyFailure(ctx, batchID, action, err)

		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeTransitionRejected {
			// The client's view was stale. Drop cached state and refetch so
			// eligibility is recomputed from what the server actually holds.
			s.invalidateBatch(batchID)
			if _, refreshErr := s.GetBatch(ctx, batchID); refreshErr != nil {
				s.logger.Warn("failed to refetch batch after rejected transition",
					"error", refreshErr, "batch_id", batchID)
			}
		}
		return err
	}

	s.invalidateBatch(batchID)

	s.logger.Info("batch action succeeded",
		"batch_id", batchID, "action", action, "actor", actorName(ctx))
	s.bus.Publish(ctx, events.NewBatchActionSucceeded(batchID, string(action), successMessage))
	return nil
}

// actorName resolves the identity stamped on the context by the transport
// layer, for mutation audit logs. Headless callers run as system.
func actorName(ctx context.Context) string {
	if actor, ok := errors.ActorFromContext(ctx); ok {
		return actor.Name
	}
	return "system"
}

func (s *Service) acquire(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[batchID] {
		return false
	}
	s.inflight[batchID] = true
	return true
}

func (s *Service) release(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, batchID)
}

// invalidateBatch drops the batch's detail entry and every cached list page.
// List pages are keyed by filter, so any page might contain the batch.
func (s *Service) invalidateBatch(batchID string) {
	s.details.invalidate(batchID)
	s.lists.invalidateAll()
}

func (s *Service) notifyFailure(ctx context.Context, batchID string, action Action, err error) {
	message := "the request could not be completed, please try again"
	if appErr, ok := errors.IsAppError(err); ok {
		message = appErr.GetDetailedMessage()
	}

	s.logger.Error("batch action failed",
		"error", err, "batch_id", batchID, "action", action, "actor", actorName(ctx))
	s.bus.Publish(ctx, events.NewBatchActionFailed(batchID, string(action), message))
}
