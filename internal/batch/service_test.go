package batch_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/kasflow/payment-batch/internal"
	"github.com/kasflow/payment-batch/internal/batch"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
	"github.com/kasflow/payment-batch/internal/core/events"
)

// fakeAPI is an in-memory stand-in for the upstream batch service. Mutations
// apply the corresponding status change so tests can observe whether reads
// reflect server state or a stale cache.
type fakeAPI struct {
	mu      sync.Mutex
	batches map[string]*datamodel.PaymentBatch

	listCalls  int
	getCalls   int
	lastFilter batch.Filter

	mutateErr error
	blockID   string
	block     chan struct{}

	listGate    chan struct{}
	listStarted chan struct{}

	fileContent string
	fileErr     error
	fileReader  io.ReadCloser
}

func newFakeAPI(seed ...*datamodel.PaymentBatch) *fakeAPI {
	f := &fakeAPI{batches: make(map[string]*datamodel.PaymentBatch)}
	for _, b := range seed {
		copied := *b
		f.batches[b.ID] = &copied
	}
	return f
}

func (f *fakeAPI) ListBatches(ctx context.Context, filter batch.Filter) (*datamodel.Page, error) {
	f.mu.Lock()
	f.listCalls++
	f.lastFilter = filter

	content := make([]datamodel.PaymentBatch, 0, len(f.batches))
	for _, b := range f.batches {
		content = append(content, *b)
	}
	page := &datamodel.Page{
		Content:       content,
		TotalElements: int64(len(content)),
		TotalPages:    1,
		PageNumber:    filter.Page,
		PageSize:      filter.Size,
	}
	gate := f.listGate
	started := f.listStarted
	f.mu.Unlock()

	// The page is snapshotted before the gate, so a gated call returns the
	// state the server had when the request arrived, not when it was released.
	if gate != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		<-gate
	}

	return page, nil
}

func (f *fakeAPI) GetBatch(ctx context.Context, batchID string) (*datamodel.PaymentBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++

	b, ok := f.batches[batchID]
	if !ok {
		return nil, errors.ErrBatchNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeAPI) mutate(batchID string, status datamodel.Status) error {
	if f.block != nil && batchID == f.blockID {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return f.mutateErr
	}
	b, ok := f.batches[batchID]
	if !ok {
		return errors.ErrBatchNotFound
	}
	b.Status = status
	return nil
}

func (f *fakeAPI) MarkSentToBank(ctx context.Context, batchID string) error {
	return f.mutate(batchID, datamodel.StatusSentToBank)
}

func (f *fakeAPI) MarkProcessing(ctx context.Context, batchID string) error {
	return f.mutate(batchID, datamodel.StatusProcessing)
}

func (f *fakeAPI) MarkCompleted(ctx context.Context, req *batch.MarkCompletedRequest) error {
	return f.mutate(req.BatchID, datamodel.StatusCompleted)
}

func (f *fakeAPI) ConfirmCompleted(ctx context.Context, req *batch.ConfirmCompletedRequest) error {
	return f.mutate(req.BatchID, datamodel.StatusCompleted)
}

func (f *fakeAPI) Retry(ctx context.Context, batchID string) error {
	return f.mutate(batchID, datamodel.StatusProcessing)
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, req *batch.OverrideStatusRequest) error {
	return f.mutate(req.BatchID, req.Status)
}

func (f *fakeAPI) DownloadFile(ctx context.Context, batchID, fileName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	if f.fileReader != nil {
		return f.fileReader, nil
	}
	return io.NopCloser(strings.NewReader(f.fileContent)), nil
}

func (f *fakeAPI) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeAPI) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeAPI) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeAPI) status(batchID string) datamodel.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[batchID].Status
}

// eventRecorder captures published events so async delivery can be asserted
// with Eventually.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) subscribe(bus *events.EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, func(ctx context.Context, e events.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			return nil
		})
	}
}

func (r *eventRecorder) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []events.Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

var _ = Describe("Service", func() {
	var (
		api      *fakeAPI
		bus      *events.EventBus
		recorder *eventRecorder
		service  *batch.Service
		ctx      context.Context
	)

	testLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	seedBatch := func(id string, status datamodel.Status) *datamodel.PaymentBatch {
		return &datamodel.PaymentBatch{
			ID:           id,
			BatchNumber:  "PB-" + id,
			BankName:     "BCA",
			Status:       status,
			PaymentCount: 3,
			TotalAmount:  45_000_000,
			FileName:     "transfer-" + id + ".csv",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		api = newFakeAPI(seedBatch("b1", datamodel.StatusCreated))
		bus = events.NewEventBus(testLogger)
		recorder = &eventRecorder{}
		recorder.subscribe(bus, events.EventBatchActionSucceeded, events.EventBatchActionFailed)
		service = batch.NewService(api, bus, testLogger, time.Minute)
	})

	AfterEach(func() {
		service.Close()
	})

	Describe("ListBatches", func() {
		It("serves a repeated query from cache without a second upstream call", func() {
			_, err := service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())

			Expect(api.listCallCount()).To(Equal(1))
		})

		It("fetches again when the page changes", func() {
			_, err := service.ListBatches(ctx, batch.Filter{Page: 0})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ListBatches(ctx, batch.Filter{Page: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(api.listCallCount()).To(Equal(2))
		})

		It("resets to page 0 when the criteria change", func() {
			_, err := service.ListBatches(ctx, batch.Filter{Page: 4})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ListBatches(ctx, batch.Filter{Page: 4, BankNames: []string{"Mandiri"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(api.lastFilter.Page).To(Equal(0))
		})

		It("rejects an invalid sort field without calling upstream", func() {
			_, err := service.ListBatches(ctx, batch.Filter{SortBy: "danger"})
			Expect(err).To(HaveOccurred())
			Expect(api.listCallCount()).To(Equal(0))
		})
	})

	Describe("GetBatch", func() {
		It("caches the detail after the first fetch", func() {
			_, err := service.GetBatch(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())
			_, err = service.GetBatch(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())

			Expect(api.getCallCount()).To(Equal(1))
		})

		It("requires a batch id", func() {
			_, err := service.GetBatch(ctx, "")
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeInvalidBatchID))
		})

		It("propagates not-found from upstream", func() {
			_, err := service.GetBatch(ctx, "missing")
			Expect(err).To(MatchError(errors.ErrBatchNotFound))
		})
	})

	Describe("mutations", func() {
		It("invalidates caches so the next read reflects the new server state", func() {
			api.batches["b1"].Status = datamodel.StatusProcessing

			page, err := service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Content[0].Status).To(Equal(datamodel.StatusProcessing))

			err = service.ConfirmCompleted(ctx, &batch.ConfirmCompletedRequest{BatchID: "b1"})
			Expect(err).NotTo(HaveOccurred())

			page, err = service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Content[0].Status).To(Equal(datamodel.StatusCompleted))
		})

		It("never mutates cached state before the server confirms", func() {
			api.batches["b1"].Status = datamodel.StatusProcessing
			api.mutateErr = errors.NewExternalError("boom", errors.ErrCodeUpstreamUnavailable, nil)

			_, err := service.GetBatch(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())

			err = service.ConfirmCompleted(ctx, &batch.ConfirmCompletedRequest{BatchID: "b1"})
			Expect(err).To(HaveOccurred())

			b, err := service.GetBatch(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Status).To(Equal(datamodel.StatusProcessing))
		})

		It("allows only one in-flight mutation per batch while other batches proceed", func() {
			api.batches["b2"] = seedBatch("b2", datamodel.StatusSentToBank)
			api.blockID = "b1"
			api.block = make(chan struct{})

			firstDone := make(chan error, 1)
			go func() {
				firstDone <- service.MarkProcessing(ctx, "b1")
			}()

			Eventually(func() bool {
				return service.InFlight("b1")
			}).Should(BeTrue())

			err := service.MarkProcessing(ctx, "b1")
			Expect(err).To(MatchError(errors.ErrMutationInFlight))

			err = service.MarkProcessing(ctx, "b2")
			Expect(err).NotTo(HaveOccurred())

			close(api.block)
			Expect(<-firstDone).NotTo(HaveOccurred())
			Expect(service.InFlight("b1")).To(BeFalse())
		})

		It("drops a poll result that fetched before the mutation settled", func() {
			api.batches["b1"].Status = datamodel.StatusProcessing
			api.listStarted = make(chan struct{}, 4)
			gate := make(chan struct{})
			api.listGate = gate

			refreshDone := make(chan error, 1)
			go func() {
				_, err := service.RefreshList(ctx, batch.Filter{})
				refreshDone <- err
			}()

			// The refresh has snapshotted the pre-mutation page and is now
			// stalled in flight.
			Eventually(api.listStarted).Should(Receive())

			Expect(service.ConfirmCompleted(ctx, &batch.ConfirmCompletedRequest{BatchID: "b1"})).To(Succeed())

			close(gate)
			Expect(<-refreshDone).NotTo(HaveOccurred())

			page, err := service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Content[0].Status).To(Equal(datamodel.StatusCompleted))
		})

		It("attributes the mutation to the acting user in audit logs", func() {
			var buf bytes.Buffer
			audited := batch.NewService(api, events.NewEventBus(testLogger),
				slog.New(slog.NewTextHandler(&buf, nil)), time.Minute)
			defer audited.Close()

			actorCtx := errors.ContextWithActor(ctx, errors.Actor{Name: "finance.ops", Role: "finance_admin"})
			Expect(audited.MarkSentToBank(actorCtx, "b1")).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("finance.ops"))
		})

		It("refetches true state after the server rejects a transition", func() {
			api.batches["b1"].Status = datamodel.StatusCompleted

			_, err := service.GetBatch(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())
			getsBefore := api.getCallCount()

			api.mutateErr = errors.NewTransitionRejectedError("batch is already completed")

			err = service.MarkProcessing(ctx, "b1")
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeTransitionRejected))

			Expect(api.getCallCount()).To(Equal(getsBefore + 1))
		})

		It("publishes a success notification with the batch id and action", func() {
			err := service.MarkSentToBank(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() []events.Event {
				return recorder.ofType(events.EventBatchActionSucceeded)
			}).Should(HaveLen(1))

			payload := recorder.ofType(events.EventBatchActionSucceeded)[0].Payload().(map[string]interface{})
			Expect(payload["batch_id"]).To(Equal("b1"))
			Expect(payload["action"]).To(Equal(string(batch.ActionMarkSentToBank)))
		})

		It("publishes a failure notification when upstream errors", func() {
			api.mutateErr = errors.NewExternalError("upstream down", errors.ErrCodeUpstreamUnavailable, nil)

			err := service.MarkSentToBank(ctx, "b1")
			Expect(err).To(HaveOccurred())

			Eventually(func() []events.Event {
				return recorder.ofType(events.EventBatchActionFailed)
			}).Should(HaveLen(1))
		})

		It("rejects a status override without the explicit flag before reaching upstream", func() {
			err := service.OverrideStatus(ctx, &batch.OverrideStatusRequest{
				BatchID: "b1",
				Status:  datamodel.StatusCompleted,
			})
			Expect(err).To(HaveOccurred())
			Expect(api.status("b1")).To(Equal(datamodel.StatusCreated))
		})

		It("applies a flagged status override", func() {
			err := service.OverrideStatus(ctx, &batch.OverrideStatusRequest{
				BatchID:  "b1",
				Status:   datamodel.StatusFailed,
				Override: true,
				Reason:   "bank reported a rejected file",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(api.status("b1")).To(Equal(datamodel.StatusFailed))
		})
	})

	Describe("lifecycle walkthrough", func() {
		It("moves a batch through the guided workflow with reads reflecting each step", func() {
			expectListedStatus := func(want datamodel.Status) {
				page, err := service.ListBatches(ctx, batch.Filter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(page.Content).To(HaveLen(1))
				Expect(page.Content[0].Status).To(Equal(want))
			}

			api.batches["b1"].Status = datamodel.StatusFileGenerated
			expectListedStatus(datamodel.StatusFileGenerated)

			Expect(service.MarkSentToBank(ctx, "b1")).To(Succeed())
			expectListedStatus(datamodel.StatusSentToBank)

			Expect(service.MarkProcessing(ctx, "b1")).To(Succeed())
			expectListedStatus(datamodel.StatusProcessing)

			Expect(service.ConfirmCompleted(ctx, &batch.ConfirmCompletedRequest{
				BatchID:               "b1",
				ConfirmationReference: "TRX-2026-113",
			})).To(Succeed())
			expectListedStatus(datamodel.StatusCompleted)
		})
	})

	Describe("Stats", func() {
		It("aggregates the page behind the same filter", func() {
			api.batches["b2"] = seedBatch("b2", datamodel.StatusCompleted)

			stats, err := service.Stats(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalBatches).To(Equal(2))
			Expect(stats.CompletedBatches).To(Equal(1))
		})
	})

	Describe("RefreshList", func() {
		It("bypasses the cache and repopulates it", func() {
			_, err := service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RefreshList(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(api.listCallCount()).To(Equal(2))

			_, err = service.ListBatches(ctx, batch.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(api.listCallCount()).To(Equal(2))
		})
	})
})
