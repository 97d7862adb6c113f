package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kasflow/payment-batch/internal/core/events"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is one user-visible banner entry.
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	BatchID   string    `json:"batch_id,omitempty"`
	Action    string    `json:"action,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Center collects mutation outcomes published on the event bus into a bounded
// in-memory feed the dashboard can poll. It is the only consumer-facing
// surface for errors: nothing the façade does ever reaches the rendering
// layer as a panic or an unhandled error.
type Center struct {
	logger  *slog.Logger
	maxSize int

	mu      sync.RWMutex
	entries []Notification
}

func NewCenter(bus *events.EventBus, logger *slog.Logger, maxSize int) *Center {
	if maxSize <= 0 {
		maxSize = 100
	}

	c := &Center{
		logger:  logger,
		maxSize: maxSize,
	}

	bus.Subscribe(events.EventBatchActionSucceeded, c.onBatchEvent(SeveritySuccess))
	bus.Subscribe(events.EventBatchActionFailed, c.onBatchEvent(SeverityError))
	bus.Subscribe(events.EventBatchFileDownloaded, c.onBatchEvent(SeveritySuccess))

	return c
}

func (c *Center) onBatchEvent(severity Severity) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		data, _ := event.Payload().(map[string]interface{})

		n := Notification{
			ID:        uuid.NewString(),
			Severity:  severity,
			CreatedAt: event.OccurredAt(),
		}
		if v, ok := data["batch_id"].(string); ok {
			n.BatchID = v
		}
		if v, ok := data["action"].(string); ok {
			n.Action = v
		}
		if v, ok := data["message"].(string); ok {
			n.Message = v
		}
		if n.Message == "" && n.Action != "" {
			n.Message = n.Action + " settled"
		}

		c.push(n)

		c.logger.Info("notification recorded",
			"severity", n.Severity,
			"batch_id", n.BatchID,
			"action", n.Action,
			"message", n.Message)
		return nil
	}
}

func (c *Center) push(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, n)
	if len(c.entries) > c.maxSize {
		c.entries = c.entries[len(c.entries)-c.maxSize:]
	}
}

// Recent returns up to limit notifications, newest first.
func (c *Center) Recent(limit int) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || limit > len(c.entries) {
		limit = len(c.entries)
	}

	out := make([]Notification, 0, limit)
	for i := len(c.entries) - 1; i >= len(c.entries)-limit; i-- {
		out = append(out, c.entries[i])
	}
	return out
}
