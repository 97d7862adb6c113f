package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller refreshes the active list view on a fixed interval while it runs.
// A mutation's cache invalidation always wins over a racing poll: cache
// writes are generation-checked, so a poll that fetched before the
// invalidation cannot resurrect pre-mutation state.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	filter Filter
}

func NewPoller(service *Service, filter Filter, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		service:  service,
		interval: interval,
		logger:   logger,
		filter:   filter,
	}
}

// SetFilter swaps the view being kept fresh, e.g. when the user changes
// dashboard filters.
func (p *Poller) SetFilter(filter Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = filter
}

// Run polls until the context is cancelled. Navigating away cancels the
// interval; an in-flight request is left to finish and its result discarded.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("batch poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("batch poller stopped")
			return
		case <-ticker.C:
			p.mu.RLock()
			filter := p.filter
			p.mu.RUnlock()

			if _, err := p.service.RefreshList(ctx, filter); err != nil {
				// Polling is best effort; the next tick tries again.
				p.logger.Warn("poll refresh failed", "error", err)
			}
		}
	}
}
