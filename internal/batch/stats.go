package batch

import (
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

// StatsScopePage marks aggregates computed over one loaded page, not the full
// remote dataset. Dashboard consumers must not present these as global totals
// unless the query requested the full unpaginated set.
const StatsScopePage = "page"

// Stats are per-status counts and sums over a page of batches.
type Stats struct {
	Scope             string `json:"scope"`
	TotalBatches      int    `json:"total_batches"`
	PendingBatches    int    `json:"pending_batches"`
	ProcessingBatches int    `json:"processing_batches"`
	CompletedBatches  int    `json:"completed_batches"`
	FailedBatches     int    `json:"failed_batches"`
	UnknownBatches    int    `json:"unknown_batches"`
	TotalPayments     int    `json:"total_payments"`
	TotalAmount       int64  `json:"total_amount"`
}

// Aggregate buckets the loaded page: pending covers CREATED and
// FILE_GENERATED, processing covers SENT_TO_BANK and PROCESSING.
func Aggregate(page *datamodel.Page) Stats {
	stats := Stats{Scope: StatsScopePage}
	if page == nil {
		return stats
	}

	for i := range page.Content {
		b := &page.Content[i]
		stats.TotalBatches++
		stats.TotalPayments += b.PaymentCount
		stats.TotalAmount += b.TotalAmount

		switch b.Status {
		case datamodel.StatusCreated, datamodel.StatusFileGenerated:
			stats.PendingBatches++
		case datamodel.StatusSentToBank, datamodel.StatusProcessing:
			stats.ProcessingBatches++
		case datamodel.StatusCompleted:
			stats.CompletedBatches++
		case datamodel.StatusFailed:
			stats.FailedBatches++
		default:
			stats.UnknownBatches++
		}
	}

	return stats
}
