package batch

import (
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

// Action is one of the operations a user can request for a batch.
type Action string

const (
	ActionDownload       Action = "download"
	ActionMarkSentToBank Action = "markSentToBank"
	ActionMarkProcessing Action = "markProcessing"

	// ActionConfirmCompleted is the preferred completion operation: it also
	// tells the server to flip dependent approval and quotation records to
	// paid. ActionMarkCompleted updates only the batch status and is kept as
	// the lower-level administrative variant. Business rule, not an
	// implementation detail.
	ActionConfirmCompleted Action = "confirmCompleted"
	ActionMarkCompleted    Action = "markCompleted"

	ActionRetry Action = "retry"
)

// ActionSet is the set of actions eligible for a batch.
type ActionSet map[Action]bool

func (s ActionSet) Contains(a Action) bool {
	return s[a]
}

// List returns the eligible actions in a stable order.
func (s ActionSet) List() []Action {
	order := []Action{
		ActionDownload,
		ActionMarkSentToBank,
		ActionMarkProcessing,
		ActionConfirmCompleted,
		ActionMarkCompleted,
		ActionRetry,
	}
	out := make([]Action, 0, len(s))
	for _, a := range order {
		if s[a] {
			out = append(out, a)
		}
	}
	return out
}

// downloadStatuses in the list view include COMPLETED; the detail view does
// not. The asymmetry matches observed product behavior and is deliberately
// preserved until a product owner unifies it. Both rules are pinned by tests.
var (
	listDownloadStatuses = map[datamodel.Status]bool{
		datamodel.StatusFileGenerated: true,
		datamodel.StatusSentToBank:    true,
		datamodel.StatusCompleted:     true,
	}
	detailDownloadStatuses = map[datamodel.Status]bool{
		datamodel.StatusFileGenerated: true,
		datamodel.StatusSentToBank:    true,
	}
)

// EligibleActions computes the list-view action set for a batch. Pure: it
// must be re-evaluated from the latest record on every render and never
// cached on its own. Unknown statuses yield an empty set.
func EligibleActions(b *datamodel.PaymentBatch) ActionSet {
	return eligible(b, listDownloadStatuses)
}

// DetailEligibleActions computes the detail-dialog action set, which differs
// from the list view only in excluding COMPLETED from download.
func DetailEligibleActions(b *datamodel.PaymentBatch) ActionSet {
	return eligible(b, detailDownloadStatuses)
}

func eligible(b *datamodel.PaymentBatch, downloadable map[datamodel.Status]bool) ActionSet {
	set := make(ActionSet)
	if b == nil || !b.Status.Known() {
		return set
	}

	if b.HasFile() && downloadable[b.Status] {
		set[ActionDownload] = true
	}

	switch b.Status {
	case datamodel.StatusFileGenerated:
		set[ActionMarkSentToBank] = true
	case datamodel.StatusSentToBank:
		set[ActionMarkProcessing] = true
		set[ActionConfirmCompleted] = true
		set[ActionMarkCompleted] = true
	case datamodel.StatusProcessing:
		set[ActionConfirmCompleted] = true
		set[ActionMarkCompleted] = true
	case datamodel.StatusFailed:
		set[ActionRetry] = true
	}

	return set
}
