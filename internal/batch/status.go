package batch

import (
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

// StepState is the render state of one timeline step.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepActive    StepState = "active"
	StepError     StepState = "error"
	StepInactive  StepState = "inactive"
)

// stepCount is the number of canonical lifecycle steps.
var stepCount = len(datamodel.CanonicalOrder)

// StepIndex returns the 0-based position of a status in the canonical order.
// FAILED maps to the PROCESSING step: an approximation of where the batch
// broke, not a fault-location mechanism. Unknown statuses return -1.
func StepIndex(status datamodel.Status) int {
	if status == datamodel.StatusFailed {
		return StepIndex(datamodel.StatusProcessing)
	}
	for i, s := range datamodel.CanonicalOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// ProgressPercent derives completion as stepIndex/(N-1)*100. COMPLETED is
// exactly 100, FAILED yields the percentage at its approximated break point,
// and unknown statuses report 0.
func ProgressPercent(status datamodel.Status) float64 {
	idx := StepIndex(status)
	if idx < 0 {
		return 0
	}
	return float64(idx) / float64(stepCount-1) * 100
}

// StepStateAt returns the render state of step index for the given overall
// status. For FAILED everything from the break point onward renders as error;
// for an unknown status every step is inactive.
func StepStateAt(status datamodel.Status, index int) StepState {
	idx := StepIndex(status)
	if idx < 0 {
		return StepInactive
	}

	if index < idx {
		return StepCompleted
	}
	if status == datamodel.StatusFailed && index >= idx {
		return StepError
	}
	if index == idx {
		return StepActive
	}
	return StepInactive
}

// StepView is one fully derived timeline entry.
type StepView struct {
	Status  datamodel.Status  `json:"status"`
	Display datamodel.Display `json:"display"`
	State   StepState         `json:"state"`
}

// Timeline derives the full step list for a status. Pure and synchronous:
// same status in, same views out, no I/O.
func Timeline(status datamodel.Status) []StepView {
	views := make([]StepView, 0, stepCount)
	for i, s := range datamodel.CanonicalOrder {
		views = append(views, StepView{
			Status:  s,
			Display: datamodel.DisplayFor(s),
			State:   StepStateAt(status, i),
		})
	}
	return views
}
