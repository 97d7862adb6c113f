package batch

import (
	"time"
)

// Status is the lifecycle state of a payment batch as reported by the
// upstream batch API. This service never computes transitions; it only
// reflects whatever status the server returns.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusFileGenerated Status = "FILE_GENERATED"
	StatusSentToBank    Status = "SENT_TO_BANK"
	StatusProcessing    Status = "PROCESSING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
)

// CanonicalOrder is the forward path of the batch lifecycle. FAILED sits
// outside it as a branch entered from SENT_TO_BANK or PROCESSING.
var CanonicalOrder = []Status{
	StatusCreated,
	StatusFileGenerated,
	StatusSentToBank,
	StatusProcessing,
	StatusCompleted,
}

// Known reports whether the status is part of the enumeration this service
// understands. Anything else renders as an inert state with no actions.
func (s Status) Known() bool {
	switch s {
	case StatusCreated, StatusFileGenerated, StatusSentToBank, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// PaymentItem is one payment line inside a batch. The list endpoint may omit
// these entirely.
type PaymentItem struct {
	ID           string `json:"id"`
	EmployeeName string `json:"employee_name"`
	Amount       int64  `json:"amount"`
	Project      string `json:"project,omitempty"`
	Status       string `json:"status"`
}

// PaymentBatch is the client-side copy of a batch record owned by the
// upstream API. Amounts are in minor currency units. Timestamp pointers stay
// nil when the server omits them; presence, not just value, drives rendering.
type PaymentBatch struct {
	ID           string        `json:"id"`
	BatchNumber  string        `json:"batch_number"`
	BankName     string        `json:"bank_name"`
	Status       Status        `json:"status"`
	PaymentCount int           `json:"payment_count"`
	TotalAmount  int64         `json:"total_amount"`
	FileName     string        `json:"file_name,omitempty"`
	CreatedAt    *time.Time    `json:"created_at,omitempty"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedBy    string        `json:"created_by"`
	Payments     []PaymentItem `json:"payments,omitempty"`
}

// HasFile reports whether a bank file has been generated for this batch.
func (b *PaymentBatch) HasFile() bool {
	return b.FileName != ""
}

// Page is the paginated envelope the upstream list endpoint returns.
type Page struct {
	Content       []PaymentBatch `json:"content"`
	TotalElements int64          `json:"total_elements"`
	TotalPages    int            `json:"total_pages"`
	PageNumber    int            `json:"page_number"`
	PageSize      int            `json:"page_size"`
}
