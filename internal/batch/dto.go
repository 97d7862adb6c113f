package batch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	errors "github.com/kasflow/payment-batch/internal"
	"github.com/kasflow/payment-batch/internal/core/common/validation"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var sortableFields = []string{"created_at", "batch_number", "bank_name", "total_amount", "status"}

// Filter selects a page of batches. Statuses and bank names are multi-valued;
// the date range bounds created_at.
type Filter struct {
	Statuses  []datamodel.Status `json:"statuses,omitempty"`
	BankNames []string           `json:"bank_names,omitempty"`
	DateFrom  *time.Time         `json:"date_from,omitempty"`
	DateTo    *time.Time         `json:"date_to,omitempty"`
	Page      int                `json:"page"`
	Size      int                `json:"size"`
	SortBy    string             `json:"sort_by,omitempty"`
	SortDir   string             `json:"sort_dir,omitempty"`
}

// Normalize fills defaults and, when any non-pagination field differs from
// prev, resets the page back to 0 so a changed filter never lands mid-way
// through stale pagination.
func (f Filter) Normalize(prev *Filter) Filter {
	if f.Size <= 0 {
		f.Size = defaultPageSize
	}
	if f.Size > maxPageSize {
		f.Size = maxPageSize
	}
	if f.Page < 0 {
		f.Page = 0
	}
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if f.SortDir == "" {
		f.SortDir = "desc"
	}

	if prev != nil && !f.sameCriteria(*prev) {
		f.Page = 0
	}

	return f
}

func (f Filter) sameCriteria(other Filter) bool {
	return f.criteriaKey() == other.criteriaKey()
}

func (f Filter) criteriaKey() string {
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	banks := append([]string(nil), f.BankNames...)
	sort.Strings(banks)

	from, to := "", ""
	if f.DateFrom != nil {
		from = f.DateFrom.UTC().Format(time.RFC3339)
	}
	if f.DateTo != nil {
		to = f.DateTo.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf("st=%s|bk=%s|from=%s|to=%s|sort=%s:%s|size=%d",
		strings.Join(statuses, ","), strings.Join(banks, ","), from, to, f.SortBy, f.SortDir, f.Size)
}

// CacheKey identifies this exact query, pagination included, for the list
// cache.
func (f Filter) CacheKey() string {
	return fmt.Sprintf("%s|page=%d", f.criteriaKey(), f.Page)
}

func (f Filter) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("size", f.Size).MinInt(1, errors.ErrCodeInvalidPageSize).MaxInt(maxPageSize, errors.ErrCodeInvalidPageSize)
	v.Field("sort_by", f.SortBy).OneOf(sortableFields, errors.ErrCodeInvalidFilter)
	v.Field("sort_dir", f.SortDir).OneOf([]string{"asc", "desc"}, errors.ErrCodeInvalidFilter)

	for _, s := range f.Statuses {
		if !s.Known() {
			return errors.NewValidationFieldError("statuses",
				fmt.Sprintf("unknown status %q", string(s)), errors.ErrCodeInvalidStatus)
		}
	}

	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return errors.NewValidationFieldError("date_to", "date_to must not be before date_from", errors.ErrCodeInvalidFilter)
	}

	return v.Validate()
}

// ConfirmCompletedRequest finalizes a batch and updates dependent approval
// and quotation records to paid. PaymentIDs may legitimately be empty: the
// server then resolves the payments for the batch itself. That delegation is
// a fragile upstream contract, so the field is always serialized, never
// omitted, to keep it visible on the wire.
type ConfirmCompletedRequest struct {
	PaymentIDs            []string `json:"payment_ids"`
	BatchID               string   `json:"batch_id"`
	ConfirmationReference string   `json:"confirmation_reference,omitempty"`
	Comments              string   `json:"comments,omitempty"`
}

func (r *ConfirmCompletedRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("batch_id", r.BatchID).Required()
	v.Field("confirmation_reference", r.ConfirmationReference).MaxLength(120)
	v.Field("comments", r.Comments).MaxLength(1000)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// MarkCompletedRequest is the status-only completion, without the dependent
// approval side effect.
type MarkCompletedRequest struct {
	BatchID string `json:"batch_id"`
	Notes   string `json:"notes,omitempty"`
}

func (r *MarkCompletedRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("batch_id", r.BatchID).Required()
	v.Field("notes", r.Notes).MaxLength(1000)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// OverrideStatusRequest is the administrative status override. It is guarded:
// callers must set Override explicitly so the guided workflow can never reach
// this path by accident.
type OverrideStatusRequest struct {
	BatchID  string           `json:"batch_id"`
	Status   datamodel.Status `json:"status"`
	Override bool             `json:"override"`
	Reason   string           `json:"reason,omitempty"`
}

func (r *OverrideStatusRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("batch_id", r.BatchID).Required()
	v.Field("reason", r.Reason).MaxLength(500)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}

	if !r.Status.Known() {
		return errors.NewValidationFieldError("status",
			fmt.Sprintf("unknown status %q", string(r.Status)), errors.ErrCodeInvalidStatus)
	}
	if !r.Override {
		return errors.NewValidationFieldError("override",
			"status override requires the override flag", errors.ErrCodeValidationFailed)
	}
	return nil
}
