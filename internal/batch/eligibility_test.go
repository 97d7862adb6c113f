package batch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kasflow/payment-batch/internal/batch"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
)

func batchWith(status datamodel.Status, fileName string) *datamodel.PaymentBatch {
	return &datamodel.PaymentBatch{
		ID:          "batch-1",
		BatchNumber: "PB-2024-0001",
		BankName:    "BCA",
		Status:      status,
		FileName:    fileName,
	}
}

var _ = Describe("EligibleActions", func() {
	It("offers nothing for a freshly created batch", func() {
		Expect(batch.EligibleActions(batchWith(datamodel.StatusCreated, ""))).To(BeEmpty())
	})

	It("offers exactly download and mark-sent-to-bank once the file exists", func() {
		set := batch.EligibleActions(batchWith(datamodel.StatusFileGenerated, "bca-20240101.xlsx"))
		Expect(set.Contains(batch.ActionDownload)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkSentToBank)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkProcessing)).To(BeFalse())
		Expect(set.Contains(batch.ActionMarkCompleted)).To(BeFalse())
		Expect(set.Contains(batch.ActionConfirmCompleted)).To(BeFalse())
		Expect(set.Contains(batch.ActionRetry)).To(BeFalse())
	})

	It("withholds download while the file is missing", func() {
		set := batch.EligibleActions(batchWith(datamodel.StatusFileGenerated, ""))
		Expect(set.Contains(batch.ActionDownload)).To(BeFalse())
		Expect(set.Contains(batch.ActionMarkSentToBank)).To(BeTrue())
	})

	It("allows processing and both completion variants from sent-to-bank", func() {
		set := batch.EligibleActions(batchWith(datamodel.StatusSentToBank, "file.xlsx"))
		Expect(set.Contains(batch.ActionDownload)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkProcessing)).To(BeTrue())
		Expect(set.Contains(batch.ActionConfirmCompleted)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkCompleted)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkSentToBank)).To(BeFalse())
		Expect(set.Contains(batch.ActionRetry)).To(BeFalse())
	})

	It("allows only completion from processing", func() {
		set := batch.EligibleActions(batchWith(datamodel.StatusProcessing, "file.xlsx"))
		Expect(set.Contains(batch.ActionConfirmCompleted)).To(BeTrue())
		Expect(set.Contains(batch.ActionMarkCompleted)).To(BeTrue())
		Expect(set.Contains(batch.ActionDownload)).To(BeFalse())
		Expect(set.Contains(batch.ActionMarkProcessing)).To(BeFalse())
		Expect(set.Contains(batch.ActionRetry)).To(BeFalse())
	})

	It("allows only retry for a failed batch", func() {
		set := batch.EligibleActions(batchWith(datamodel.StatusFailed, "file.xlsx"))
		Expect(set.List()).To(Equal([]batch.Action{batch.ActionRetry}))
	})

	It("returns an empty set for unknown statuses without panicking", func() {
		set := batch.EligibleActions(batchWith(datamodel.Status("UNKNOWN_FUTURE_STATUS"), "file.xlsx"))
		Expect(set).To(BeEmpty())
	})

	It("returns an empty set for a nil batch", func() {
		Expect(batch.EligibleActions(nil)).To(BeEmpty())
	})

	It("is idempotent for the same unchanged record", func() {
		b := batchWith(datamodel.StatusSentToBank, "file.xlsx")
		Expect(batch.EligibleActions(b)).To(Equal(batch.EligibleActions(b)))
	})

	Describe("download asymmetry between list and detail rules", func() {
		It("includes COMPLETED in the list-view download rule", func() {
			set := batch.EligibleActions(batchWith(datamodel.StatusCompleted, "file.xlsx"))
			Expect(set.Contains(batch.ActionDownload)).To(BeTrue())
		})

		It("excludes COMPLETED from the detail-dialog download rule", func() {
			set := batch.DetailEligibleActions(batchWith(datamodel.StatusCompleted, "file.xlsx"))
			Expect(set.Contains(batch.ActionDownload)).To(BeFalse())
			Expect(set).To(BeEmpty())
		})

		It("keeps the rules identical everywhere else", func() {
			for _, s := range []datamodel.Status{
				datamodel.StatusCreated,
				datamodel.StatusFileGenerated,
				datamodel.StatusSentToBank,
				datamodel.StatusProcessing,
				datamodel.StatusFailed,
			} {
				b := batchWith(s, "file.xlsx")
				Expect(batch.DetailEligibleActions(b)).To(Equal(batch.EligibleActions(b)), "rules diverged at %s", s)
			}
		})
	})
})
