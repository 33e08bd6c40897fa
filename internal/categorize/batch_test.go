package categorize

import (
	"context"
	"fmt"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// panickyClassifier panics for one description
type panickyClassifier struct {
	inner   TransactionClassifier
	explode string
	calls   atomic.Int32
}

func (p *panickyClassifier) Classify(ctx context.Context, req Request) Result {
	p.calls.Add(1)
	if req.Description == p.explode {
		panic("boom")
	}
	return p.inner.Classify(ctx, req)
}

var _ = Describe("BatchCategorizer", func() {
	var (
		classifier *panickyClassifier
		batch      *BatchCategorizer
		ctx        context.Context
	)

	BeforeEach(func() {
		table, err := DefaultTable()
		Expect(err).NotTo(HaveOccurred())
		classifier = &panickyClassifier{inner: NewClassifier(table, nil, nil), explode: "explode"}
		batch = NewBatchCategorizer(classifier, 3)
		ctx = context.Background()
	})

	It("should return one result per entry in input order", func() {
		txns := make([]Transaction, 0, 25)
		for i := range 25 {
			txns = append(txns, Transaction{ID: fmt.Sprintf("t%d", i), Description: "coffee", Merchant: "Starbucks"})
		}

		results := batch.ClassifyBatch(ctx, "", txns)

		Expect(results).To(HaveLen(25))
		for i, r := range results {
			Expect(r.TransactionID).To(Equal(fmt.Sprintf("t%d", i)))
			Expect(r.Category).To(Equal("Food & Dining"))
		}
	})

	It("should isolate a panicking entry", func() {
		results := batch.ClassifyBatch(ctx, "", []Transaction{
			{ID: "a", Description: "Local Grocery Store"},
			{ID: "b", Description: "explode"},
			{ID: "c", Description: "coffee", Merchant: "Starbucks"},
		})

		Expect(results[0].Category).To(Equal("Groceries"))
		Expect(results[1]).To(Equal(BatchResult{TransactionID: "b", Category: Uncategorized, Confidence: FallbackConfidence}))
		Expect(results[2].Category).To(Equal("Food & Dining"))
	})

	It("should give malformed entries the fallback without classifying them", func() {
		results := batch.ClassifyBatch(ctx, "", []Transaction{{ID: "bad", Malformed: true}})

		Expect(results[0].Category).To(Equal(Uncategorized))
		Expect(classifier.calls.Load()).To(BeZero())
	})

	It("should handle an empty batch", func() {
		Expect(batch.ClassifyBatch(ctx, "", nil)).To(BeEmpty())
	})

	It("should default the worker count", func() {
		Expect(NewBatchCategorizer(classifier, 0).workers).To(Equal(DefaultBatchWorkers))
	})
})
