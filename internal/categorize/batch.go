package categorize

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchWorkers is the worker count used when none is configured
const DefaultBatchWorkers = 4

// Transaction is one entry of a batch request
type Transaction struct {
	ID          string  `json:"transactionId"`
	Description string  `json:"description"`
	Merchant    string  `json:"merchant"`
	Amount      float64 `json:"amount"`

	// Malformed marks an entry that could not be decoded; it gets Fallback
	Malformed bool `json:"-"`
}

// BatchResult is the outcome for one batch entry
type BatchResult struct {
	TransactionID string  `json:"transactionId" csv:"id"`
	Category      string  `json:"category" csv:"category"`
	Confidence    float64 `json:"confidence" csv:"confidence"`
}

// TransactionClassifier classifies a single transaction
type TransactionClassifier interface {
	Classify(ctx context.Context, req Request) Result
}

// BatchCategorizer classifies many transactions on a bounded worker pool
type BatchCategorizer struct {
	classifier TransactionClassifier
	workers    int
}

// NewBatchCategorizer creates a BatchCategorizer. workers < 1 uses DefaultBatchWorkers.
func NewBatchCategorizer(classifier TransactionClassifier, workers int) *BatchCategorizer {
	if workers < 1 {
		workers = DefaultBatchWorkers
	}
	return &BatchCategorizer{classifier: classifier, workers: workers}
}

// ClassifyBatch returns one result per transaction, in input order. A
// malformed or panicking entry gets the fallback result without affecting
// the rest of the batch.
func (b *BatchCategorizer) ClassifyBatch(ctx context.Context, userID string, txns []Transaction) []BatchResult {
	results := make([]BatchResult, len(txns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, txn := range txns {
		g.Go(func() error {
			results[i] = b.classifyOne(gctx, userID, txn)
			return nil
		})
	}
	// workers never return errors
	_ = g.Wait()

	return results
}

func (b *BatchCategorizer) classifyOne(ctx context.Context, userID string, txn Transaction) (result BatchResult) {
	fallback := Fallback()
	result = BatchResult{TransactionID: txn.ID, Category: fallback.Category, Confidence: fallback.Confidence}

	defer func() {
		if r := recover(); r != nil {
			batchPanics.Inc()
			slog.Error("Recovered from panic classifying batch entry", "transaction_id", txn.ID, "panic", r)
			result = BatchResult{TransactionID: txn.ID, Category: fallback.Category, Confidence: fallback.Confidence}
		}
	}()

	if txn.Malformed {
		return result
	}

	r := b.classifier.Classify(ctx, Request{UserID: userID, Description: txn.Description, Merchant: txn.Merchant})
	result.Category = r.Category
	result.Confidence = r.Confidence
	return result
}
