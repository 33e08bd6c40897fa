package ocr

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
)

// RetryingRecognizer retries transient failures of another Recognizer
type RetryingRecognizer struct {
	next     Recognizer
	attempts uint
	delay    time.Duration
}

// WithRetry wraps next so transient errors are retried up to attempts times
func WithRetry(next Recognizer, attempts uint, delay time.Duration) *RetryingRecognizer {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryingRecognizer{next: next, attempts: attempts, delay: delay}
}

// RecognizeText calls the wrapped recognizer, retrying transient errors
func (r *RetryingRecognizer) RecognizeText(ctx context.Context, data []byte, contentType string) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			var err error
			text, err = r.next.RecognizeText(ctx, data, contentType)
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying text recognition", "attempt", n+1, "error", err)
		}),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close closes the wrapped recognizer
func (r *RetryingRecognizer) Close() error {
	return r.next.Close()
}

// isTransient reports whether a failure might succeed on another attempt
func isTransient(err error) bool {
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	return true
}
