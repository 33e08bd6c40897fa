package ocr

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedRecognizer returns errs in order, then text
type scriptedRecognizer struct {
	errs   []error
	text   string
	calls  int
	closed bool
}

func (s *scriptedRecognizer) RecognizeText(context.Context, []byte, string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.text, nil
}

func (s *scriptedRecognizer) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("RetryingRecognizer", func() {
	var (
		inner *scriptedRecognizer
		ctx   context.Context
	)

	BeforeEach(func() {
		inner = &scriptedRecognizer{text: "WALMART"}
		ctx = context.Background()
	})

	It("should retry transient failures", func() {
		inner.errs = []error{errors.New("connection reset"), &StatusError{StatusCode: 503}}

		text, err := WithRetry(inner, 3, 0).RecognizeText(ctx, nil, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("WALMART"))
		Expect(inner.calls).To(Equal(3))
	})

	It("should not retry unsupported formats", func() {
		inner.errs = []error{ErrUnsupportedFormat}

		_, err := WithRetry(inner, 3, 0).RecognizeText(ctx, nil, "text/plain")
		Expect(err).To(MatchError(ErrUnsupportedFormat))
		Expect(inner.calls).To(Equal(1))
	})

	It("should not retry client errors", func() {
		inner.errs = []error{&StatusError{StatusCode: 400}}

		_, err := WithRetry(inner, 3, 0).RecognizeText(ctx, nil, "image/png")
		Expect(err).To(HaveOccurred())
		Expect(inner.calls).To(Equal(1))
	})

	It("should give up after the configured attempts", func() {
		inner.errs = []error{errors.New("a"), errors.New("b"), errors.New("c")}

		_, err := WithRetry(inner, 2, 0).RecognizeText(ctx, nil, "image/png")
		Expect(err).To(MatchError("b"))
		Expect(inner.calls).To(Equal(2))
	})

	It("should close the wrapped recognizer", func() {
		Expect(WithRetry(inner, 1, 0).Close()).To(Succeed())
		Expect(inner.closed).To(BeTrue())
	})
})
