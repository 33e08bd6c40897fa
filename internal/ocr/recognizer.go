package ocr

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyTranscript is returned when the engine produced no text
var ErrEmptyTranscript = errors.New("no text recognized")

// Recognizer turns a receipt image or PDF into raw text
type Recognizer interface {
	// RecognizeText returns the text found in the document, line by line
	RecognizeText(ctx context.Context, data []byte, contentType string) (string, error)
	// Close releases resources held by the recognizer
	Close() error
}

// transcribePrompt is shared by every vision model backend
const transcribePrompt = `You are reading a photographed or scanned shopping receipt.
Transcribe every line of printed text exactly as it appears, top to bottom.

Rules:
- Output one receipt line per line of output.
- Keep prices, dates, and store names exactly as printed, including "$" signs and decimals.
- Keep item names and their prices on the same line.
- Do not summarize, translate, correct, or add commentary.
- Do not wrap the output in markdown or code blocks.`

// cleanTranscript strips markdown fences and surrounding whitespace that
// models add despite being told not to.
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
