package receipt

import "strings"

// MaxLines caps how many lines of OCR text are considered
const MaxLines = 100

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeLines splits raw OCR text into trimmed, non-empty lines, keeping
// at most MaxLines in their original order.
func NormalizeLines(raw string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(lineEndings.Replace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == MaxLines {
			break
		}
	}
	return lines
}
