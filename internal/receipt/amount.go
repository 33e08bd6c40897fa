package receipt

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountExpr matches a currency figure with exactly two decimals, optionally
// prefixed by $ and using comma thousands separators.
const amountExpr = `\$?\s*(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}`

var (
	amountPattern           = regexp.MustCompile(amountExpr)
	totalKeywordPattern     = regexp.MustCompile(`(?i)(\bTOTAL\b|\bTOTAL AMOUNT\b|\bGRAND TOTAL\b).*?(` + amountExpr + `)`)
	secondaryKeywordPattern = regexp.MustCompile(`(?i)(AMOUNT|SUBTOTAL|BALANCE|DUE).*?(` + amountExpr + `)`)
	nonNumeric              = regexp.MustCompile(`[^\d.]`)
)

// AmountStrategy is one named heuristic for finding the receipt total.
// Find reports false when it has nothing to offer; a zero amount counts as nothing.
type AmountStrategy struct {
	Name string
	Find func(lines []string, items []LineItem) (decimal.Decimal, bool)
}

// DefaultAmountStrategies returns the built-in strategies in evaluation order
func DefaultAmountStrategies() []AmountStrategy {
	return []AmountStrategy{
		{Name: "total-keyword", Find: keywordAmount(totalKeywordPattern)},
		{Name: "secondary-keyword", Find: keywordAmount(secondaryKeywordPattern)},
		{Name: "item-sum", Find: itemSum},
		{Name: "largest-amount", Find: largestAmount},
	}
}

// ExtractAmount runs the default strategies and returns the first amount found, or zero
func ExtractAmount(lines []string, items []LineItem) decimal.Decimal {
	amount, _ := RunAmountStrategies(DefaultAmountStrategies(), lines, items)
	return amount
}

// RunAmountStrategies returns the first positive amount and the name of the
// strategy that produced it. With no match it returns zero and "".
func RunAmountStrategies(strategies []AmountStrategy, lines []string, items []LineItem) (decimal.Decimal, string) {
	for _, s := range strategies {
		amount, ok := s.Find(lines, items)
		if ok && amount.IsPositive() {
			return amount.Round(2), s.Name
		}
	}
	return decimal.Zero, ""
}

// parseAmount strips currency symbols and separators from a matched figure
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(nonNumeric.ReplaceAllString(s, ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// keywordAmount returns the amount on the first line matching pattern
func keywordAmount(pattern *regexp.Regexp) func([]string, []LineItem) (decimal.Decimal, bool) {
	return func(lines []string, _ []LineItem) (decimal.Decimal, bool) {
		for _, line := range lines {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			return parseAmount(m[2])
		}
		return decimal.Zero, false
	}
}

func itemSum(_ []string, items []LineItem) (decimal.Decimal, bool) {
	if len(items) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(decimal.NewFromFloat(item.Price))
	}
	return sum, true
}

func largestAmount(lines []string, _ []LineItem) (decimal.Decimal, bool) {
	largest := decimal.Zero
	found := false
	for _, m := range amountPattern.FindAllString(strings.Join(lines, "\n"), -1) {
		d, ok := parseAmount(m)
		if !ok {
			continue
		}
		if !found || d.GreaterThan(largest) {
			largest = d
			found = true
		}
	}
	return largest, found
}
