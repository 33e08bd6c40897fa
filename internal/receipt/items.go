package receipt

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxItems caps how many line items are extracted
const MaxItems = 20

var (
	itemPattern  = regexp.MustCompile(`^(.+?)\s+(` + amountExpr + `)$`)
	nonItemLines = regexp.MustCompile(`(?i)^(TOTAL|SUBTOTAL|TAX|CHANGE|CASH|CARD|CREDIT|DEBIT|BALANCE|DUE|SALE|VOID|REFUND|RETURN)`)
)

// ExtractLineItems returns lines shaped like "<name> <price>" that are not
// payment summary lines, in order, up to MaxItems.
func ExtractLineItems(lines []string) []LineItem {
	items := make([]LineItem, 0)
	for _, line := range lines {
		if nonItemLines.MatchString(line) {
			continue
		}
		m := itemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		price, ok := parseAmount(m[2])
		if !ok || utf8.RuneCountInString(name) <= 1 || !price.IsPositive() {
			continue
		}
		items = append(items, LineItem{Name: name, Price: price.Round(2).InexactFloat64()})
		if len(items) == MaxItems {
			break
		}
	}
	return items
}
