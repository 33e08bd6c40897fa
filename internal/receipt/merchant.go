package receipt

import "regexp"

// merchantSearchLines is how many leading lines may hold the merchant name
const merchantSearchLines = 5

var (
	priceLike       = regexp.MustCompile(`\d+\.\d{2}`)
	summaryKeywords = regexp.MustCompile(`(?i)(TOTAL|SUBTOTAL|TAX|CHANGE|CASH|CARD|CREDIT|DEBIT|BALANCE|DUE)`)
)

// ExtractMerchant returns the first of the leading lines that is neither a
// price line nor a payment summary line.
func ExtractMerchant(lines []string) string {
	for i, line := range lines {
		if i == merchantSearchLines {
			break
		}
		if priceLike.MatchString(line) || summaryKeywords.MatchString(line) {
			continue
		}
		return line
	}
	return UnknownMerchant
}
