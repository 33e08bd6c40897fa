package receipt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zombor/budgetwise/internal/categorize"
)

// Classifier assigns a category to a merchant and description
type Classifier interface {
	Classify(ctx context.Context, req categorize.Request) categorize.Result
}

// Parser turns raw OCR text into a ParsedReceipt. It never fails: anything
// it cannot find takes its default value.
type Parser struct {
	classifier       Classifier
	timeSource       TimeSource
	amountStrategies []AmountStrategy
}

// NewParser creates a Parser using the system clock and default strategies.
// classifier may be nil, in which case every receipt is Uncategorized.
func NewParser(classifier Classifier) *Parser {
	return NewParserWithDeps(classifier, &defaultTimeSource{}, DefaultAmountStrategies())
}

// NewParserWithDeps creates a Parser with custom dependencies for testing
func NewParserWithDeps(classifier Classifier, timeSrc TimeSource, strategies []AmountStrategy) *Parser {
	return &Parser{
		classifier:       classifier,
		timeSource:       timeSrc,
		amountStrategies: strategies,
	}
}

// Parse extracts merchant, amount, date and items from rawText and
// categorizes the result for userID.
func (p *Parser) Parse(ctx context.Context, userID, rawText string) ParsedReceipt {
	lines := NormalizeLines(rawText)

	items := ExtractLineItems(lines)
	amount, strategy := RunAmountStrategies(p.amountStrategies, lines, items)
	merchant := ExtractMerchant(lines)

	parsed := ParsedReceipt{
		Merchant: merchant,
		Amount:   amount.InexactFloat64(),
		Date:     ExtractDate(lines, p.timeSource.Now()),
		Items:    items,
	}

	result := categorize.Fallback()
	if p.classifier != nil {
		req := categorize.Request{UserID: userID, Description: strings.Join(lines, "\n"), Merchant: merchant}
		if merchant == UnknownMerchant {
			req.Merchant = ""
		}
		result = p.classifier.Classify(ctx, req)
	}
	parsed.Category = result.Category
	parsed.Confidence = result.Confidence

	slog.Debug("Parsed receipt text",
		"lines", len(lines),
		"items", len(items),
		"amount_strategy", strategy,
		"category_source", result.Source,
	)
	return parsed
}
