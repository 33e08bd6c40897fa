package categorize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zombor/budgetwise/internal/rules"
)

// Uncategorized is the category assigned when nothing matches
const Uncategorized = "Uncategorized"

const (
	RuleConfidence       = 0.9
	PreferenceConfidence = 0.9
	MerchantConfidence   = 0.9
	KeywordConfidence    = 0.7
	FallbackConfidence   = 0.1

	// PreferenceThreshold is the confidence a result must exceed to be remembered
	PreferenceThreshold = 0.7
)

// Source names the tier that produced a result
type Source string

const (
	SourceRule       Source = "rule"
	SourcePreference Source = "preference"
	SourceMerchant   Source = "merchant"
	SourceKeyword    Source = "keyword"
	SourceFallback   Source = "fallback"
)

// Request is a transaction to classify. Description may be a full receipt text.
type Request struct {
	UserID      string
	Description string
	Merchant    string
}

// Result is a category with the confidence of the tier that assigned it
type Result struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	RuleID     string  `json:"rule_id,omitempty"`
}

// Fallback returns the result used when no tier matches
func Fallback() Result {
	return Result{Category: Uncategorized, Confidence: FallbackConfidence, Source: SourceFallback}
}

// RuleSource supplies a user's compiled rules
type RuleSource interface {
	RuleSet(ctx context.Context, userID string) (*rules.RuleSet, error)
}

// Classifier assigns categories using, in order: user rules, remembered
// preferences, the static merchant table and the static keyword table.
type Classifier struct {
	table       *Table
	rules       RuleSource
	preferences PreferenceStore
}

// NewClassifier creates a Classifier. ruleSource and preferences may be nil, in
// which case those tiers are skipped.
func NewClassifier(table *Table, ruleSource RuleSource, preferences PreferenceStore) *Classifier {
	return &Classifier{
		table:       table,
		rules:       ruleSource,
		preferences: preferences,
	}
}

// Classify returns the first tier's match, or Fallback. It never fails:
// store errors are logged and that tier is skipped.
func (c *Classifier) Classify(ctx context.Context, req Request) Result {
	result := c.classify(ctx, req)
	classifications.WithLabelValues(string(result.Source)).Inc()

	if result.Confidence > PreferenceThreshold && result.Source == SourceMerchant {
		c.remember(ctx, req.UserID, req.Merchant, req.Description, result.Category)
	}
	return result
}

func (c *Classifier) classify(ctx context.Context, req Request) Result {
	if result, ok := c.matchRules(ctx, req); ok {
		return result
	}
	if result, ok := c.matchPreference(ctx, req); ok {
		return result
	}
	if c.table != nil {
		if strings.TrimSpace(req.Merchant) != "" {
			if category, ok := c.table.MatchMerchant(req.Merchant); ok {
				return Result{Category: category, Confidence: MerchantConfidence, Source: SourceMerchant}
			}
		}
		if category, ok := c.table.MatchKeyword(req.Description); ok {
			return Result{Category: category, Confidence: KeywordConfidence, Source: SourceKeyword}
		}
	}
	return Fallback()
}

func (c *Classifier) matchRules(ctx context.Context, req Request) (Result, bool) {
	if c.rules == nil || req.UserID == "" {
		return Result{}, false
	}
	set, err := c.rules.RuleSet(ctx, req.UserID)
	if err != nil {
		slog.Warn("Skipping user rules", "user_id", req.UserID, "error", err)
		return Result{}, false
	}

	subject := req.Merchant
	if strings.TrimSpace(subject) == "" {
		subject = req.Description
	}
	rule, ok := set.Match(subject)
	if !ok {
		return Result{}, false
	}
	return Result{Category: rule.Category, Confidence: RuleConfidence, Source: SourceRule, RuleID: rule.ID}, true
}

func (c *Classifier) matchPreference(ctx context.Context, req Request) (Result, bool) {
	key := PreferenceKey(req.Merchant, req.Description)
	if c.preferences == nil || req.UserID == "" || key == "" {
		return Result{}, false
	}
	category, ok, err := c.preferences.GetPreference(ctx, req.UserID, key)
	if err != nil {
		slog.Warn("Skipping stored preference", "user_id", req.UserID, "error", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	return Result{Category: category, Confidence: PreferenceConfidence, Source: SourcePreference}, true
}

// Learn records a user's correction so later lookups for the same merchant
// and description return category.
func (c *Classifier) Learn(ctx context.Context, userID, description, merchant, category string) error {
	key := PreferenceKey(merchant, description)
	if c.preferences == nil || userID == "" || key == "" {
		return nil
	}
	if err := c.preferences.SetPreference(ctx, userID, key, category); err != nil {
		return err
	}
	corrections.Inc()
	return nil
}

func (c *Classifier) remember(ctx context.Context, userID, merchant, description, category string) {
	key := PreferenceKey(merchant, description)
	if c.preferences == nil || userID == "" || key == "" {
		return
	}
	if err := c.preferences.SetPreference(ctx, userID, key, category); err != nil {
		slog.Warn("Failed to store category preference", "user_id", userID, "error", err)
	}
}
