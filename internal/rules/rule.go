package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	// MaxPatternLength caps the size of a user supplied pattern in bytes
	MaxPatternLength = 256

	// MaxRulesPerUser caps how many rules a single user may own
	MaxRulesPerUser = 200
)

var (
	// ErrInvalidRule is returned when a rule fails validation
	ErrInvalidRule = errors.New("invalid rule")

	// ErrNotFound is returned when a rule does not exist for the user
	ErrNotFound = errors.New("rule not found")

	// ErrTooManyRules is returned when a user already owns MaxRulesPerUser rules
	ErrTooManyRules = errors.New("too many rules")
)

// CategoryRule maps a merchant pattern to a category for one user
type CategoryRule struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Pattern   string    `json:"merchant_pattern"`
	Category  string    `json:"category"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the rule has a usable pattern and category
func (r *CategoryRule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("%w: merchant pattern is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidRule)
	}
	if len(r.Pattern) > MaxPatternLength {
		return fmt.Errorf("%w: merchant pattern exceeds %d bytes", ErrInvalidRule, MaxPatternLength)
	}
	if _, err := compilePattern(r.Pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// compilePattern compiles a user pattern for case-insensitive matching
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return re, nil
}

// SortRules orders rules by priority descending, then most recently updated,
// then by ID so the order is stable across stores.
func SortRules(rules []*CategoryRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

type compiledRule struct {
	rule    CategoryRule
	pattern *regexp.Regexp
}

// RuleSet is a user's rules compiled once and kept in evaluation order
type RuleSet struct {
	rules []compiledRule
}

// Compile builds a RuleSet. Rules whose pattern no longer compiles are
// skipped and logged rather than failing the whole set.
func Compile(rules []*CategoryRule) *RuleSet {
	ordered := make([]*CategoryRule, len(rules))
	copy(ordered, rules)
	SortRules(ordered)

	set := &RuleSet{rules: make([]compiledRule, 0, len(ordered))}
	for _, r := range ordered {
		re, err := compilePattern(r.Pattern)
		if err != nil {
			slog.Warn("Skipping rule with invalid pattern", "rule_id", r.ID, "error", err)
			continue
		}
		set.rules = append(set.rules, compiledRule{rule: *r, pattern: re})
	}
	return set
}

// Match returns the first rule, in priority order, whose pattern matches text
func (s *RuleSet) Match(text string) (CategoryRule, bool) {
	if s == nil || text == "" {
		return CategoryRule{}, false
	}
	for _, cr := range s.rules {
		if cr.pattern.MatchString(text) {
			return cr.rule, true
		}
	}
	return CategoryRule{}, false
}

// Len returns the number of usable rules in the set
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
