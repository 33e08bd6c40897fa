package categorize

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

//go:embed table.json
var defaultTableJSON []byte

// MerchantEntry maps a merchant name fragment to a category
type MerchantEntry struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// KeywordGroup maps any of its keywords to a category
type KeywordGroup struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// TableConfig is the JSON form of the static category table. Entry order is
// significant: the earliest matching entry wins.
type TableConfig struct {
	Merchants []MerchantEntry `json:"merchants"`
	Keywords  []KeywordGroup  `json:"keywords"`
}

// Table holds the static merchant and keyword tables compiled into
// Aho-Corasick automatons.
type Table struct {
	// ahocorasick.Matcher.Match mutates internal state
	mu sync.Mutex

	merchantMatcher    *ahocorasick.Matcher
	merchantCategories []string

	keywordMatcher    *ahocorasick.Matcher
	keywordCategories []string
}

// DefaultTable returns the table shipped with the binary
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableJSON)
}

// LoadTable reads a table from a JSON file
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and compiles a JSON table
func ParseTable(data []byte) (*Table, error) {
	var cfg TableConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding category table: %w", err)
	}
	return NewTable(cfg)
}

// NewTable compiles a table. Patterns are matched case-insensitively; a
// pattern repeated later in the table is ignored since it can never win.
func NewTable(cfg TableConfig) (*Table, error) {
	t := &Table{}

	var merchantPatterns []string
	seen := make(map[string]bool)
	for i, m := range cfg.Merchants {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" || m.Category == "" {
			return nil, fmt.Errorf("merchant entry %d: name and category are required", i)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		merchantPatterns = append(merchantPatterns, name)
		t.merchantCategories = append(t.merchantCategories, m.Category)
	}

	var keywordPatterns []string
	seen = make(map[string]bool)
	for i, g := range cfg.Keywords {
		if g.Category == "" {
			return nil, fmt.Errorf("keyword group %d: category is required", i)
		}
		for _, kw := range g.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			keywordPatterns = append(keywordPatterns, kw)
			t.keywordCategories = append(t.keywordCategories, g.Category)
		}
	}

	if len(merchantPatterns) > 0 {
		t.merchantMatcher = ahocorasick.NewStringMatcher(merchantPatterns)
	}
	if len(keywordPatterns) > 0 {
		t.keywordMatcher = ahocorasick.NewStringMatcher(keywordPatterns)
	}
	return t, nil
}

// MatchMerchant returns the category of the first table entry contained in merchant
func (t *Table) MatchMerchant(merchant string) (string, bool) {
	idx := t.firstHit(t.merchantMatcher, merchant)
	if idx < 0 {
		return "", false
	}
	return t.merchantCategories[idx], true
}

// MatchKeyword returns the category of the first keyword group with a keyword contained in text
func (t *Table) MatchKeyword(text string) (string, bool) {
	idx := t.firstHit(t.keywordMatcher, text)
	if idx < 0 {
		return "", false
	}
	return t.keywordCategories[idx], true
}

func (t *Table) firstHit(m *ahocorasick.Matcher, text string) int {
	if m == nil || text == "" {
		return -1
	}
	t.mu.Lock()
	hits := m.Match([]byte(strings.ToLower(text)))
	t.mu.Unlock()

	first := -1
	for _, h := range hits {
		if first < 0 || h < first {
			first = h
		}
	}
	return first
}
