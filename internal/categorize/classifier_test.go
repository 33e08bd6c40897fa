package categorize

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/budgetwise/internal/rules"
)

// mockRuleSource returns a fixed rule set per user
type mockRuleSource struct {
	sets map[string]*rules.RuleSet
	err  error
}

func (m *mockRuleSource) RuleSet(_ context.Context, userID string) (*rules.RuleSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sets[userID], nil
}

// failingPreferences always errors
type failingPreferences struct{}

func (failingPreferences) GetPreference(context.Context, string, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

func (failingPreferences) SetPreference(context.Context, string, string, string) error {
	return errors.New("store unavailable")
}

var _ = Describe("Classifier", func() {
	var (
		table       *Table
		ruleSource  *mockRuleSource
		preferences *MemoryPreferences
		classifier  *Classifier
		ctx         context.Context
	)

	BeforeEach(func() {
		var err error
		table, err = DefaultTable()
		Expect(err).NotTo(HaveOccurred())
		ruleSource = &mockRuleSource{sets: map[string]*rules.RuleSet{}}
		preferences = NewMemoryPreferences()
		classifier = NewClassifier(table, ruleSource, preferences)
		ctx = context.Background()
	})

	When("only the static tables apply", func() {
		It("should classify a known merchant with high confidence", func() {
			result := classifier.Classify(ctx, Request{Description: "groceries", Merchant: "Starbucks #42"})
			Expect(result.Category).To(Equal("Food & Dining"))
			Expect(result.Confidence).To(Equal(MerchantConfidence))
			Expect(result.Source).To(Equal(SourceMerchant))
		})

		It("should fall through to keywords when the merchant is unknown", func() {
			result := classifier.Classify(ctx, Request{Description: "Local Grocery Store", Merchant: "Joe's"})
			Expect(result.Category).To(Equal("Groceries"))
			Expect(result.Confidence).To(Equal(KeywordConfidence))
		})

		It("should not use the merchant table for an empty merchant", func() {
			result := classifier.Classify(ctx, Request{Description: "walmart"})
			Expect(result.Source).NotTo(Equal(SourceMerchant))
		})

		It("should fall back to Uncategorized", func() {
			result := classifier.Classify(ctx, Request{Description: "xyz"})
			Expect(result).To(Equal(Fallback()))
			Expect(result.Category).To(Equal("Uncategorized"))
			Expect(result.Confidence).To(Equal(0.1))
		})
	})

	When("the user has rules", func() {
		BeforeEach(func() {
			ruleSource.sets["alice"] = rules.Compile([]*rules.CategoryRule{
				{ID: "r1", Pattern: "Walmart|Target", Category: "Shopping", Priority: 1, UpdatedAt: time.Now()},
			})
		})

		It("should let the rule override the static merchant table", func() {
			result := classifier.Classify(ctx, Request{UserID: "alice", Description: "weekly shop", Merchant: "WALMART #5"})
			Expect(result.Category).To(Equal("Shopping"))
			Expect(result.Confidence).To(Equal(RuleConfidence))
			Expect(result.RuleID).To(Equal("r1"))
		})

		It("should test the description when the merchant is empty", func() {
			result := classifier.Classify(ctx, Request{UserID: "alice", Description: "target run"})
			Expect(result.Source).To(Equal(SourceRule))
		})

		It("should not apply one user's rules to another user", func() {
			result := classifier.Classify(ctx, Request{UserID: "bob", Description: "weekly shop", Merchant: "WALMART #5"})
			Expect(result.Category).To(Equal("Groceries"))
		})

		It("should not remember rule results", func() {
			req := Request{UserID: "alice", Description: "weekly shop", Merchant: "WALMART #5"}
			Expect(classifier.Classify(ctx, req).Source).To(Equal(SourceRule))

			_, ok, err := preferences.GetPreference(ctx, "alice", PreferenceKey(req.Merchant, req.Description))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should stop applying a rule once it is removed", func() {
			req := Request{UserID: "alice", Description: "weekly shop", Merchant: "WALMART #5"}
			Expect(classifier.Classify(ctx, req).Category).To(Equal("Shopping"))

			ruleSource.sets["alice"] = rules.Compile(nil)

			result := classifier.Classify(ctx, req)
			Expect(result.Category).To(Equal("Groceries"))
			Expect(result.Source).To(Equal(SourceMerchant))
		})

		It("should skip the rules tier when the source fails", func() {
			ruleSource.err = errors.New("db down")
			result := classifier.Classify(ctx, Request{UserID: "alice", Description: "weekly shop", Merchant: "WALMART #5"})
			Expect(result.Category).To(Equal("Groceries"))
		})
	})

	Describe("preferences", func() {
		It("should remember confident results", func() {
			classifier.Classify(ctx, Request{UserID: "alice", Description: "Coffee", Merchant: "Starbucks"})

			category, ok, err := preferences.GetPreference(ctx, "alice", PreferenceKey("Starbucks", "Coffee"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(category).To(Equal("Food & Dining"))
		})

		It("should not remember keyword results", func() {
			classifier.Classify(ctx, Request{UserID: "alice", Description: "grocery"})
			_, ok, _ := preferences.GetPreference(ctx, "alice", "grocery")
			Expect(ok).To(BeFalse())
		})

		It("should be idempotent across repeated calls", func() {
			req := Request{UserID: "alice", Description: "Coffee", Merchant: "Starbucks"}
			first := classifier.Classify(ctx, req)
			second := classifier.Classify(ctx, req)
			Expect(second.Category).To(Equal(first.Category))
			Expect(second.Confidence).To(Equal(first.Confidence))
		})

		It("should apply a learned correction", func() {
			Expect(classifier.Learn(ctx, "alice", "Coffee beans", "Starbucks", "Groceries")).To(Succeed())

			result := classifier.Classify(ctx, Request{UserID: "alice", Description: "coffee beans", Merchant: "STARBUCKS"})
			Expect(result.Category).To(Equal("Groceries"))
			Expect(result.Source).To(Equal(SourcePreference))
		})

		It("should still classify when the preference store fails", func() {
			classifier = NewClassifier(table, nil, failingPreferences{})
			result := classifier.Classify(ctx, Request{UserID: "alice", Description: "Coffee", Merchant: "Starbucks"})
			Expect(result.Category).To(Equal("Food & Dining"))
		})
	})

	It("should classify without a table", func() {
		classifier = NewClassifier(nil, nil, nil)
		Expect(classifier.Classify(ctx, Request{Description: "walmart"})).To(Equal(Fallback()))
	})
})

var _ = Describe("PreferenceKey", func() {
	It("should combine merchant and description", func() {
		Expect(PreferenceKey(" Starbucks ", "Coffee")).To(Equal("starbucks\x00coffee"))
	})

	It("should keep merchant and description boundaries distinct", func() {
		Expect(PreferenceKey("a:b", "c")).NotTo(Equal(PreferenceKey("a", "b:c")))
		Expect(PreferenceKey("a\x00b", "c")).NotTo(Equal(PreferenceKey("a", "b\x00c")))
	})

	It("should use the description alone without a merchant", func() {
		Expect(PreferenceKey("", "Coffee")).To(Equal("coffee"))
	})
})
