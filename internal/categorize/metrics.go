package categorize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "budgetwise",
		Name:      "classifications_total",
		Help:      "Transactions classified, by the tier that matched.",
	}, []string{"source"})

	corrections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetwise",
		Name:      "category_corrections_total",
		Help:      "User category corrections recorded.",
	})

	batchPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetwise",
		Name:      "batch_entry_panics_total",
		Help:      "Batch entries that panicked and fell back to Uncategorized.",
	})
)
