package targeting

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TargetsResolved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "targeting_targets_resolved",
			Help:    "Number of customers selected per target resolution.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"mode"}, // manual | condition
	)

	DedupSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "targeting_dedup_skipped_total",
			Help: "Candidates dropped because the flow acted on them inside its dedup window.",
		},
	)
)

func init() {
	prometheus.MustRegister(TargetsResolved, DedupSkipped)
}
