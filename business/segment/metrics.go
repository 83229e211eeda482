package segment

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segment_classify_branch_seconds",
			Help:    "Time spent labelling all customers of a branch.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"branch_id"},
	)
)

func init() {
	prometheus.MustRegister(ClassificationDuration)
}
