package flow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FlowDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dispatches_total",
			Help: "Count of flow dispatches by flow_type and result.",
		},
		[]string{"flow_type", "result"}, // published | empty | publish_failed
	)

	FlowDispatchTargets = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_dispatch_targets",
			Help:    "Accepted targets per dispatch after dedup.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"flow_type"},
	)

	FlowDispatchesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "automation_dispatches_expired_total",
			Help: "Dispatches abandoned because no callback arrived before the timeout.",
		},
	)

	FlowCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_callbacks_total",
			Help: "Count of worker callbacks by outcome.",
		},
		[]string{"outcome"}, // applied | stale | duplicate | conflict
	)
)

func init() {
	prometheus.MustRegister(
		FlowDispatchesTotal,
		FlowDispatchTargets,
		FlowDispatchesExpired,
		FlowCallbacksTotal,
	)
}
