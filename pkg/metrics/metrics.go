package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BuildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crm_build_info",
		Help: "Version of the running service, always 1",
	}, []string{"version", "environment"})

	SchedulerEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crm_scheduler_enabled",
		Help: "1 when the in-process dispatch scheduler runs",
	})

	JobQueuePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crm_job_queue_pending",
		Help: "Jobs waiting in the redis job queue",
	})
)

func init() {
	prometheus.MustRegister(BuildInfo, SchedulerEnabled, JobQueuePending)
}

// Init records static process labels.
func Init(version, environment string, schedulerEnabled bool) {
	BuildInfo.WithLabelValues(version, environment).Set(1)
	if schedulerEnabled {
		SchedulerEnabled.Set(1)
	} else {
		SchedulerEnabled.Set(0)
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
