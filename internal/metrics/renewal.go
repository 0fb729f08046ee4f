package metrics

import "github.com/prometheus/client_golang/prometheus"

// Renewal-specific metrics, registered once at process startup and updated
// by the orchestrator as renewals progress.
var (
	RenewalsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewd_renewals_started_total",
		Help: "Renewals started, by DNS provider.",
	}, []string{"dns_provider"})

	RenewalsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewd_renewals_finished_total",
		Help: "Renewals finished, by terminal state and DNS provider.",
	}, []string{"state", "dns_provider"})

	RenewalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "renewd_renewal_duration_seconds",
		Help:    "Wall-clock duration of a finished renewal, by terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"state"})

	RenewalsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renewd_renewals_in_flight",
		Help: "Renewals currently running.",
	})
)

// RegisterRenewalMetrics registers the renewal counters, histogram, and
// gauge with the default Prometheus registry.
func RegisterRenewalMetrics() {
	prometheus.MustRegister(RenewalsStarted, RenewalsFinished, RenewalDuration, RenewalsInFlight)
}
