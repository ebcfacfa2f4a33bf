// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cycles_total",
		Help: "Poll cycles by result (ok, store_error, network_outage, panic)",
	}, []string{"result"})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_cycle_duration_seconds",
		Help:    "Duration of one poll cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	FetchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_fetch_outcomes_total",
		Help: "Fetch results by outcome",
	}, []string{"outcome"})
	PostsAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_posts_admitted_total",
		Help: "Posts that passed the cursor gate",
	})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deliveries_total",
		Help: "Webhook deliveries by kind and status",
	}, []string{"kind", "status"})
	DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_delivery_duration_seconds",
		Help:    "Webhook round-trip time",
		Buckets: prometheus.DefBuckets,
	})
	SubscriptionsDisabled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_subscriptions_disabled_total",
		Help: "Subscriptions disabled by reason",
	}, []string{"reason"})
	ProbeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_network_probe_failures_total",
		Help: "Failed network health probes",
	})
	CredentialBudgetDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_credential_budget_denied_total",
		Help: "Fetches skipped because a credential ran out of hourly budget",
	}, []string{"credential"})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleDuration, FetchOutcomes, PostsAdmitted,
		Deliveries, DeliveryDuration, SubscriptionsDisabled,
		ProbeFailures, CredentialBudgetDenied,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records a finished cycle.
func ObserveCycle(start time.Time, result string) {
	CycleDuration.Observe(time.Since(start).Seconds())
	CyclesTotal.WithLabelValues(result).Inc()
}

// ObserveDelivery records one webhook attempt.
func ObserveDelivery(kind, status string, elapsed time.Duration) {
	Deliveries.WithLabelValues(kind, status).Inc()
	DeliveryDuration.Observe(elapsed.Seconds())
}
