package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadforge"

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route pattern and status code",
		},
		[]string{"method", "route", "code"},
	)

	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	campaignEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_emails_total",
			Help:      "Campaign emails dispatched, by result",
		},
		[]string{"result"},
	)

	campaignRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_runs_total",
			Help:      "Campaign runs finished, by final status",
		},
		[]string{"status"},
	)

	emailEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_events_total",
			Help:      "Delivery and engagement events ingested",
		},
		[]string{"event", "outcome"},
	)

	emailRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_retries_total",
			Help:      "Retry attempts on failed sends, by result",
		},
		[]string{"result"},
	)

	leadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_status_transitions_total",
			Help:      "Lead status changes applied by the rule engine",
		},
		[]string{"to"},
	)
)

// TrackInFlight bumps the in-flight gauge and returns its release.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

func ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordCampaignEmail(result string) {
	campaignEmails.WithLabelValues(result).Inc()
}

func RecordCampaignRun(status string) {
	campaignRuns.WithLabelValues(status).Inc()
}

func RecordEmailEvent(event, outcome string) {
	emailEvents.WithLabelValues(event, outcome).Inc()
}

func RecordRetry(result string) {
	emailRetries.WithLabelValues(result).Inc()
}

func RecordLeadTransition(to string) {
	leadTransitions.WithLabelValues(to).Inc()
}
