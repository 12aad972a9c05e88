// Package metrics holds the Prometheus collectors for screening and the
// reputation backend. Record helpers are no-ops until Init is called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callshield"

var (
	metricsOnce sync.Once

	screeningDecisionsTotal *prometheus.CounterVec
	screeningDuration       prometheus.Histogram
	screeningFailOpenTotal  *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	remoteLookupErrors *prometheus.CounterVec
	httpClientErrors   *prometheus.CounterVec
	seedUpdatesTotal   *prometheus.CounterVec

	reportsTotal        *prometheus.CounterVec
	correctionsTotal    prometheus.Counter
	quarantinesTotal    prometheus.Counter
	hardeningFlagsTotal *prometheus.CounterVec
	hardeningDampened   prometheus.Counter
	rateLimitedTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	metricsOnce.Do(func() {
		screeningDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "screening_decisions_total",
				Help:      "Call screening decisions by source and outcome",
			},
			[]string{"source", "outcome"},
		)

		screeningDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "screening_duration_seconds",
				Help:      "Time to reach a screening decision",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.4, 2.0},
			},
		)

		screeningFailOpenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "screening_fail_open_total",
				Help:      "Screenings that fell back to allow, by reason",
			},
			[]string{"reason"},
		)

		breakerState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		)

		remoteLookupErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_lookup_errors_total",
				Help:      "Remote reputation lookups absorbed as not found, by kind",
			},
			[]string{"kind"},
		)

		httpClientErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_client_errors_total",
				Help:      "Outbound HTTP errors by client and error type",
			},
			[]string{"client", "error_type"},
		)

		seedUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_updates_total",
				Help:      "Seed dataset update attempts by result",
			},
			[]string{"result"},
		)

		reportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Spam reports ingested, by whether the reporter was new",
			},
			[]string{"new_reporter"},
		)

		correctionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corrections_total",
				Help:      "Not-spam corrections applied",
			},
		)

		quarantinesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quarantines_total",
				Help:      "Reports that triggered a velocity quarantine",
			},
		)

		hardeningFlagsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hardening_flags_total",
				Help:      "Reputation flags raised by the hardening pass",
			},
			[]string{"reason"},
		)

		hardeningDampened = promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hardening_dampened_total",
				Help:      "Numbers dampened by the hardening pass",
			},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by rate limiting, by operation",
			},
			[]string{"operation"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		)
	})
}

func RecordDecision(source, outcome string) {
	if screeningDecisionsTotal != nil {
		screeningDecisionsTotal.WithLabelValues(source, outcome).Inc()
	}
}

func ObserveScreening(d time.Duration) {
	if screeningDuration != nil {
		screeningDuration.Observe(d.Seconds())
	}
}

// RecordFailOpen reason: "deadline", "error", "panic"
func RecordFailOpen(reason string) {
	if screeningFailOpenTotal != nil {
		screeningFailOpenTotal.WithLabelValues(reason).Inc()
	}
}

func SetBreakerState(name string, state int) {
	if breakerState != nil {
		breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// RecordRemoteLookupError kind: "circuit_open", "rate_limited", "timeout", "error"
func RecordRemoteLookupError(kind string) {
	if remoteLookupErrors != nil {
		remoteLookupErrors.WithLabelValues(kind).Inc()
	}
}

// RecordHTTPClientError errorType: "connection", "auth", "rate_limit", "server_error", "http_error", "circuit_open"
func RecordHTTPClientError(client, errorType string) {
	if httpClientErrors != nil {
		httpClientErrors.WithLabelValues(client, errorType).Inc()
	}
}

// RecordSeedUpdate result: "updated", "up_to_date", "checksum_mismatch", "failed"
func RecordSeedUpdate(result string) {
	if seedUpdatesTotal != nil {
		seedUpdatesTotal.WithLabelValues(result).Inc()
	}
}

func RecordReport(newReporter, quarantined bool) {
	if reportsTotal != nil {
		label := "false"
		if newReporter {
			label = "true"
		}
		reportsTotal.WithLabelValues(label).Inc()
	}
	if quarantined && quarantinesTotal != nil {
		quarantinesTotal.Inc()
	}
}

func RecordCorrection() {
	if correctionsTotal != nil {
		correctionsTotal.Inc()
	}
}

func RecordHardening(flagged map[string]int, dampened int) {
	if hardeningFlagsTotal != nil {
		for reason, n := range flagged {
			hardeningFlagsTotal.WithLabelValues(reason).Add(float64(n))
		}
	}
	if hardeningDampened != nil {
		hardeningDampened.Add(float64(dampened))
	}
}

func RecordRateLimited(operation string) {
	if rateLimitedTotal != nil {
		rateLimitedTotal.WithLabelValues(operation).Inc()
	}
}

func ObserveHTTPRequest(route, method, status string, d time.Duration) {
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
	}
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.start)
}
