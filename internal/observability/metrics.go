// Package observability holds the API-side Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "salestrack",
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity record written to storage.",
	})
	targetsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "salestrack",
		Subsystem: "persistence",
		Name:      "targets_created_total",
		Help:      "Monthly targets inserted by get-or-create or upsert.",
	})
	summaryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "salestrack",
		Name:      "summary_duration_seconds",
		Help:      "Time spent gathering inputs and computing a summary.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
	summaryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salestrack",
		Name:      "summary_failures_total",
		Help:      "Summary requests that failed because a store read failed.",
	}, []string{"kind"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salestrack",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status class.",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(recordPersistGauge, targetsCreated, summaryDuration, summaryFailures, httpRequests)
}

// RecordPersisted updates the persistence watermark gauge.
func RecordPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordPersistGauge.Set(float64(ts.Unix()))
}

// TargetCreated counts a newly inserted monthly target.
func TargetCreated() {
	targetsCreated.Inc()
}

// ObserveSummary records the duration of a summary computation of the given kind
// ("monthly" or "daily") and counts it as failed when err is non-nil.
func ObserveSummary(kind string, started time.Time, err error) {
	summaryDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	if err != nil {
		summaryFailures.WithLabelValues(kind).Inc()
	}
}

// CountRequest records a finished HTTP request.
func CountRequest(route string, status int) {
	httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
