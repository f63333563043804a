// Package metrics defines the Prometheus collectors of the service. They are
// registered on the default registry at init and served by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pisure_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pisure_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	ModerationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pisure_moderation_transitions_total",
			Help: "Moderation state transitions by kind and outcome",
		},
		[]string{"transition", "outcome"},
	)

	DownloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pisure_downloads_total",
			Help: "Successful asset downloads",
		},
	)

	OrphanBlobs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pisure_orphan_blobs_total",
			Help: "Blobs left behind after a failed upload could not be cleaned up",
		},
	)

	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pisure_session_events_total",
			Help: "Sign-in and sign-out notifications",
		},
		[]string{"kind"},
	)

	EventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pisure_event_publish_failures_total",
			Help: "Moderation events that could not be published",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ModerationTransitions,
		DownloadsTotal,
		OrphanBlobs,
		SessionEvents,
		EventPublishFailures,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one finished HTTP request.
func RecordRequest(route, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(route, method, status).Inc()
	RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordTransition counts a moderation operation. outcome is "ok" or an
// error kind such as "not_found".
func RecordTransition(transition, outcome string) {
	ModerationTransitions.WithLabelValues(transition, outcome).Inc()
}
