// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// AuthEvents counts account operations by outcome, e.g.
	// {operation="login", outcome="ACCOUNT_LOCKED"}.
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artelie_auth_events_total",
			Help: "Account and session operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	MailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artelie_mail_deliveries_total",
			Help: "Outbound email attempts by kind and result.",
		},
		[]string{"kind", "result"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artelie_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(RequestCount, RequestDuration, AuthEvents, MailDeliveries, RateLimited)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveMail is a mail.Dispatcher OnSent hook.
func ObserveMail(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	MailDeliveries.WithLabelValues(kind, result).Inc()
}
