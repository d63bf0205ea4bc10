package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for phishsim
type Metrics struct {
	// Tracking pipeline
	EventsTotal        *prometheus.CounterVec
	ExpiredHitsTotal   *prometheus.CounterVec
	UnknownTokensTotal prometheus.Counter

	// Dispatch engine
	MessagesSentTotal   prometheus.Counter
	MessagesFailedTotal prometheus.Counter

	// Lifecycle
	CampaignsPublishedTotal prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter

	// HTTP
	RequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishsim_events_total",
				Help: "Total number of recorded tracking events",
			},
			[]string{"type"},
		),
		ExpiredHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishsim_expired_hits_total",
				Help: "Total number of tracking hits against expired campaigns",
			},
			[]string{"type"},
		),
		UnknownTokensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishsim_unknown_tokens_total",
				Help: "Total number of tracking hits with unresolvable tokens",
			},
		),
		MessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishsim_messages_sent_total",
				Help: "Total number of simulation messages handed to the transport",
			},
		),
		MessagesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishsim_messages_failed_total",
				Help: "Total number of transport failures during dispatch",
			},
		),
		CampaignsPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishsim_campaigns_published_total",
				Help: "Total number of campaigns published",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishsim_campaigns_completed_total",
				Help: "Total number of campaigns completed by the expiry sweep",
			},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phishsim_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EventsTotal,
		m.ExpiredHitsTotal,
		m.UnknownTokensTotal,
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.CampaignsPublishedTotal,
		m.CampaignsCompletedTotal,
		m.RequestDurationSeconds,
	)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
