package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BridgeMetrics struct {
	registry *prometheus.Registry
	service  string

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	busyRetries      prometheus.Counter
	liveCallsTotal   *prometheus.CounterVec
	liveCallDuration *prometheus.HistogramVec
}

func NewBridgeMetrics(service string) *BridgeMetrics {
	registry := prometheus.NewRegistry()

	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cadbridge",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total handled protocol requests by action and outcome.",
		},
		[]string{"service", "action", "outcome"},
	)
	dispatchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cadbridge",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Protocol request duration in seconds by action.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "action"},
	)
	busyRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cadbridge",
			Subsystem: "admission",
			Name:      "busy_retries_total",
			Help:      "Total rejected outgoing calls answered with a retry delay.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	liveCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cadbridge",
			Subsystem: "live",
			Name:      "calls_total",
			Help:      "Total live application calls by operation and classified outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	liveCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cadbridge",
			Subsystem: "live",
			Name:      "call_duration_seconds",
			Help:      "Live call duration in seconds including gate wait and retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(dispatchTotal, dispatchDuration, busyRetries, liveCallsTotal, liveCallDuration)

	return &BridgeMetrics{
		registry:         registry,
		service:          service,
		dispatchTotal:    dispatchTotal,
		dispatchDuration: dispatchDuration,
		busyRetries:      busyRetries,
		liveCallsTotal:   liveCallsTotal,
		liveCallDuration: liveCallDuration,
	}
}

func (m *BridgeMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDispatch records one handled protocol request.
func (m *BridgeMetrics) ObserveDispatch(action, outcome string, elapsed time.Duration) {
	m.dispatchTotal.WithLabelValues(m.service, action, outcome).Inc()
	m.dispatchDuration.WithLabelValues(m.service, action).Observe(elapsed.Seconds())
}

// RecordBusyRetry counts one busy rejection answered with a wait.
func (m *BridgeMetrics) RecordBusyRetry() {
	m.busyRetries.Inc()
}

// ObserveLiveCall records one completed live application call. The outcome
// is the classified error kind, "success" for a clean return.
func (m *BridgeMetrics) ObserveLiveCall(operation, outcome string, elapsed time.Duration) {
	m.liveCallsTotal.WithLabelValues(m.service, operation, outcome).Inc()
	m.liveCallDuration.WithLabelValues(m.service, operation).Observe(elapsed.Seconds())
}

// TrackEngine registers sampling collectors over the metadata engine's
// session bookkeeping. Nil callbacks skip their collector.
func (m *BridgeMetrics) TrackEngine(openSessions func() float64, handleReleases func() float64) {
	if openSessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "cadbridge",
				Subsystem: "engine",
				Name:      "open_sessions",
				Help:      "Currently open metadata engine document sessions.",
				ConstLabels: prometheus.Labels{
					"service": m.service,
				},
			},
			openSessions,
		))
	}
	if handleReleases != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "cadbridge",
				Subsystem: "engine",
				Name:      "handle_releases_total",
				Help:      "Total full handle release rounds.",
				ConstLabels: prometheus.Labels{
					"service": m.service,
				},
			},
			handleReleases,
		))
	}
}
