// Package metrics holds the Prometheus collectors of the bridge.
//
// Collectors are registered on a private registry, not the global default,
// so tests can build as many Metrics values as they need.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "videostream"

// Frame request results. ResultStream counts accepted MJPEG streams, which
// may end before any frame is sent.
const (
	ResultHit        = "hit"
	ResultMiss       = "miss"
	ResultStream     = "stream"
	ResultForbidden  = "forbidden"
	ResultBadRequest = "bad_request"
)

// Metrics groups the collectors of one process.
type Metrics struct {
	reg *prometheus.Registry

	WorkersStarted *prometheus.CounterVec
	WorkersStopped *prometheus.CounterVec
	WorkersActive  prometheus.Gauge

	FramesTotal prometheus.Counter
	FrameBytes  prometheus.Histogram

	FrameRequests *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	EventsDropped *prometheus.CounterVec
	EventClients  prometheus.Gauge
}

// New creates the collectors under namespace. An empty namespace uses
// DefaultNamespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		WorkersStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_started_total",
			Help:      "Streaming workers started",
		}, []string{"address"}),
		WorkersStopped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_stopped_total",
			Help:      "Streaming workers stopped, by outcome",
		}, []string{"outcome"}),
		WorkersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Streaming workers not yet stopped",
		}),

		FramesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from devices",
		}),
		FrameBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_size_bytes",
			Help:      "Size of frames read from devices",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 10),
		}),

		FrameRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_requests_total",
			Help:      "Frame endpoint requests, by result",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Worker events dropped because a sink queue was full",
		}, []string{"sink"}),
		EventClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_clients",
			Help:      "Connected WebSocket event clients",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveHTTP records one served request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveFrame records one frame read by a worker.
func (m *Metrics) ObserveFrame(size int) {
	m.FramesTotal.Inc()
	m.FrameBytes.Observe(float64(size))
}

// WorkerStarted records a new streaming worker.
func (m *Metrics) WorkerStarted(address string) {
	m.WorkersStarted.WithLabelValues(address).Inc()
	m.WorkersActive.Inc()
}

// WorkerStopped records a finished streaming worker.
func (m *Metrics) WorkerStopped(outcome string) {
	m.WorkersStopped.WithLabelValues(outcome).Inc()
	m.WorkersActive.Dec()
}
