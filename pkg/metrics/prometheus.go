// Package metrics provides Prometheus metrics for the fusion service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         *prometheus.Registry

	// Fusion engine
	readingsProcessed  *prometheus.CounterVec
	detectionsIngested prometheus.Counter
	fusedTracksCreated prometheus.Counter
	fusedTracksRemoved prometheus.Counter
	fusedTracksLive    prometheus.Gauge
	fusionLatency      prometheus.Histogram
	threatLevel        prometheus.Gauge
	estimatorFailures  prometheus.Counter
	registeredSensors  prometheus.Gauge

	// Independent tracker
	trackerFrames    prometheus.Counter
	trackerConfirmed prometheus.Gauge
	trackerTotal     prometheus.Gauge
	trackerLatency   prometheus.Histogram

	// Outputs
	publishErrors *prometheus.CounterVec
	streamClients prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry a fresh registry is used,
// so default Go runtime collectors are not exported.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mot",
		subsystem:        "fusion",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		constLabels:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.readingsProcessed = auto.NewCounterVec(
		m.counterOpts("readings_processed_total", "Total number of sensor readings fused"),
		[]string{"sensor_type"},
	)
	m.detectionsIngested = auto.NewCounter(m.counterOpts("detections_ingested_total", "Total number of detections carried by fused readings"))
	m.fusedTracksCreated = auto.NewCounter(m.counterOpts("tracks_created_total", "Total number of fused tracks created"))
	m.fusedTracksRemoved = auto.NewCounter(m.counterOpts("tracks_removed_total", "Total number of fused tracks removed after exceeding max age"))
	m.fusedTracksLive = auto.NewGauge(m.gaugeOpts("tracks_live", "Current number of fused tracks"))
	m.fusionLatency = auto.NewHistogram(m.histogramOpts("update_latency_milliseconds", "Fusion engine update latency in milliseconds"))
	m.threatLevel = auto.NewGauge(m.gaugeOpts("threat_level", "Current threat level: 0 LOW, 1 MEDIUM, 2 HIGH, 3 CRITICAL"))
	m.estimatorFailures = auto.NewCounter(m.counterOpts("estimator_failures_total", "Total number of rejected state estimator updates"))
	m.registeredSensors = auto.NewGauge(m.gaugeOpts("sensors_registered", "Current number of registered sensors"))

	m.trackerFrames = auto.NewCounter(m.counterOpts("tracker_frames_total", "Total number of detection batches processed by the tracker"))
	m.trackerConfirmed = auto.NewGauge(m.gaugeOpts("tracker_tracks_confirmed", "Current number of confirmed tracker objects"))
	m.trackerTotal = auto.NewGauge(m.gaugeOpts("tracker_tracks_total", "Current number of tracker objects including tentative ones"))
	m.trackerLatency = auto.NewHistogram(m.histogramOpts("tracker_latency_milliseconds", "Tracker update latency in milliseconds"))

	m.publishErrors = auto.NewCounterVec(
		m.counterOpts("publish_errors_total", "Total number of failed snapshot publications"),
		[]string{"publisher"},
	)
	m.streamClients = auto.NewGauge(m.gaugeOpts("stream_clients", "Current number of connected stream clients"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordReading increments processed readings for the sensor type and counts its detections.
func (m *Manager) RecordReading(sensorType string, detections int) {
	m.readingsProcessed.WithLabelValues(sensorType).Inc()
	m.detectionsIngested.Add(float64(detections))
}

// RecordFusionCycle records track churn and latency of a single fusion update.
func (m *Manager) RecordFusionCycle(created, removed, live int, latency time.Duration) {
	m.fusedTracksCreated.Add(float64(created))
	m.fusedTracksRemoved.Add(float64(removed))
	m.fusedTracksLive.Set(float64(live))
	m.fusionLatency.Observe(float64(latency) / float64(time.Millisecond))
}

// SetThreatLevel sets the current threat level ordinal.
func (m *Manager) SetThreatLevel(ordinal int) {
	m.threatLevel.Set(float64(ordinal))
}

// RecordEstimatorFailure increments estimator failures counter.
func (m *Manager) RecordEstimatorFailure() {
	m.estimatorFailures.Inc()
}

// SetRegisteredSensors sets the number of registered sensors.
func (m *Manager) SetRegisteredSensors(count int) {
	m.registeredSensors.Set(float64(count))
}

// RecordTrackerFrame records a tracker update.
func (m *Manager) RecordTrackerFrame(confirmed, total int, latency time.Duration) {
	m.trackerFrames.Inc()
	m.trackerConfirmed.Set(float64(confirmed))
	m.trackerTotal.Set(float64(total))
	m.trackerLatency.Observe(float64(latency) / float64(time.Millisecond))
}

// RecordPublishError increments failed publications for the publisher.
func (m *Manager) RecordPublishError(publisher string) {
	m.publishErrors.WithLabelValues(publisher).Inc()
}

// SetStreamClients sets the number of connected stream clients.
func (m *Manager) SetStreamClients(count int) {
	m.streamClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, duration time.Duration) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(float64(duration) / float64(time.Millisecond))
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for the registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
