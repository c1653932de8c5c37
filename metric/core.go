package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics shared by every analytic
type Metrics struct {
	RecordsReceived    *prometheus.CounterVec
	RecordsProcessed   *prometheus.CounterVec
	RecordsPublished   *prometheus.CounterVec
	AnomaliesEmitted   *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	AnalyticsRunning   prometheus.Gauge

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "records",
				Name:      "received_total",
				Help:      "Total number of data records received",
			},
			[]string{"analytic", "channel"},
		),

		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "records",
				Name:      "processed_total",
				Help:      "Total number of data records processed",
			},
			[]string{"analytic", "status"},
		),

		RecordsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "records",
				Name:      "published_total",
				Help:      "Total number of data records published",
			},
			[]string{"analytic", "channel"},
		),

		AnomaliesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "records",
				Name:      "anomalies_total",
				Help:      "Total number of anomaly records emitted",
			},
			[]string{"analytic"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "streamlytics",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Record processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"analytic"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		AnalyticsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamlytics",
				Subsystem: "analytics",
				Name:      "running",
				Help:      "Number of analytic instances currently started",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamlytics",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamlytics",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "streamlytics",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnects",
			},
		),
	}
}

// RecordError increments the error counter
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates the NATS connection status gauge
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSRTT updates the NATS round-trip time gauge
func (m *Metrics) RecordNATSRTT(rtt time.Duration) {
	m.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments the reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
