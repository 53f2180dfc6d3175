package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Registry *prometheus.Registry

	// Run metrics
	ActiveRuns   prometheus.Gauge
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	SourceLength prometheus.Histogram

	// Sample metrics
	SamplesPlanned prometheus.Counter
	SamplesDecoded prometheus.Counter
	SamplesFailed  *prometheus.CounterVec
	DecodeDuration prometheus.Histogram

	// Output metrics
	SheetsWritten prometheus.Counter
	BytesWritten  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics on a private registry so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,

		// Run metrics
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rapidsprite_active_runs",
			Help: "Number of preview generations in progress",
		}),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidsprite_runs_total",
				Help: "Total number of finished preview generations",
			},
			[]string{"result"}, // ok, partial, failed
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapidsprite_run_duration_seconds",
			Help:    "Wall time of one preview generation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}),
		SourceLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapidsprite_source_duration_seconds",
			Help:    "Duration of probed sources",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~11h
		}),

		// Sample metrics
		SamplesPlanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidsprite_samples_planned_total",
			Help: "Total number of samples scheduled",
		}),
		SamplesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidsprite_samples_decoded_total",
			Help: "Total number of samples decoded and packed",
		}),
		SamplesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidsprite_samples_failed_total",
				Help: "Total number of samples left blank",
			},
			[]string{"reason"}, // decode, pack
		),
		DecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapidsprite_decode_duration_seconds",
			Help:    "Duration of one decode_at call",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),

		// Output metrics
		SheetsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidsprite_sheets_written_total",
			Help: "Total number of sprite sheets written",
		}),
		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidsprite_bytes_written_total",
				Help: "Total bytes written to storage",
			},
			[]string{"kind"}, // sheet, cue, metadata
		),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidsprite_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rapidsprite_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// RecordRunStart records a generation starting
func (m *Metrics) RecordRunStart() {
	m.ActiveRuns.Inc()
}

// RecordRunStop records a generation finishing. result is ok, partial or failed.
func (m *Metrics) RecordRunStop(result string, durationSeconds float64) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordProbe records a probed source
func (m *Metrics) RecordProbe(durationSeconds float64, samples int) {
	m.SourceLength.Observe(durationSeconds)
	m.SamplesPlanned.Add(float64(samples))
}

// RecordDecode records a successful sample
func (m *Metrics) RecordDecode(durationSeconds float64) {
	m.SamplesDecoded.Inc()
	m.DecodeDuration.Observe(durationSeconds)
}

// RecordSampleFailed records a sample left blank
func (m *Metrics) RecordSampleFailed(reason string) {
	m.SamplesFailed.WithLabelValues(reason).Inc()
}

// RecordWrite records an artifact written to storage
func (m *Metrics) RecordWrite(kind string, size int) {
	if kind == "sheet" {
		m.SheetsWritten.Inc()
	}
	m.BytesWritten.WithLabelValues(kind).Add(float64(size))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, m.statusCodeToString(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// statusCodeToString converts an HTTP status code to a string
func (m *Metrics) statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
