// Package metrics exposes Prometheus counters for the capture loop, the scan
// session and exports.
//
// Metrics:
//   - qrscan_capture_frames_total: frames by result (decoded, unreadable, skipped)
//   - qrscan_capture_active: 1 while a camera is open
//   - qrscan_capture_failures_total: camera start or stream failures
//   - qrscan_scans_total: handled values by result (new, duplicate, failed)
//   - qrscan_history_records: records in the history
//   - qrscan_exports_total: exports by format and status
//   - qrscan_export_duration_seconds: export latency by format
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yiblet/qrscan/internal/session"
)

// Namespace prefixes every metric.
const Namespace = "qrscan"

// Collector owns a registry and every metric. It implements
// capture.Observer and session.Observer.
type Collector struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	captureActive   prometheus.Gauge
	captureFailures prometheus.Counter

	scans   *prometheus.CounterVec
	records prometheus.Gauge

	exports        *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
}

// NewCollector creates a collector. A nil registry gets a fresh one with the
// Go and process collectors registered.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,

		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "capture",
				Name:      "frames_total",
				Help:      "Frames seen by the decode loop, by result",
			},
			[]string{"result"},
		),
		captureActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "capture",
				Name:      "active",
				Help:      "1 while a camera is open",
			},
		),
		captureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "capture",
				Name:      "failures_total",
				Help:      "Camera start or stream failures",
			},
		),

		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "scans_total",
				Help:      "Decoded values handled by the session, by result",
			},
			[]string{"result"},
		),
		records: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "history_records",
				Help:      "Records in the scan history",
			},
		),

		exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "exports_total",
				Help:      "Exports by format and status",
			},
			[]string{"format", "status"},
		),
		exportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "export_duration_seconds",
				Help:      "Time spent writing an export",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"format"},
		),
	}

	registry.MustRegister(
		c.frames,
		c.captureActive,
		c.captureFailures,
		c.scans,
		c.records,
		c.exports,
		c.exportDuration,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// FrameSkipped implements capture.Observer.
func (c *Collector) FrameSkipped() {
	c.frames.WithLabelValues("skipped").Inc()
}

// FrameDecoded implements capture.Observer.
func (c *Collector) FrameDecoded(ok bool) {
	if ok {
		c.frames.WithLabelValues("decoded").Inc()
		return
	}
	c.frames.WithLabelValues("unreadable").Inc()
}

// ScanHandled implements session.Observer.
func (c *Collector) ScanHandled(r session.Result) {
	c.scans.WithLabelValues(string(r)).Inc()
}

// SetHistorySize sets the record gauge.
func (c *Collector) SetHistorySize(n int) {
	c.records.Set(float64(n))
}

// HandleEvent updates gauges from session events. Pass it to
// session.Options.OnEvent, directly or from a wrapping handler.
func (c *Collector) HandleEvent(ev session.Event) {
	switch ev.Kind {
	case session.RecordAdded:
		c.records.Inc()
	case session.Cleared:
		c.records.Set(0)
	case session.StatusChanged:
		if ev.Status == session.StatusActive {
			c.captureActive.Set(1)
		} else {
			c.captureActive.Set(0)
		}
	case session.CaptureFailed:
		c.captureFailures.Inc()
	}
}

// RecordExport counts one export.
func (c *Collector) RecordExport(format string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.exports.WithLabelValues(format, status).Inc()
	c.exportDuration.WithLabelValues(format).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
