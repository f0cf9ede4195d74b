// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/pkg/models"
)

// Collector counts ingestion outcomes on a private registry. It implements
// recorder.Observer.
type Collector struct {
	registry         *prometheus.Registry
	suitesIngested   *prometheus.CounterVec
	resultsRecorded  *prometheus.CounterVec
	flakyDetected    prometheus.Counter
	recordingFailure prometheus.Counter
	recordDuration   prometheus.Histogram
}

var _ recorder.Observer = (*Collector)(nil)

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		suitesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "testintel_suites_ingested_total", Help: "Suites recorded successfully"},
			[]string{"framework"},
		),
		resultsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "testintel_results_recorded_total", Help: "Test results folded into test entities"},
			[]string{"status"},
		),
		flakyDetected: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "testintel_flaky_tests_detected_total", Help: "Flaky tests reported by batch analysis"},
		),
		recordingFailure: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "testintel_recording_failures_total", Help: "Suites whose recording failed"},
		),
		recordDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testintel_record_duration_seconds",
			Help:    "Time spent recording one suite",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(c.suitesIngested, c.resultsRecorded, c.flakyDetected, c.recordingFailure, c.recordDuration)
	return c
}

// SuiteIngested implements recorder.Observer.
func (c *Collector) SuiteIngested(framework string) {
	c.suitesIngested.WithLabelValues(framework).Inc()
}

// ResultRecorded implements recorder.Observer.
func (c *Collector) ResultRecorded(status models.TestStatus) {
	c.resultsRecorded.WithLabelValues(string(status)).Inc()
}

// FlakyTestsDetected implements recorder.Observer.
func (c *Collector) FlakyTestsDetected(count int) {
	c.flakyDetected.Add(float64(count))
}

// RecordingFailed implements recorder.Observer.
func (c *Collector) RecordingFailed() {
	c.recordingFailure.Inc()
}

// RecordDuration implements recorder.Observer.
func (c *Collector) RecordDuration(d time.Duration) {
	c.recordDuration.Observe(d.Seconds())
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
