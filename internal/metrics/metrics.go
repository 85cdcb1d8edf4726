// Package metrics exposes optional Prometheus instrumentation for the
// client: buffer depth, disk usage, flush outcomes, and backoff state.
// Every method is nil-safe so call sites never need to branch on whether
// metrics were configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the client's Prometheus instruments, registered against
// its own Registry rather than the global default one so multiple Client
// instances in the same process (as in tests) never collide on duplicate
// registration.
type Collector struct {
	registry            *prometheus.Registry
	bufferSize          prometheus.Gauge
	diskBytes           prometheus.Gauge
	flushTotal          *prometheus.CounterVec
	consecutiveFailures prometheus.Gauge
	backoffSeconds      prometheus.Gauge
}

// New builds a Collector under the given namespace, registered on a fresh
// Registry retrievable via Registry().
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		bufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_size",
			Help:      "Number of sanitized events currently held in the in-memory buffer.",
		}),
		diskBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_bytes",
			Help:      "Size in bytes of the overflow file on disk.",
		}),
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_total",
			Help:      "Flush attempts by outcome (success, retryable, non_retryable).",
		}, []string{"outcome"}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current consecutive flush failure count.",
		}),
		backoffSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Length in seconds of the most recently started backoff window; reset to 0 on a successful flush.",
		}),
	}

	reg.MustRegister(c.bufferSize, c.diskBytes, c.flushTotal, c.consecutiveFailures, c.backoffSeconds)
	return c
}

// Registry exposes the collector's Registry for wiring into an HTTP
// /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveBufferSize(n int) {
	if c == nil {
		return
	}
	c.bufferSize.Set(float64(n))
}

func (c *Collector) ObserveDiskBytes(n int64) {
	if c == nil {
		return
	}
	c.diskBytes.Set(float64(n))
}

func (c *Collector) IncFlush(outcome string) {
	if c == nil {
		return
	}
	c.flushTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveConsecutiveFailures(n int) {
	if c == nil {
		return
	}
	c.consecutiveFailures.Set(float64(n))
}

func (c *Collector) ObserveBackoffSeconds(s float64) {
	if c == nil {
		return
	}
	c.backoffSeconds.Set(s)
}
