// Package monitoring exposes fleet-level metrics through a lightweight
// custom registry (kept for compatibility with the exposition format
// expected by older scrapers). A second Sink backed by a
// prometheus/client_golang registry is available via NewPrometheusSink;
// fleetd's wiring serves the custom sink, and no config option switches
// between the two.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// Metric is a single named series in the custom registry.
type Metric struct {
	Name         string
	Type         MetricType
	Help         string
	Labels       map[string]string
	Buckets      []float64
	mu           sync.RWMutex
	value        float64
	observations []float64
}

// Registry is a minimal metrics registry, kept for deployments that scrape
// the plain-text exposition format directly rather than through the
// prometheus client library.
type Registry struct {
	metrics sync.Map
}

var globalRegistry = &Registry{}

// GetRegistry returns the process-wide custom registry.
func GetRegistry() *Registry { return globalRegistry }

func metricKey(name string, labels map[string]string) string {
	key := name
	for k, v := range labels {
		key += fmt.Sprintf("_%s_%s", k, v)
	}
	return key
}

func (r *Registry) Counter(name, help string, labels map[string]string) *Metric {
	return r.getOrCreate(name, help, Counter, labels, nil)
}

func (r *Registry) Gauge(name, help string, labels map[string]string) *Metric {
	return r.getOrCreate(name, help, Gauge, labels, nil)
}

func (r *Registry) Histogram(name, help string, labels map[string]string, buckets []float64) *Metric {
	if buckets == nil {
		buckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	}
	return r.getOrCreate(name, help, Histogram, labels, buckets)
}

func (r *Registry) getOrCreate(name, help string, typ MetricType, labels map[string]string, buckets []float64) *Metric {
	key := metricKey(name, labels)
	if val, ok := r.metrics.Load(key); ok {
		return val.(*Metric)
	}
	m := &Metric{Name: name, Type: typ, Help: help, Labels: labels, Buckets: buckets}
	actual, _ := r.metrics.LoadOrStore(key, m)
	return actual.(*Metric)
}

func (m *Metric) Inc() { m.Add(1) }

func (m *Metric) Add(v float64) {
	if m.Type != Counter {
		return
	}
	m.mu.Lock()
	m.value += v
	m.mu.Unlock()
}

func (m *Metric) Set(v float64) {
	if m.Type != Gauge {
		return
	}
	m.mu.Lock()
	m.value = v
	m.mu.Unlock()
}

func (m *Metric) Observe(v float64) {
	if m.Type != Histogram {
		return
	}
	m.mu.Lock()
	m.observations = append(m.observations, v)
	if len(m.observations) > 1000 {
		m.observations = m.observations[len(m.observations)-1000:]
	}
	m.mu.Unlock()
}

// Timer returns a function that records elapsed milliseconds into a
// histogram when called, typically via defer.
func (m *Metric) Timer() func() {
	start := time.Now()
	return func() {
		m.Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (m *Metric) Get() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// FleetMetrics names the series a fleet service is expected to publish:
// browser pool utilization, action dispatch latency/errors, session store
// health, and rate-limiter rejections.
type FleetMetrics struct {
	PoolSize            *Metric
	PoolActive          *Metric
	PoolUtilization     *Metric
	PoolAcquisitionTime *Metric
	PoolRecycles        *Metric

	ActionsTotal    *Metric
	ActionDuration  *Metric
	ActionErrors    *Metric
	ActionValidationErrors *Metric

	SessionsActive   *Metric
	SessionsExpired  *Metric
	ReplicaDegraded  *Metric

	RateLimitRejections *Metric

	MemoryUsage    *Metric
	GoroutineCount *Metric
}

// NewFleetMetrics registers the fleet series against the custom registry.
func NewFleetMetrics() *FleetMetrics {
	r := GetRegistry()
	return &FleetMetrics{
		PoolSize:            r.Gauge("pool_size_total", "Total pool slots configured", nil),
		PoolActive:          r.Gauge("pool_active_total", "Instances currently leased", nil),
		PoolUtilization:     r.Gauge("pool_utilization_ratio", "Active / size", nil),
		PoolAcquisitionTime: r.Histogram("pool_acquisition_duration_milliseconds", "Time to acquire a lease", nil, nil),
		PoolRecycles:        r.Counter("pool_recycles_total", "Instances recycled", nil),

		ActionsTotal:           r.Counter("actions_dispatched_total", "Actions dispatched", nil),
		ActionDuration:         r.Histogram("action_duration_milliseconds", "Action dispatch duration", nil, []float64{10, 50, 100, 250, 500, 1000, 5000, 30000}),
		ActionErrors:           r.Counter("action_errors_total", "Actions that failed during dispatch", nil),
		ActionValidationErrors: r.Counter("action_validation_errors_total", "Actions rejected before dispatch", nil),

		SessionsActive:  r.Gauge("sessions_active_total", "Live sessions", nil),
		SessionsExpired: r.Counter("sessions_expired_total", "Sessions swept for expiry", nil),
		ReplicaDegraded: r.Gauge("sessionstore_replicas_degraded_total", "Replicas currently marked degraded", nil),

		RateLimitRejections: r.Counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", nil),

		MemoryUsage:    r.Gauge("memory_usage_bytes", "Resident heap bytes", nil),
		GoroutineCount: r.Gauge("goroutine_count_total", "Live goroutines", nil),
	}
}

// SystemCollector periodically samples runtime stats into the gauges.
type SystemCollector struct {
	metrics *FleetMetrics
}

func NewSystemCollector(m *FleetMetrics) *SystemCollector {
	return &SystemCollector{metrics: m}
}

func (c *SystemCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *SystemCollector) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.metrics.MemoryUsage.Set(float64(mem.Alloc))
	c.metrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// Sink abstracts which exposition format backs /metrics.
type Sink interface {
	Handler() http.Handler
}

// customSink serves the registry's own plain-text exposition format.
type customSink struct{}

func (customSink) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		globalRegistry.metrics.Range(func(_, v interface{}) bool {
			writeMetric(w, v.(*Metric))
			return true
		})
	})
}

func writeMetric(w http.ResponseWriter, m *Metric) {
	fmt.Fprintf(w, "# HELP %s %s\n", m.Name, m.Help)
	fmt.Fprintf(w, "# TYPE %s %s\n", m.Name, string(m.Type))
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.Type {
	case Counter, Gauge:
		fmt.Fprintf(w, "%s%s %g\n", m.Name, formatLabels(m.Labels), m.value)
	case Histogram:
		counts := make(map[float64]int, len(m.Buckets))
		var total int
		var sum float64
		for _, o := range m.observations {
			total++
			sum += o
			for _, b := range m.Buckets {
				if o <= b {
					counts[b]++
				}
			}
		}
		for _, b := range m.Buckets {
			fmt.Fprintf(w, "%s_bucket%s %d\n", m.Name, formatLabelsWithBucket(m.Labels, fmt.Sprintf("%v", b)), counts[b])
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", m.Name, formatLabelsWithBucket(m.Labels, "+Inf"), total)
		fmt.Fprintf(w, "%s_sum%s %g\n", m.Name, formatLabels(m.Labels), sum)
		fmt.Fprintf(w, "%s_count%s %d\n", m.Name, formatLabels(m.Labels), total)
	}
	fmt.Fprintln(w)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	out := "{"
	first := true
	for k, v := range labels {
		if !first {
			out += ","
		}
		out += fmt.Sprintf(`%s="%s"`, k, v)
		first = false
	}
	return out + "}"
}

func formatLabelsWithBucket(labels map[string]string, le string) string {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged["le"] = le
	return formatLabels(merged)
}

// promSink serves metrics registered with a real prometheus.Registerer,
// as an alternative to the custom registry.
type promSink struct {
	gatherer prometheus.Gatherer
}

// NewPrometheusSink wraps a prometheus.Registry (typically
// prometheus.NewRegistry() plus a handful of registered collectors) as a
// Sink.
func NewPrometheusSink(reg *prometheus.Registry) Sink {
	return promSink{gatherer: reg}
}

func (s promSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// NewCustomSink exposes the package-global custom registry as a Sink.
func NewCustomSink() Sink { return customSink{} }
