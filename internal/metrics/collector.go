// Package metrics keeps process-wide counters for the bot server and renders
// them in Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry served on the metrics endpoint.
var Collector = NewMetricsCollector()

// MetricsCollector holds metric families keyed by name. Each family has one
// series per label set.
type MetricsCollector struct {
	mu        sync.Mutex
	families  map[string]*family
	startTime time.Time
}

type family struct {
	name, help, kind string
	series           map[string]series // label string -> series
}

type series interface {
	write(sb *strings.Builder, name, labels string)
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{families: make(map[string]*family), startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct{ value atomic.Int64 }

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) write(sb *strings.Builder, name, labels string) {
	fmt.Fprintf(sb, "%s%s %d\n", name, braced(labels), c.Value())
}

// Gauge is a value that can go up and down.
type Gauge struct{ value atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) write(sb *strings.Builder, name, labels string) {
	fmt.Fprintf(sb, "%s%s %d\n", name, braced(labels), g.Value())
}

// Histogram counts observations into cumulative upper-bound buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(sb *strings.Builder, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := ""
	if labels != "" {
		prefix = labels + ","
	}
	for i, le := range h.bounds {
		if math.IsInf(le, 1) {
			continue
		}
		fmt.Fprintf(sb, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, le, h.counts[i])
	}
	fmt.Fprintf(sb, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, h.count)
	fmt.Fprintf(sb, "%s_count%s %d\n", name, braced(labels), h.count)
	fmt.Fprintf(sb, "%s_sum%s %f\n", name, braced(labels), h.sum)
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// lookup returns the series for name and labels, creating the family and the
// series with create when missing.
func (c *MetricsCollector) lookup(name, help, kind, labels string, create func() series) series {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: kind, series: make(map[string]series)}
		c.families[name] = f
	}
	s, ok := f.series[labels]
	if !ok {
		s = create()
		f.series[labels] = s
	}
	return s
}

// Counter returns or creates the counter series name{labels}.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	return c.lookup(name, help, "counter", labels, func() series { return &Counter{} }).(*Counter)
}

// Gauge returns or creates the gauge series name{labels}.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	return c.lookup(name, help, "gauge", labels, func() series { return &Gauge{} }).(*Gauge)
}

// Histogram returns or creates the histogram series name{labels}. buckets is
// only used on creation and is not retained.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return c.lookup(name, help, "histogram", labels, func() series {
		bounds := append([]float64(nil), buckets...)
		sort.Float64s(bounds)
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// Handler renders all families in Prometheus text format, sorted by name and
// label set.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP echobot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE echobot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "echobot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

		c.mu.Lock()
		names := make([]string, 0, len(c.families))
		for name := range c.families {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f := c.families[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
			labelSets := make([]string, 0, len(f.series))
			for l := range f.series {
				labelSets = append(labelSets, l)
			}
			sort.Strings(labelSets)
			for _, l := range labelSets {
				f.series[l].write(&sb, f.name, l)
			}
		}
		c.mu.Unlock()

		fmt.Fprint(w, sb.String())
	}
}

var latencyBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

var (
	QueriesTotal    = Collector.Counter("echobot_queries_total", "Total query requests received", "")
	SettingsTotal   = Collector.Counter("echobot_settings_total", "Total settings requests received", "")
	ReportsTotal    = Collector.Counter("echobot_reports_total", "Total feedback and error reports received", "")
	AuthFailures    = Collector.Counter("echobot_auth_failures_total", "Requests rejected for a bad access key", "")
	FatalErrors     = Collector.Counter("echobot_fatal_errors_total", "Queries that ended with an error event", "")
	ActiveStreams   = Collector.Gauge("echobot_active_streams", "Current open response streams", "")
	AttachmentBytes = Collector.Counter("echobot_attachment_bytes_total", "Bytes of attachments uploaded", "")
)

// CommandTotal returns the counter for one command kind of one bot.
func CommandTotal(bot, kind string) *Counter {
	return Collector.Counter("echobot_commands_total", "Messages handled per command",
		fmt.Sprintf("bot=%q,command=%q", bot, kind))
}

// ProviderLatency returns the request latency histogram of an upstream
// service (stability, fireworks, poe).
func ProviderLatency(provider string) *Histogram {
	return Collector.Histogram("echobot_provider_latency_seconds", "Upstream request latency in seconds",
		fmt.Sprintf("provider=%q", provider), latencyBuckets)
}

// ProviderErrors returns the failure counter of an upstream service.
func ProviderErrors(provider string) *Counter {
	return Collector.Counter("echobot_provider_errors_total", "Failed upstream requests",
		fmt.Sprintf("provider=%q", provider))
}
