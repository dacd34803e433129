package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func render(t *testing.T, c *MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	return rec.Body.String()
}

func TestCounterSharedByKey(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("hits_total", "Hits", `bot="echo"`)
	b := c.Counter("hits_total", "Hits", `bot="echo"`)
	if a != b {
		t.Fatal("same name and labels should return the same counter")
	}
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Fatalf("value = %d, want 3", a.Value())
	}
	if other := c.Counter("hits_total", "Hits", `bot="stego"`); other.Value() != 0 {
		t.Fatalf("other label set should start at 0, got %d", other.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewMetricsCollector().Gauge("streams", "Open streams", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("value = %d, want 1", g.Value())
	}
	g.Set(7)
	if g.Value() != 7 {
		t.Fatalf("value = %d, want 7", g.Value())
	}
}

func TestHandlerRendersLabeledSeries(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("commands_total", "Commands", `bot="echo",command="generate"`).Inc()
	c.Counter("commands_total", "Commands", `bot="echo",command="mojo"`).Add(4)
	h := c.Histogram("latency_seconds", "Latency", `provider="stability"`, []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(9)

	out := render(t, c)
	for _, want := range []string{
		"echobot_uptime_seconds ",
		`commands_total{bot="echo",command="generate"} 1`,
		`commands_total{bot="echo",command="mojo"} 4`,
		`latency_seconds_bucket{provider="stability",le="1"} 1`,
		`latency_seconds_bucket{provider="stability",le="5"} 2`,
		`latency_seconds_bucket{provider="stability",le="+Inf"} 3`,
		`latency_seconds_count{provider="stability"} 3`,
		`latency_seconds_sum{provider="stability"} 12.500000`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if n := strings.Count(out, "# TYPE commands_total counter"); n != 1 {
		t.Errorf("TYPE line written %d times, want 1", n)
	}
}

func TestHandlerUnlabeledHistogram(t *testing.T) {
	c := NewMetricsCollector()
	c.Histogram("wait_seconds", "Wait", "", []float64{1}).Observe(2)

	out := render(t, c)
	for _, want := range []string{
		`wait_seconds_bucket{le="1"} 0`,
		`wait_seconds_bucket{le="+Inf"} 1`,
		"wait_seconds_count 1",
		"wait_seconds_sum 2.000000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestProviderHelpersShareSeries(t *testing.T) {
	before := ProviderErrors("fireworks").Value()
	ProviderErrors("fireworks").Inc()
	if got := ProviderErrors("fireworks").Value(); got != before+1 {
		t.Fatalf("errors = %d, want %d", got, before+1)
	}
	if ProviderLatency("poe") != ProviderLatency("poe") {
		t.Fatal("latency histogram should be shared per provider")
	}
	if CommandTotal("echo", "mojo") == CommandTotal("stego", "mojo") {
		t.Fatal("bots should have separate command counters")
	}
}
