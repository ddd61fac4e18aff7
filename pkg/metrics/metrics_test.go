// Unit tests for Prometheus metrics implementation
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestCounterBasic(t *testing.T) {
	c := NewCounter("test_counter", "A test counter")

	if v := c.Get(nil); v != 0 {
		t.Errorf("expected initial value 0, got %d", v)
	}
	c.Inc(nil)
	c.Add(nil, 10)
	if v := c.Get(nil); v != 11 {
		t.Errorf("expected value 11, got %d", v)
	}
	if c.Name() != "test_counter" || c.Help() != "A test counter" || c.Type() != TypeCounter {
		t.Errorf("unexpected metadata: %s %s %s", c.Name(), c.Help(), c.Type())
	}
}

func TestCounterWithLabels(t *testing.T) {
	c := NewCounter("lines_total", "Lines")

	c.Inc(Labels{"kind": "motion"})
	c.Inc(Labels{"kind": "motion"})
	c.Inc(Labels{"kind": "passthrough"})

	if v := c.Get(Labels{"kind": "motion"}); v != 2 {
		t.Errorf("expected motion count 2, got %d", v)
	}
	if v := c.Get(Labels{"kind": "passthrough"}); v != 1 {
		t.Errorf("expected passthrough count 1, got %d", v)
	}
	if v := c.Get(Labels{"kind": "skipped"}); v != 0 {
		t.Errorf("expected skipped count 0, got %d", v)
	}
}

func TestCounterLabelsCopied(t *testing.T) {
	c := NewCounter("copied_total", "Copied")
	labels := Labels{"code": "IO"}
	c.Inc(labels)
	labels["code"] = "CHANGED"

	var sb strings.Builder
	c.Write(&sb)
	if !strings.Contains(sb.String(), `copied_total{code="IO"} 1`) {
		t.Errorf("caller mutation leaked into stored labels: %s", sb.String())
	}
}

func TestCounterConcurrency(t *testing.T) {
	c := NewCounter("concurrent_counter", "Concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(nil)
			}
		}()
	}
	wg.Wait()

	if v := c.Get(nil); v != 10000 {
		t.Errorf("expected 10000, got %d", v)
	}
}

func TestGaugeBasic(t *testing.T) {
	g := NewGauge("carriage_position", "Carriage")

	if v := g.Get(Labels{"tower": "1"}); v != 0 {
		t.Errorf("expected initial value 0, got %f", v)
	}
	g.Set(Labels{"tower": "1"}, 361.2684)
	g.Set(Labels{"tower": "1"}, 368.2314)
	if v := g.Get(Labels{"tower": "1"}); v != 368.2314 {
		t.Errorf("expected 368.2314, got %f", v)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("line_seconds", "Line time", []float64{1, 0.1, 0.01})

	h.Observe(nil, 0.005)
	h.Observe(nil, 0.05)
	h.Observe(nil, 0.05)
	h.Observe(nil, 5)

	if h.Count(nil) != 4 {
		t.Errorf("expected count 4, got %d", h.Count(nil))
	}

	var sb strings.Builder
	h.Write(&sb)
	output := sb.String()

	expected := []string{
		`line_seconds_bucket{le="0.01"} 1`,
		`line_seconds_bucket{le="0.1"} 3`,
		`line_seconds_bucket{le="1"} 3`,
		`line_seconds_bucket{le="+Inf"} 4`,
		`line_seconds_sum 5.105`,
		`line_seconds_count 4`,
	}
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("expected %q in output:\n%s", exp, output)
		}
	}
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("timer_seconds", "Timer", ExponentialBuckets(1e-6, 10, 6))
	done := h.Timer(Labels{"op": "convert"})
	done()
	if h.Count(Labels{"op": "convert"}) != 1 {
		t.Error("expected one observation from the timer")
	}
}

func TestExponentialBuckets(t *testing.T) {
	buckets := ExponentialBuckets(1, 2, 5)
	expected := []float64{1, 2, 4, 8, 16}
	if len(buckets) != len(expected) {
		t.Fatalf("expected %d buckets, got %d", len(expected), len(buckets))
	}
	for i, b := range buckets {
		if b != expected[i] {
			t.Errorf("bucket %d: expected %f, got %f", i, expected[i], b)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("b_total", "B")
	g := NewGauge("a_gauge", "A")

	if err := r.Register(c); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	r.MustRegister(g)
	if err := r.Register(NewCounter("b_total", "dup")); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if r.Get("a_gauge") != g {
		t.Error("expected Get to return the registered gauge")
	}

	c.Inc(Labels{"kind": "z"})
	c.Inc(Labels{"kind": "a"})
	g.Set(nil, 1.5)

	output := r.Gather()
	// Registration order, then sorted label sets
	want := "# HELP b_total B\n# TYPE b_total counter\n" +
		"b_total{kind=\"a\"} 1\nb_total{kind=\"z\"} 1\n" +
		"# HELP a_gauge A\n# TYPE a_gauge gauge\na_gauge 1.5\n"
	if output != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", output, want)
	}
}

func TestRegistryWriteFile(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("written_total", "Written")
	r.MustRegister(c)
	c.Inc(nil)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != r.Gather() {
		t.Errorf("file content differs from Gather:\n%s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestRegistryWriteTo(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("lines_total", "Lines")
	r.MustRegister(c)
	c.Add(Labels{"kind": "motion"}, 3)

	var sb strings.Builder
	n, err := r.WriteTo(&sb)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != int64(sb.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, sb.Len())
	}
	if sb.String() != r.Gather() {
		t.Errorf("written content differs from Gather:\n%s", sb.String())
	}
}

func TestRegistryWriteFileMissingDir(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "missing", "metrics.prom")
	if err := r.WriteFile(path); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestSpecialCharacterEscaping(t *testing.T) {
	c := NewCounter("escape_total", "Escaping")
	c.Inc(Labels{"token": "X\"1\\\n"})

	var sb strings.Builder
	c.Write(&sb)
	if !strings.Contains(sb.String(), `token="X\"1\\\n"`) {
		t.Errorf("expected escaped label, got: %s", sb.String())
	}
}

func TestFilterMetrics(t *testing.T) {
	fm := NewFilterMetrics()

	fm.Line(KindMotion)
	fm.Line(KindMotion)
	fm.Line(KindPassthrough)
	fm.Error("UNREACHABLE_POSITION")
	fm.Error("")
	fm.Carriages([3]float64{361.25, 371.5, 370.75})
	fm.Finish()

	if v := fm.LinesTotal.Get(Labels{"kind": KindMotion}); v != 2 {
		t.Errorf("expected 2 motion lines, got %d", v)
	}
	if v := fm.ErrorsTotal.Get(Labels{"code": "UNKNOWN"}); v != 1 {
		t.Errorf("expected empty code counted as UNKNOWN, got %d", v)
	}
	if v := fm.CarriagePosition.Get(Labels{"tower": "3"}); v != 370.75 {
		t.Errorf("expected tower 3 at 370.75, got %f", v)
	}

	output := fm.Registry().Gather()
	for _, exp := range []string{
		`delta_filter_lines_total{kind="motion"} 2`,
		`delta_filter_errors_total{code="UNREACHABLE_POSITION"} 1`,
		`delta_filter_carriage_position{tower="1"} 361.25`,
		"# TYPE delta_filter_line_seconds histogram",
		"delta_filter_run_seconds ",
	} {
		if !strings.Contains(output, exp) {
			t.Errorf("expected %q in output:\n%s", exp, output)
		}
	}
}

func BenchmarkCounterIncWithLabels(b *testing.B) {
	c := NewCounter("bench_counter", "Benchmark")
	labels := Labels{"kind": "motion"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Inc(labels)
	}
}
