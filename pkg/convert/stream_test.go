package convert

import (
	"bytes"
	"strings"
	"testing"

	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/kinematics"
	"klipper-delta-filter/pkg/log"
	"klipper-delta-filter/pkg/metrics"
)

func newTestConverter(t *testing.T, opts Options) (*Converter, *bytes.Buffer) {
	t.Helper()
	geom, err := kinematics.NewGeometry(kinematics.DefaultParams())
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}

	var logs bytes.Buffer
	logger := log.New("convert")
	logger.SetWriter(&logs)
	logger.SetColorize(false)
	logger.SetLevel(log.DEBUG)

	c, err := NewConverter(geom, opts, logger, nil)
	if err != nil {
		t.Fatalf("NewConverter failed: %v", err)
	}
	return c, &logs
}

func TestRunConvertsAndPassesThrough(t *testing.T) {
	c, logs := newTestConverter(t, DefaultOptions())

	input := "; start\n" +
		"G28\r\n" +
		"G1 X10 Y5 Z0 F1500\n" +
		"\n" +
		"g1 x12 ; carry Y and Z\r\n" +
		"M104 S200  (keep me)\n" +
		"G1 Z2.5 E0.4"
	want := "; start\n" +
		"G28\r\n" +
		"G1 X361.2684 Y371.4473 Z370.7828 F1500.0000\n" +
		"\n" +
		"G1 X360.0931 Y372.3180 Z370.6649\r\n" +
		"M104 S200  (keep me)\n" +
		"G1 Z373.1649 E0.4000 X362.5931 Y374.8180"

	var out bytes.Buffer
	summary, err := c.Run(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != want {
		t.Errorf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
	}

	if summary != (Summary{Lines: 7, Converted: 3, Passed: 4}) {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if !strings.Contains(logs.String(), "conversion finished") {
		t.Errorf("expected summary log, got: %s", logs.String())
	}

	m := c.Metrics()
	if v := m.LinesTotal.Get(metrics.Labels{"kind": metrics.KindMotion}); v != 3 {
		t.Errorf("expected 3 motion lines counted, got %d", v)
	}
	if v := m.CarriagePosition.Get(metrics.Labels{"tower": "2"}); v < 374.8 || v > 374.9 {
		t.Errorf("expected last tower 2 position near 374.818, got %f", v)
	}
	if m.LineSeconds.Count(nil) != 3 {
		t.Errorf("expected 3 timed lines, got %d", m.LineSeconds.Count(nil))
	}
}

func TestRunPassThroughIsByteExact(t *testing.T) {
	c, _ := newTestConverter(t, DefaultOptions())

	input := "G10 X1\r\n\t; tabbed comment\n(only a comment)\r\nG0 X5 Y5\nM117 Héllo\n   \nG1X10"
	var out bytes.Buffer
	if _, err := c.Run(strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != input {
		t.Errorf("expected identical output:\n%q\ngot:\n%q", input, out.String())
	}
}

func TestRunUnresolvedAxis(t *testing.T) {
	c, logs := newTestConverter(t, DefaultOptions())

	input := "G28\nG1 X1 Y2\nG1 X1 Y2 Z3\n"
	var out bytes.Buffer
	summary, err := c.Run(strings.NewReader(input), &out)
	if !errors.Is(err, errors.ErrUnresolvedAxis) {
		t.Fatalf("expected UNRESOLVED_AXIS, got %v", err)
	}
	if fe, _ := errors.As(err); fe.Line != 2 || fe.Token != "Z" {
		t.Errorf("expected line 2 axis Z, got line %d token %q", fe.Line, fe.Token)
	}
	// Output before the failure is flushed
	if out.String() != "G28\n" {
		t.Errorf("expected only the first line, got %q", out.String())
	}
	if summary.Lines != 2 {
		t.Errorf("expected to stop after 2 lines, got %d", summary.Lines)
	}
	if !strings.Contains(logs.String(), "conversion failed") {
		t.Errorf("expected failure log, got: %s", logs.String())
	}
	if v := c.Metrics().ErrorsTotal.Get(metrics.Labels{"code": "UNRESOLVED_AXIS"}); v != 1 {
		t.Errorf("expected error counted, got %d", v)
	}
}

func TestRunUnreachable(t *testing.T) {
	c, _ := newTestConverter(t, DefaultOptions())

	_, err := c.Run(strings.NewReader("G1 X0 Y0 Z0\nG1 X400 Y0\n"), &bytes.Buffer{})
	if !errors.Is(err, errors.ErrUnreachablePosition) {
		t.Fatalf("expected UNREACHABLE_POSITION, got %v", err)
	}
	if tower, _ := errors.TowerIndex(err); tower != 1 {
		t.Errorf("expected tower 1, got %d", tower)
	}
	if fe, _ := errors.As(err); fe.Line != 2 {
		t.Errorf("expected line 2, got %d", fe.Line)
	}

	// The pipeline is now terminal
	_, _, err = c.ConvertLine(3, "G1 X0 Y0 Z0")
	if !errors.Is(err, errors.ErrPipelineFailed) {
		t.Errorf("expected PIPELINE_FAILED, got %v", err)
	}
}

func TestRunMalformedPolicy(t *testing.T) {
	input := "G1 X0 Y0 Z0\nG1 X1 Q7\nG1 X1\n"

	t.Run("abort", func(t *testing.T) {
		c, _ := newTestConverter(t, DefaultOptions())
		_, err := c.Run(strings.NewReader(input), &bytes.Buffer{})
		if !errors.Is(err, errors.ErrMalformedCommand) {
			t.Fatalf("expected MALFORMED_COMMAND, got %v", err)
		}
		if fe, _ := errors.As(err); fe.Line != 2 || fe.Token != "Q7" {
			t.Errorf("expected line 2 token Q7, got line %d token %q", fe.Line, fe.Token)
		}
	})

	t.Run("skip", func(t *testing.T) {
		opts := DefaultOptions()
		opts.OnMalformed = PolicySkip
		c, logs := newTestConverter(t, opts)

		var out bytes.Buffer
		summary, err := c.Run(strings.NewReader(input), &out)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		want := "G1 X368.2314 Y368.2314 Z368.2314\nG1 X367.7242 Y368.7318 Z368.2287\n"
		if out.String() != want {
			t.Errorf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
		}
		if summary.Skipped != 1 || summary.Converted != 2 {
			t.Errorf("unexpected summary: %+v", summary)
		}
		if !strings.Contains(logs.String(), "skipping malformed motion line") {
			t.Errorf("expected a warning, got: %s", logs.String())
		}
	})
}

func TestConvertLineAnnotateAndPrecision(t *testing.T) {
	opts := DefaultOptions()
	opts.Annotate = true
	opts.Precision = 2
	c, _ := newTestConverter(t, opts)

	out, emit, err := c.ConvertLine(1, "G1 X10 Y5 Z2.5 E1")
	if err != nil || !emit {
		t.Fatalf("ConvertLine failed: emit=%v err=%v", emit, err)
	}
	want := "G1 X363.77 Y373.95 Z373.28 E1.00 ; -- delta"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}

	// Pass-through lines are never annotated
	out, _, _ = c.ConvertLine(2, "G28 ; home")
	if out != "G28 ; home" {
		t.Errorf("expected untouched line, got %q", out)
	}
}

func TestConvertLineVerify(t *testing.T) {
	opts := DefaultOptions()
	opts.Verify = true
	c, _ := newTestConverter(t, opts)

	for i, line := range []string{"G1 X0 Y0 Z0", "G1 X-40 Y30 Z100", "G1 X60 Y-20 Z5"} {
		if _, _, err := c.ConvertLine(i+1, line); err != nil {
			t.Errorf("verify failed for %q: %v", line, err)
		}
	}
}

func TestNewConverterValidation(t *testing.T) {
	geom, _ := kinematics.NewGeometry(kinematics.DefaultParams())

	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"negative precision", func(o *Options) { o.Precision = -1 }},
		{"unknown policy", func(o *Options) { o.OnMalformed = "retry" }},
		{"empty verb", func(o *Options) { o.Verb = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			if _, err := NewConverter(geom, opts, nil, nil); !errors.IsConfig(err) {
				t.Errorf("expected a config error, got %v", err)
			}
		})
	}

	// Verify needs an invertible transform
	opts := DefaultOptions()
	opts.Verify = true
	if _, err := NewConverter(&shiftTransform{}, opts, nil, nil); !errors.Is(err, errors.ErrConfigValidation) {
		t.Errorf("expected CONFIG_VALIDATION, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(" SKIP "); err != nil || p != PolicySkip {
		t.Errorf("expected skip, got %q (%v)", p, err)
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestSplitTerminator(t *testing.T) {
	tests := []struct {
		raw, body, term string
	}{
		{"G1 X1\n", "G1 X1", "\n"},
		{"G1 X1\r\n", "G1 X1", "\r\n"},
		{"G1 X1", "G1 X1", ""},
		{"\r", "\r", ""},
		{"\n", "", "\n"},
	}
	for _, tt := range tests {
		body, term := splitTerminator(tt.raw)
		if body != tt.body || term != tt.term {
			t.Errorf("splitTerminator(%q) = %q, %q", tt.raw, body, term)
		}
	}
}
