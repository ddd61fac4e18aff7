package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"klipper-delta-filter/pkg/errors"
)

func execute(t *testing.T, input string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("DELTA_LOG_LEVEL", "")
	t.Setenv("DELTA_LOG_FORMAT", "")
	t.Setenv("DELTA_LOG_CALLER", "")
	if args == nil {
		// cobra falls back to os.Args on a nil slice
		args = []string{}
	}
	var out, logs bytes.Buffer
	cmd := newRootCmd(strings.NewReader(input), &out, &logs)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), logs.String(), err
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "printer.cfg")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	out, _, err := execute(t, "G1 X10 Y5 Z0 F1500\nG28\n")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := "G1 X361.2684 Y371.4473 Z370.7828 F1500.0000\nG28\n"
	if out != want {
		t.Errorf("unexpected output:\n%q\nwant:\n%q", out, want)
	}
}

func TestSettingsLayering(t *testing.T) {
	path := writeConfig(t, `
[delta]
diagonal_rod: 250

[filter]
precision: 2
annotate: true
`)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "config file",
			args: []string{"--config", path},
			want: "G1 X446.16 Y454.42 Z453.88 ; -- delta\n",
		},
		{
			name: "flags override the file",
			args: []string{"--config", path, "--diagonal-rod", "213", "--precision", "3"},
			want: "G1 X361.268 Y371.447 Z370.783 ; -- delta\n",
		},
		{
			name: "unset flags keep file values",
			args: []string{"-c", path, "--annotate=false"},
			want: "G1 X446.16 Y454.42 Z453.88\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "G1 X10 Y5 Z0\n", tt.args...)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestUnusedOptionWarning(t *testing.T) {
	path := writeConfig(t, "[delta]\nprint_radius: 85\n")
	_, logs, err := execute(t, "", "--config", path)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(logs, "unused config option {option=delta.print_radius}") {
		t.Errorf("expected an unused option warning, got: %s", logs)
	}
}

func TestInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown policy", []string{"--on-malformed", "retry"}},
		{"precision too large", []string{"--precision", "11"}},
		{"unknown log level", []string{"--log-level", "loud"}},
		{"unknown log format", []string{"--log-format", "xml"}},
		{"rod shorter than radius", []string{"--diagonal-rod", "50"}},
		{"empty verb", []string{"--verb", ""}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "none.cfg")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "G1 X0 Y0 Z0\n", tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if out != "" {
				t.Errorf("expected no output, got %q", out)
			}
		})
	}
}

func TestNonFiniteGeometry(t *testing.T) {
	nanConfig := writeConfig(t, "[delta]\ndiagonal_rod: nan\n")
	tests := []struct {
		name string
		args []string
	}{
		{"NaN rod flag", []string{"--diagonal-rod", "NaN"}},
		{"infinite rod flag", []string{"--diagonal-rod", "+Inf"}},
		{"infinite offset flag", []string{"--effector-offset", "-Inf"}},
		{"NaN rod in config", []string{"--config", nanConfig}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "G28\nG1 X10 Y5 Z0\n", tt.args...)
			if !errors.IsConfig(err) {
				t.Fatalf("expected a config error, got %v", err)
			}
			if fe, _ := errors.As(err); fe.Line != 0 {
				t.Errorf("expected no input line on a geometry error, got line %d", fe.Line)
			}
			if out != "" {
				t.Errorf("expected no output, got %q", out)
			}
		})
	}
}

func TestFatalConversionError(t *testing.T) {
	out, logs, err := execute(t, "G28\nG1 X400 Y0 Z0\nG1 X0 Y0 Z0\n")
	if !errors.Is(err, errors.ErrUnreachablePosition) {
		t.Fatalf("expected UNREACHABLE_POSITION, got %v", err)
	}
	if out != "G28\n" {
		t.Errorf("expected output up to the failure, got %q", out)
	}
	if !strings.Contains(logs, "delta-filter failed") {
		t.Errorf("expected a failure log, got: %s", logs)
	}
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.prom")
	_, _, err := execute(t, "G1 X0 Y0 Z0\nM84\nG1 X1 Q2\n",
		"--on-malformed", "skip", "--metrics-file", path)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	for _, want := range []string{
		`delta_filter_lines_total{kind="motion"} 1`,
		`delta_filter_lines_total{kind="passthrough"} 1`,
		`delta_filter_lines_total{kind="skipped"} 1`,
		`delta_filter_errors_total{code="MALFORMED_COMMAND"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in metrics:\n%s", want, data)
		}
	}
}

func TestMetricsFileUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "delta.prom")
	out, logs, err := execute(t, "G1 X0 Y0 Z0\n", "--metrics-file", path)
	if !errors.Is(err, errors.ErrIO) {
		t.Fatalf("expected an IO error, got %v", err)
	}
	if out == "" {
		t.Error("expected converted output before the metrics failure")
	}
	if !strings.Contains(logs, "writing metrics to "+path+" failed") {
		t.Errorf("expected a metrics failure log, got: %s", logs)
	}
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.log")
	_, logs, err := execute(t, "G1 X0 Y0 Z0\n", "--logfile", path, "--log-level", "debug", "--verify")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if logs != "" {
		t.Errorf("expected nothing on stderr, got: %s", logs)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	for _, want := range []string{"delta geometry ready", "conversion finished"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in log file:\n%s", want, data)
		}
	}
}
