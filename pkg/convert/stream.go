package convert

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/gcode"
	"klipper-delta-filter/pkg/kinematics"
	"klipper-delta-filter/pkg/log"
	"klipper-delta-filter/pkg/metrics"
)

// VerifyTolerance is the largest round-trip error accepted with Options.Verify.
const VerifyTolerance = 1e-6

// Policy decides what happens to a motion line that cannot be parsed.
type Policy string

const (
	PolicyAbort Policy = "abort" // Stop the run with MALFORMED_COMMAND
	PolicySkip  Policy = "skip"  // Drop the line and keep going
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAbort, PolicySkip:
		return p, nil
	}
	return "", errors.ConfigValidationError("on_malformed", fmt.Sprintf("unknown policy %q (want abort or skip)", s))
}

// Options control how a Converter parses and renders lines.
type Options struct {
	Verb        string // Motion verb to convert
	Precision   int    // Fractional digits per value
	Annotate    bool   // Append " ; -- delta" to converted lines
	OnMalformed Policy
	Verify      bool // Invert every result and compare with the target
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Verb:        gcode.DefaultVerb,
		Precision:   gcode.DefaultPrecision,
		OnMalformed: PolicyAbort,
	}
}

// Summary counts the lines of one run.
type Summary struct {
	Lines     int // Lines read
	Converted int // Motion lines converted
	Passed    int // Lines passed through unchanged
	Skipped   int // Malformed motion lines dropped
}

// Inverter maps tower positions back to the effector position.
type Inverter interface {
	CartesianPosition(towers [3]float64) ([3]float64, error)
}

// Converter runs a line stream through a Pipeline. Like the Pipeline it
// owns, it is not safe for concurrent use.
type Converter struct {
	opts      Options
	parser    *gcode.Parser
	pipeline  *Pipeline
	formatter gcode.Formatter
	inverter  Inverter
	logger    *log.Logger
	metrics   *metrics.FilterMetrics
	summary   Summary
}

// NewConverter builds a converter around t. A nil logger or metrics set gets
// a default. Verify requires t to also implement Inverter.
func NewConverter(t kinematics.Transformer, opts Options, logger *log.Logger, m *metrics.FilterMetrics) (*Converter, error) {
	if opts.Precision < 0 {
		return nil, errors.ConfigValidationError("precision", fmt.Sprintf("%d must not be negative", opts.Precision))
	}
	if opts.OnMalformed == "" {
		opts.OnMalformed = PolicyAbort
	}
	if _, err := ParsePolicy(string(opts.OnMalformed)); err != nil {
		return nil, err
	}

	parser, err := gcode.NewParser(opts.Verb)
	if err != nil {
		return nil, err
	}

	c := &Converter{
		opts:      opts,
		parser:    parser,
		pipeline:  NewPipeline(t),
		formatter: gcode.Formatter{Precision: opts.Precision, Annotate: opts.Annotate},
		logger:    logger,
		metrics:   m,
	}
	if opts.Verify {
		inv, ok := t.(Inverter)
		if !ok {
			return nil, errors.ConfigValidationError("verify", "transform cannot be inverted")
		}
		c.inverter = inv
	}
	if c.logger == nil {
		c.logger = log.GetLogger("convert")
	}
	if c.metrics == nil {
		c.metrics = metrics.NewFilterMetrics()
	}
	return c, nil
}

// Pipeline returns the pipeline holding the conversion state.
func (c *Converter) Pipeline() *Pipeline {
	return c.pipeline
}

// Metrics returns the metrics updated by the converter.
func (c *Converter) Metrics() *metrics.FilterMetrics {
	return c.metrics
}

// Summary returns the line counts so far.
func (c *Converter) Summary() Summary {
	return c.summary
}

// ConvertLine converts one line given without its terminator. Non-motion
// lines come back unchanged. emit is false for skipped lines.
func (c *Converter) ConvertLine(lineNo int, line string) (out string, emit bool, err error) {
	c.summary.Lines++

	cmd, ok, err := c.parser.ParseLine(line)
	if !ok && err == nil {
		c.summary.Passed++
		c.metrics.Line(metrics.KindPassthrough)
		return line, true, nil
	}
	if err != nil {
		err = c.fail(lineNo, err)
		if c.opts.OnMalformed == PolicySkip && errors.IsInput(err) {
			c.summary.Skipped++
			c.metrics.Line(metrics.KindSkipped)
			c.logger.WithFields(log.Fields{"line": lineNo, "text": line}).
				WithError(err).Warn("skipping malformed motion line")
			return "", false, nil
		}
		return "", false, err
	}

	done := c.metrics.LineSeconds.Timer(nil)
	defer done()

	result, err := c.pipeline.Process(cmd)
	if err != nil {
		return "", false, c.fail(lineNo, err)
	}

	towers := towerValues(result)
	if c.inverter != nil {
		if err := c.verify(towers); err != nil {
			return "", false, c.fail(lineNo, err)
		}
	}

	c.summary.Converted++
	c.metrics.Line(metrics.KindMotion)
	c.metrics.Carriages(towers)
	out = c.formatter.Format(result)
	c.logger.WithFields(log.Fields{"line": lineNo, "in": line, "out": out}).Debug("converted")
	return out, true, nil
}

// fail stamps the line number on err and counts it.
func (c *Converter) fail(lineNo int, err error) error {
	err = errors.WithLineNumber(err, lineNo)
	c.metrics.Error(string(errors.CodeOf(err)))
	return err
}

func (c *Converter) verify(towers [3]float64) error {
	target, ok := c.pipeline.Position()
	if !ok {
		return errors.KinematicsError("no cartesian position to verify against")
	}
	back, err := c.inverter.CartesianPosition(towers)
	if err != nil {
		return err
	}
	for i := range back {
		if math.Abs(back[i]-target[i]) > VerifyTolerance {
			return errors.KinematicsError(fmt.Sprintf(
				"round trip of (%.6f, %.6f, %.6f) gave (%.6f, %.6f, %.6f)",
				target[0], target[1], target[2], back[0], back[1], back[2]))
		}
	}
	return nil
}

func towerValues(cmd *gcode.MotionCommand) [3]float64 {
	var towers [3]float64
	for i, a := range gcode.GeometricAxes {
		towers[i], _ = cmd.Get(a)
	}
	return towers
}

// Run converts r line by line into w, keeping each line's terminator.
// Output written before a fatal error is flushed before Run returns it.
func (c *Converter) Run(r io.Reader, w io.Writer) (Summary, error) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	err := c.run(br, bw)
	if ferr := bw.Flush(); ferr != nil && err == nil {
		err = errors.IOError(ferr, "write output")
	}
	c.metrics.Finish()

	fields := log.Fields{
		"lines":     c.summary.Lines,
		"converted": c.summary.Converted,
		"passed":    c.summary.Passed,
		"skipped":   c.summary.Skipped,
	}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Error("conversion failed")
	} else {
		c.logger.WithFields(fields).Info("conversion finished")
	}
	return c.summary, err
}

func (c *Converter) run(br *bufio.Reader, bw *bufio.Writer) error {
	lineNo := 0
	for {
		raw, rerr := br.ReadString('\n')
		if len(raw) > 0 {
			lineNo++
			body, term := splitTerminator(raw)
			out, emit, err := c.ConvertLine(lineNo, body)
			if err != nil {
				return err
			}
			if emit {
				if _, err := bw.WriteString(out); err != nil {
					return errors.IOError(err, "write output")
				}
				if _, err := bw.WriteString(term); err != nil {
					return errors.IOError(err, "write output")
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errors.IOError(rerr, "read input")
		}
	}
}

// splitTerminator separates "\n" or "\r\n" from the end of raw.
func splitTerminator(raw string) (body, term string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}
