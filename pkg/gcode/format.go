package gcode

import (
	"strings"

	"github.com/shopspring/decimal"

	"klipper-delta-filter/pkg/pool"
)

// DefaultPrecision is the number of fractional digits written per value.
const DefaultPrecision = 4

// Annotation is appended to converted lines when annotation is enabled.
const Annotation = " ; -- delta"

// Formatter renders MotionCommands as G-code text.
type Formatter struct {
	Precision int  // Fractional digits per value
	Annotate  bool // Append Annotation to each line
}

// DefaultFormatter returns a formatter with default precision and no annotation.
func DefaultFormatter() Formatter {
	return Formatter{Precision: DefaultPrecision}
}

// Format renders cmd as "<VERB> <A><value> ..." with uppercase letters.
func (f Formatter) Format(cmd *MotionCommand) string {
	sb := pool.GetLineBuffer()
	defer pool.PutLineBuffer(sb)
	sb.WriteString(strings.ToUpper(cmd.Verb()))
	for _, a := range cmd.Axes() {
		value, _ := cmd.Get(a)
		sb.WriteByte(' ')
		sb.WriteString(a.Letter())
		sb.WriteString(f.FormatValue(value))
	}
	if f.Annotate {
		sb.WriteString(Annotation)
	}
	return sb.String()
}

// FormatValue renders v with f.Precision fractional digits, rounding half away from zero.
func (f Formatter) FormatValue(v float64) string {
	precision := f.Precision
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(v).StringFixed(int32(precision))
}
