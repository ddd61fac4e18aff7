// delta-filter converts the cartesian G1 moves of a G-code stream into
// tower carriage positions for a linear delta printer.
//
// Usage:
//
//	delta-filter [flags] < model.gcode > model.delta.gcode
//
// Lines that are not G1 moves pass through unchanged. Machine dimensions
// and filter options come from built-in defaults, an optional Klipper-style
// config file (--config) and command line flags, in increasing priority.
//
// Examples:
//
//	# Convert with the reference machine dimensions
//	delta-filter < cube.gcode > cube.delta.gcode
//
//	# Read [delta] and [filter] from a printer config, annotate converted lines
//	delta-filter --config ~/printer.cfg --annotate < cube.gcode
//
//	# Drop malformed moves instead of aborting, write metrics at the end
//	delta-filter --on-malformed skip --metrics-file /tmp/delta.prom < cube.gcode
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
