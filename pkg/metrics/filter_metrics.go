// Delta filter metric definitions
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strconv"
	"time"
)

// Line kinds counted by LinesTotal
const (
	KindMotion      = "motion"
	KindPassthrough = "passthrough"
	KindSkipped     = "skipped"
)

// FilterMetrics holds the metrics of one conversion run
type FilterMetrics struct {
	LinesTotal       *Counter   // Lines read, by kind
	ErrorsTotal      *Counter   // Errors, by code
	CarriagePosition *Gauge     // Last emitted tower position, by tower
	LineSeconds      *Histogram // Time spent converting one motion line
	RunSeconds       *Gauge     // Wall time of the run

	startTime time.Time
	registry  *Registry
}

// NewFilterMetrics creates and registers all filter metrics
func NewFilterMetrics() *FilterMetrics {
	fm := &FilterMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	fm.LinesTotal = NewCounter("delta_filter_lines_total",
		"Input lines processed by kind (motion, passthrough, skipped)")
	fm.ErrorsTotal = NewCounter("delta_filter_errors_total",
		"Errors by code")
	fm.CarriagePosition = NewGauge("delta_filter_carriage_position",
		"Last emitted carriage position per tower in millimeters")
	fm.LineSeconds = NewHistogram("delta_filter_line_seconds",
		"Time to convert one motion line", ExponentialBuckets(1e-6, 10, 6))
	fm.RunSeconds = NewGauge("delta_filter_run_seconds",
		"Wall time of the conversion run")

	for _, m := range []Metric{fm.LinesTotal, fm.ErrorsTotal, fm.CarriagePosition, fm.LineSeconds, fm.RunSeconds} {
		fm.registry.MustRegister(m)
	}
	return fm
}

// Registry returns the registry holding the filter metrics
func (fm *FilterMetrics) Registry() *Registry {
	return fm.registry
}

// Line counts one input line of the given kind
func (fm *FilterMetrics) Line(kind string) {
	fm.LinesTotal.Inc(Labels{"kind": kind})
}

// Error counts one error with the given code
func (fm *FilterMetrics) Error(code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	fm.ErrorsTotal.Inc(Labels{"code": code})
}

// Carriages records the last emitted position of towers 1, 2 and 3
func (fm *FilterMetrics) Carriages(pos [3]float64) {
	for i, p := range pos {
		fm.CarriagePosition.Set(Labels{"tower": strconv.Itoa(i + 1)}, p)
	}
}

// Finish records the run duration
func (fm *FilterMetrics) Finish() {
	fm.RunSeconds.Set(nil, time.Since(fm.startTime).Seconds())
}
