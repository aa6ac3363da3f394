// Package metrics records how questions move through the planner: query
// preflight rejections and row counts, plan sizes and partial failures,
// fallbacks to the single query path and run history write errors.
package metrics

import (
	"time"
)

// Collector receives the planner's measurements. Names are bare snake_case
// (plan_queries, query_execution_time) and labels are alternating key and
// value strings, such as "stage", "planning".
type Collector interface {
	// IncrementCounter bumps a running total such as pipeline_failures.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram observes a distribution sample such as the number of
	// queries in a plan or the rows one query returned.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge sets a point-in-time value such as failed queries in the last plan.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer begins timing a query or plan execution.
	StartTimer(name string) Timer
}

// Timer is returned by StartTimer.
type Timer interface {
	// Stop ends the measurement and returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector is used when metrics are disabled in the configuration.
// Timers still measure so callers can log durations.
type NoOpCollector struct{}

// NewNoOpCollector returns a collector that records nothing.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

func (n *NoOpCollector) StartTimer(name string) Timer {
	return stopwatch(time.Now())
}

// stopwatch measures from its start time.
type stopwatch time.Time

func (s stopwatch) Stop() float64 {
	return time.Since(time.Time(s)).Seconds()
}
