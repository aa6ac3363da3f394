// Package services contains the query safety, planning and execution logic.
package services

import (
	"context"
	"time"

	"github.com/TFMV/cypherplan/pkg/models"
)

// Planner asks a language model to decompose a question. It returns the raw
// response text; parsing happens in the pipeline.
type Planner interface {
	Plan(ctx context.Context, question, schemaSummary string) (string, error)
}

// QueryGenerator turns a question into a single Cypher query.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, question, schemaSummary string) (string, error)
}

// Synthesizer writes the natural-language answer.
type Synthesizer interface {
	SynthesizeSingle(ctx context.Context, question, query string, records []models.Row) (string, error)
	SynthesizeIntegrated(ctx context.Context, question string, integrated *models.IntegratedContext) (string, error)
}

// SchemaProvider returns a textual summary of the graph schema.
type SchemaProvider interface {
	Summary(ctx context.Context) (string, error)
}

// QueryExecutor is the single-query safety gate used by plan execution.
type QueryExecutor interface {
	ExecuteSafely(ctx context.Context, query string, params map[string]interface{}, maxComplexity int, allowWrite bool) *models.ExecutionResult
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
