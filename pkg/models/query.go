// Package models provides the value objects passed between the validator,
// executors, integrator and pipeline.
package models

import (
	"time"
)

// Row is one result record keyed by column name.
type Row = map[string]interface{}

// QueryValidationResult is the static verdict for a single candidate query.
// IsValid is false exactly when a dangerous pattern matched. Expensive
// patterns only raise EstimatedComplexity.
type QueryValidationResult struct {
	IsValid             bool     `json:"is_valid"`
	Issues              []string `json:"issues"`
	IsReadOnly          bool     `json:"is_read_only"`
	EstimatedComplexity int      `json:"estimated_complexity"`
}

// ExecutionSummary holds the write counters reported by the graph store.
type ExecutionSummary struct {
	NodesCreated         int `json:"nodes_created,omitempty"`
	NodesDeleted         int `json:"nodes_deleted,omitempty"`
	RelationshipsCreated int `json:"relationships_created,omitempty"`
	RelationshipsDeleted int `json:"relationships_deleted,omitempty"`
	PropertiesSet        int `json:"properties_set,omitempty"`
}

// ExecutionResult is the outcome of one query against the graph store.
// Pre-flight rejections use the same shape with a zero ExecutionTime.
type ExecutionResult struct {
	Query         string                 `json:"query"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	Records       []Row                  `json:"records"`
	Success       bool                   `json:"success"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Timestamp     time.Time              `json:"timestamp"`
	Summary       ExecutionSummary       `json:"summary"`
	Validation    *QueryValidationResult `json:"validation,omitempty"`
}

// RecordCount returns the number of returned rows.
func (r *ExecutionResult) RecordCount() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// QueryStatus tracks a plan query through execution.
type QueryStatus string

const (
	QueryStatusPending   QueryStatus = "pending"
	QueryStatusRunning   QueryStatus = "running"
	QueryStatusSucceeded QueryStatus = "succeeded"
	QueryStatusFailed    QueryStatus = "failed"
	QueryStatusSkipped   QueryStatus = "skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s QueryStatus) IsTerminal() bool {
	return s == QueryStatusSucceeded || s == QueryStatusFailed || s == QueryStatusSkipped
}

// QueryExecutionRecord is the result of one query of a plan.
type QueryExecutionRecord struct {
	Index         int           `json:"index"`
	Query         string        `json:"query"`
	Records       []Row         `json:"records"`
	Success       bool          `json:"success"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Status        QueryStatus   `json:"status"`
}

// RecordFromResult converts an execution result into a plan record.
func RecordFromResult(index int, query string, res *ExecutionResult) QueryExecutionRecord {
	rec := QueryExecutionRecord{
		Index:  index,
		Query:  query,
		Status: QueryStatusFailed,
	}
	if res == nil {
		rec.ErrorMessage = "no result returned"
		return rec
	}
	rec.Records = res.Records
	rec.Success = res.Success
	rec.ErrorMessage = res.ErrorMessage
	rec.ExecutionTime = res.ExecutionTime
	if res.Success {
		rec.Status = QueryStatusSucceeded
	}
	return rec
}

// SkippedRecord builds the record for a query that never ran.
func SkippedRecord(index int, query, reason string) QueryExecutionRecord {
	return QueryExecutionRecord{
		Index:        index,
		Query:        query,
		Success:      false,
		ErrorMessage: reason,
		Status:       QueryStatusSkipped,
	}
}
