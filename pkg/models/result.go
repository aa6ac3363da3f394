package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Approach names the path a question took through the pipeline.
type Approach string

const (
	ApproachSingleQuery Approach = "single_query"
	ApproachMultiQuery  Approach = "multi_query"
)

// Error stages reported on failed pipeline results.
const (
	StageValidation          = "validation"
	StageSchema              = "schema"
	StageQueryGeneration     = "cypher_generation"
	StageQueryExecution      = "cypher_execution"
	StageMultiQueryExecution = "multi_query_execution"
	StageAnswerGeneration    = "answer_generation"
	StageUnknown             = "unknown"
)

// Metadata keys written on pipeline results.
const (
	MetaIntendedApproach       = "intended_approach"
	MetaActuallyUsedMultiQuery = "actually_used_multi_query"
	MetaFallbackReason         = "fallback_reason"
	MetaFallbackDetail         = "fallback_detail"
	MetaQueryPlan              = "query_plan"
	MetaSuccessfulQueries      = "successful_queries"
	MetaFailedQueries          = "failed_queries"
	MetaTotalRecords           = "total_records"
	MetaValidation             = "validation"

	FallbackQueryPlanningFailed = "query_planning_failed"
)

// QuerySummary is the per-query block of an integrated context.
type QuerySummary struct {
	Index         int           `json:"index"`
	Query         string        `json:"query"`
	Success       bool          `json:"success"`
	RecordCount   int           `json:"records_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
	Status        QueryStatus   `json:"status"`
	SampleRows    []Row         `json:"sample_rows,omitempty"`
}

// IntegratedContext is the merged view of a plan's results handed to synthesis.
type IntegratedContext struct {
	Strategy          IntegrationStrategy `json:"integration_strategy"`
	Reasoning         string              `json:"reasoning"`
	Queries           []string            `json:"queries"`
	TotalRecords      int                 `json:"total_records"`
	SuccessfulQueries int                 `json:"successful_queries"`
	FailedQueries     int                 `json:"failed_queries"`
	PerQuery          []QuerySummary      `json:"per_query"`
	CombinedRecords   []Row               `json:"combined_records"`
}

// PromptSummary renders the per-query results as the text block used for
// answer synthesis.
func (c *IntegratedContext) PromptSummary() string {
	var b strings.Builder
	for _, q := range c.PerQuery {
		if q.Success {
			fmt.Fprintf(&b, "Query %d: %d records\n", q.Index+1, q.RecordCount)
			data, err := json.MarshalIndent(q.SampleRows, "", "  ")
			if err != nil {
				data = []byte(fmt.Sprintf("%v", q.SampleRows))
			}
			fmt.Fprintf(&b, "Data: %s\n", data)
			continue
		}
		fmt.Fprintf(&b, "Query %d: FAILED - %s\n", q.Index+1, q.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}

// QueryMetadata is the per-query entry of a pipeline result.
type QueryMetadata struct {
	Query         string        `json:"query"`
	Success       bool          `json:"success"`
	RecordsCount  int           `json:"records_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
	Status        QueryStatus   `json:"status,omitempty"`
}

// PipelineResult is what a question produces, whichever path it took.
type PipelineResult struct {
	ID              string                 `json:"id"`
	Question        string                 `json:"question"`
	Answer          string                 `json:"answer"`
	Approach        Approach               `json:"approach"`
	Success         bool                   `json:"success"`
	GeneratedQuery  string                 `json:"generated_query,omitempty"`
	CombinedRecords []Row                  `json:"combined_records"`
	PerQuery        []QueryMetadata        `json:"per_query,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ErrorStage      string                 `json:"error_stage,omitempty"`
	ExecutionTime   time.Duration          `json:"execution_time"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// SetMeta sets a metadata key, allocating the map on first use.
func (r *PipelineResult) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// JoinQueries renders plan queries as "-- QUERY i --" sections, numbered from 1.
func JoinQueries(queries []string) string {
	parts := make([]string, len(queries))
	for i, q := range queries {
		parts[i] = fmt.Sprintf("-- QUERY %d --\n%s", i+1, q)
	}
	return strings.Join(parts, "\n")
}

// PipelineStats aggregates outcomes across pipeline runs.
type PipelineStats struct {
	ExecutionCount       int64         `json:"execution_count"`
	SuccessCount         int64         `json:"success_count"`
	SuccessRate          float64       `json:"success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	MultiQueryCount      int64         `json:"multi_query_count"`
	FallbackCount        int64         `json:"fallback_count"`
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID                string        `json:"id"`
	Question          string        `json:"question"`
	Approach          Approach      `json:"approach"`
	Success           bool          `json:"success"`
	Answer            string        `json:"answer"`
	GeneratedQuery    string        `json:"generated_query"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	ErrorStage        string        `json:"error_stage,omitempty"`
	FallbackReason    string        `json:"fallback_reason,omitempty"`
	TotalRecords      int           `json:"total_records"`
	SuccessfulQueries int           `json:"successful_queries"`
	FailedQueries     int           `json:"failed_queries"`
	ExecutionTime     time.Duration `json:"execution_time"`
	CreatedAt         time.Time     `json:"created_at"`
}

// NewRunRecord flattens a pipeline result for storage.
func NewRunRecord(r *PipelineResult) RunRecord {
	rec := RunRecord{
		ID:             r.ID,
		Question:       r.Question,
		Approach:       r.Approach,
		Success:        r.Success,
		Answer:         r.Answer,
		GeneratedQuery: r.GeneratedQuery,
		ErrorMessage:   r.ErrorMessage,
		ErrorStage:     r.ErrorStage,
		TotalRecords:   len(r.CombinedRecords),
		ExecutionTime:  r.ExecutionTime,
		CreatedAt:      r.CreatedAt,
	}
	if reason, ok := r.Metadata[MetaFallbackReason].(string); ok {
		rec.FallbackReason = reason
	}
	for _, q := range r.PerQuery {
		if q.Success {
			rec.SuccessfulQueries++
		} else {
			rec.FailedQueries++
		}
	}
	return rec
}
