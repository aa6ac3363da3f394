package services

import (
	"context"
	"fmt"
	"time"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

// DefaultMaxComplexity is the complexity ceiling applied to plan queries.
const DefaultMaxComplexity = 4

// SafeExecutor gates every query through the validator before it reaches
// the graph store. Rejected queries never touch the repository.
type SafeExecutor struct {
	repo      repositories.GraphRepository
	validator *QueryValidator
	timeout   time.Duration
	logger    Logger
	metrics   MetricsCollector
}

// NewSafeExecutor creates a safe executor. A zero timeout leaves the caller's
// deadline in charge.
func NewSafeExecutor(
	repo repositories.GraphRepository,
	timeout time.Duration,
	logger Logger,
	metrics MetricsCollector,
) *SafeExecutor {
	return &SafeExecutor{
		repo:      repo,
		validator: NewQueryValidator(),
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Validate exposes the executor's validator.
func (e *SafeExecutor) Validate(query string) models.QueryValidationResult {
	return e.validator.Validate(query)
}

// ExecuteSafely validates query and runs it on the read path when it is
// read-only, otherwise on the general path. Queries over maxComplexity, and
// writing queries when allowWrite is false, come back as failed results with
// zero execution time. Repository errors are folded into the result.
func (e *SafeExecutor) ExecuteSafely(
	ctx context.Context,
	query string,
	params map[string]interface{},
	maxComplexity int,
	allowWrite bool,
) *models.ExecutionResult {
	validation := e.validator.Validate(query)

	if validation.EstimatedComplexity > maxComplexity {
		err := errors.Newf(errors.CodeComplexityExceeded,
			"Query complexity (%d) exceeds maximum (%d)", validation.EstimatedComplexity, maxComplexity)
		return e.reject(query, params, validation, err, "complexity")
	}

	if !validation.IsReadOnly && !allowWrite {
		return e.reject(query, params, validation, errors.ErrWriteNotPermitted, "write")
	}

	timer := e.metrics.StartTimer("query_execution")
	defer timer.Stop()

	queryCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Debug("Executing query",
		"query", query,
		"read_only", validation.IsReadOnly,
		"complexity", validation.EstimatedComplexity)

	start := time.Now()
	var (
		result *models.ExecutionResult
		err    error
	)
	if validation.IsReadOnly {
		result, err = e.repo.ExecuteRead(queryCtx, query, params)
	} else {
		result, err = e.repo.Execute(queryCtx, query, params)
	}
	elapsed := time.Since(start)

	if err != nil {
		e.metrics.IncrementCounter("query_execution_errors")
		e.logger.Error("Query execution failed",
			"error", err,
			"query", query,
			"execution_time", elapsed)
		return &models.ExecutionResult{
			Query:         query,
			Parameters:    params,
			Records:       []models.Row{},
			ErrorMessage:  executionErrorMessage(err),
			ExecutionTime: elapsed,
			Timestamp:     time.Now(),
			Validation:    &validation,
		}
	}
	if result == nil {
		result = &models.ExecutionResult{Query: query, Parameters: params, Success: true, ExecutionTime: elapsed, Timestamp: time.Now()}
	}
	if result.Records == nil {
		result.Records = []models.Row{}
	}
	result.Validation = &validation

	if !result.Success {
		e.metrics.IncrementCounter("query_execution_errors")
		e.logger.Warn("Query returned failure",
			"query", query,
			"error", result.ErrorMessage,
			"execution_time", result.ExecutionTime)
		return result
	}

	e.metrics.IncrementCounter("successful_queries")
	e.metrics.RecordHistogram("query_execution_time", result.ExecutionTime.Seconds())
	e.metrics.RecordHistogram("query_result_rows", float64(len(result.Records)))

	e.logger.Info("Query executed successfully",
		"rows", len(result.Records),
		"execution_time", result.ExecutionTime)

	return result
}

func (e *SafeExecutor) reject(
	query string,
	params map[string]interface{},
	validation models.QueryValidationResult,
	err *errors.Error,
	reason string,
) *models.ExecutionResult {
	e.metrics.IncrementCounter("query_preflight_rejections", "reason", reason)
	e.logger.Warn("Query rejected before execution",
		"reason", reason,
		"error", err.Message,
		"complexity", validation.EstimatedComplexity,
		"issues", validation.Issues)

	return &models.ExecutionResult{
		Query:        query,
		Parameters:   params,
		Records:      []models.Row{},
		Success:      false,
		ErrorMessage: err.Message,
		Timestamp:    time.Now(),
		Validation:   &validation,
	}
}

func executionErrorMessage(err error) string {
	if ce := errors.FromContext(err); ce != nil {
		return fmt.Sprintf("%s: %v", ce.Message, err)
	}
	return err.Error()
}
