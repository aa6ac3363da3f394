package services

import (
	"context"
	"fmt"
	"time"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
)

// ScheduleMode selects how plan dependencies are honoured.
type ScheduleMode string

const (
	// ScheduleList runs queries in list order and treats dependencies as advisory.
	ScheduleList ScheduleMode = "list"
	// ScheduleDependency also skips any query whose dependency did not succeed.
	ScheduleDependency ScheduleMode = "dependency"
)

// ParseScheduleMode maps a config string to a mode. Empty means list order.
func ParseScheduleMode(s string) (ScheduleMode, error) {
	switch ScheduleMode(s) {
	case "", ScheduleList:
		return ScheduleList, nil
	case ScheduleDependency:
		return ScheduleDependency, nil
	}
	return "", errors.Newf(errors.CodeInvalidRequest, "unknown schedule mode %q", s)
}

// PlanExecutorConfig tunes plan execution.
type PlanExecutorConfig struct {
	MaxComplexity int
	QueryTimeout  time.Duration
	PlanDeadline  time.Duration
	Mode          ScheduleMode
}

// DefaultPlanExecutorConfig returns list-order execution with complexity ceiling 4 and no deadlines.
func DefaultPlanExecutorConfig() PlanExecutorConfig {
	return PlanExecutorConfig{
		MaxComplexity: DefaultMaxComplexity,
		Mode:          ScheduleList,
	}
}

// PlanExecution is the outcome of running a plan.
type PlanExecution struct {
	Plan           *models.QueryPlan
	Records        []models.QueryExecutionRecord
	ShortCircuited bool
	Succeeded      int
	Failed         int
	Skipped        int
	ExecutionTime  time.Duration
}

// AllFailed reports whether no query produced rows.
func (p *PlanExecution) AllFailed() bool {
	return p.Succeeded == 0
}

// PlanExecutor runs the queries of a plan one at a time through a QueryExecutor.
type PlanExecutor struct {
	executor QueryExecutor
	cfg      PlanExecutorConfig
	logger   Logger
	metrics  MetricsCollector
}

// NewPlanExecutor creates a plan executor.
func NewPlanExecutor(executor QueryExecutor, cfg PlanExecutorConfig, logger Logger, metrics MetricsCollector) *PlanExecutor {
	if cfg.MaxComplexity <= 0 {
		cfg.MaxComplexity = DefaultMaxComplexity
	}
	if cfg.Mode == "" {
		cfg.Mode = ScheduleList
	}
	return &PlanExecutor{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// ExecutePlan runs every query of plan sequentially, read-only and under the
// configured complexity ceiling. One failing query never stops the others.
// When no query succeeds the execution is returned together with an
// ALL_QUERIES_FAILED error so callers still see per-query outcomes.
//
// In list mode dependencies are advisory: plan.Dependencies is normalized in
// place and bad indices are dropped. Dependency mode rejects them.
func (pe *PlanExecutor) ExecutePlan(ctx context.Context, plan *models.QueryPlan) (*PlanExecution, error) {
	if err := plan.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "invalid query plan")
	}
	if pe.cfg.Mode == ScheduleDependency {
		plan.PadDependencies()
		if err := plan.ValidateDependencies(); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidRequest, "invalid query plan")
		}
	} else if dropped := plan.NormalizeDependencies(); dropped > 0 {
		pe.logger.Warn("Ignoring invalid plan dependencies", "dropped", dropped, "queries", len(plan.Queries))
	}

	timer := pe.metrics.StartTimer("plan_execution")
	defer timer.Stop()

	start := time.Now()
	exec := &PlanExecution{
		Plan:    plan,
		Records: make([]models.QueryExecutionRecord, len(plan.Queries)),
	}
	for i, q := range plan.Queries {
		exec.Records[i] = models.QueryExecutionRecord{Index: i, Query: q, Status: models.QueryStatusPending}
	}

	planCtx := ctx
	if pe.cfg.PlanDeadline > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, pe.cfg.PlanDeadline)
		defer cancel()
	}

	if plan.IsSingle() {
		exec.ShortCircuited = true
		pe.logger.Debug("Single-query plan, using single query path")
	} else {
		pe.logger.Info("Executing query plan",
			"queries", len(plan.Queries),
			"strategy", string(plan.IntegrationStrategy),
			"mode", string(pe.cfg.Mode))
	}

	for i, query := range plan.Queries {
		if err := planCtx.Err(); err != nil {
			exec.Records[i] = models.SkippedRecord(i, query, skipReason(err))
			continue
		}
		if pe.cfg.Mode == ScheduleDependency {
			if dep, ok := failedDependency(plan.Dependencies[i], exec.Records); ok {
				exec.Records[i] = models.SkippedRecord(i, query, fmt.Sprintf("dependency %d failed", dep))
				pe.logger.Warn("Skipping query with failed dependency", "index", i, "dependency", dep)
				continue
			}
		}

		exec.Records[i] = pe.runOne(planCtx, i, query)
	}

	for _, rec := range exec.Records {
		switch rec.Status {
		case models.QueryStatusSucceeded:
			exec.Succeeded++
		case models.QueryStatusSkipped:
			exec.Skipped++
		default:
			exec.Failed++
		}
	}
	exec.ExecutionTime = time.Since(start)

	pe.metrics.RecordHistogram("plan_queries", float64(len(plan.Queries)))
	pe.metrics.RecordGauge("plan_failed_queries", float64(exec.Failed+exec.Skipped))

	if exec.AllFailed() {
		pe.metrics.IncrementCounter("plan_total_failures")
		pe.logger.Error("All queries in plan failed",
			"queries", len(plan.Queries),
			"skipped", exec.Skipped,
			"execution_time", exec.ExecutionTime)
		return exec, errors.ErrAllQueriesFailed
	}
	if exec.Failed+exec.Skipped > 0 {
		pe.metrics.IncrementCounter("plan_partial_failures")
	}

	pe.logger.Info("Query plan completed",
		"succeeded", exec.Succeeded,
		"failed", exec.Failed,
		"skipped", exec.Skipped,
		"execution_time", exec.ExecutionTime)

	return exec, nil
}

func (pe *PlanExecutor) runOne(ctx context.Context, index int, query string) models.QueryExecutionRecord {
	queryCtx := ctx
	if pe.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, pe.cfg.QueryTimeout)
		defer cancel()
	}

	res := pe.executor.ExecuteSafely(queryCtx, query, nil, pe.cfg.MaxComplexity, false)
	rec := models.RecordFromResult(index, query, res)
	if !rec.Success {
		rec.Records = []models.Row{}
		pe.logger.Warn("Plan query failed", "index", index, "error", rec.ErrorMessage)
	} else {
		pe.logger.Debug("Plan query completed", "index", index, "rows", len(rec.Records), "execution_time", rec.ExecutionTime)
	}
	return rec
}

// failedDependency returns the first dependency that did not succeed.
func failedDependency(deps []int, records []models.QueryExecutionRecord) (int, bool) {
	for _, d := range deps {
		if records[d].Status != models.QueryStatusSucceeded {
			return d, true
		}
	}
	return 0, false
}

func skipReason(err error) string {
	if ce := errors.FromContext(err); ce != nil && ce.Code == errors.CodeDeadlineExceeded {
		return "skipped: plan deadline exceeded"
	}
	return "skipped: plan canceled"
}
