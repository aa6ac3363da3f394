package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

const (
	answerUnavailable           = "Unable to generate answer"
	integratedAnswerUnavailable = "Unable to generate integrated answer"
	generationFailed            = "Failed to generate Cypher query"
	historyWriteTimeout         = 5 * time.Second
)

// PipelineConfig tunes the question-answering pipeline.
type PipelineConfig struct {
	// MaxComplexity applies to the single generated query.
	MaxComplexity int
	// ApplySafetyLimit bounds the generated single query before execution.
	ApplySafetyLimit bool
	// DefaultLimit is the bound used when ApplySafetyLimit is set.
	DefaultLimit int
	// SampleSize is the number of rows per plan query shown to synthesis.
	SampleSize int
}

// DefaultPipelineConfig returns the default pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxComplexity: DefaultMaxComplexity,
		DefaultLimit:  DefaultQueryLimit,
		SampleSize:    DefaultSampleSize,
	}
}

// PipelineComponents are the collaborators a pipeline is built from.
// History is optional.
type PipelineComponents struct {
	Schema       SchemaProvider
	Generator    QueryGenerator
	Planner      Planner
	Synthesizer  Synthesizer
	Executor     QueryExecutor
	PlanExecutor *PlanExecutor
	History      repositories.HistoryRepository
}

// Pipeline answers questions through either a single generated query or a
// planned set of queries.
type Pipeline struct {
	schema       SchemaProvider
	generator    QueryGenerator
	planner      Planner
	synthesizer  Synthesizer
	executor     QueryExecutor
	planExecutor *PlanExecutor
	history      repositories.HistoryRepository
	cfg          PipelineConfig
	logger       Logger
	metrics      MetricsCollector

	executions    atomic.Int64
	successes     atomic.Int64
	multiQueries  atomic.Int64
	fallbacks     atomic.Int64
	totalDuration atomic.Int64
}

// NewPipeline creates a pipeline.
func NewPipeline(c PipelineComponents, cfg PipelineConfig, logger Logger, metrics MetricsCollector) *Pipeline {
	if cfg.MaxComplexity <= 0 {
		cfg.MaxComplexity = DefaultMaxComplexity
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultQueryLimit
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	return &Pipeline{
		schema:       c.Schema,
		generator:    c.Generator,
		planner:      c.Planner,
		synthesizer:  c.Synthesizer,
		executor:     c.Executor,
		planExecutor: c.PlanExecutor,
		history:      c.History,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
	}
}

// Answer runs a question end to end. It never returns nil and never panics;
// every failure is reported on the result.
func (p *Pipeline) Answer(ctx context.Context, question string) (result *models.PipelineResult) {
	start := time.Now()
	result = &models.PipelineResult{
		ID:              uuid.NewString(),
		Question:        question,
		CombinedRecords: []models.Row{},
		CreatedAt:       start,
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline panicked", "panic", r, "question", question)
			result = &models.PipelineResult{
				ID:              result.ID,
				Question:        question,
				Approach:        result.Approach,
				CombinedRecords: []models.Row{},
				ErrorMessage:    fmt.Sprintf("%v", r),
				ErrorStage:      models.StageUnknown,
				CreatedAt:       start,
			}
		}
		result.ExecutionTime = time.Since(start)
		p.finish(ctx, result)
	}()

	if strings.TrimSpace(question) == "" {
		fail(result, models.StageValidation, errors.ErrEmptyQuestion.Message)
		return result
	}

	analysis := AnalyzeQuestion(question)
	p.logger.Debug("Analyzed question",
		"indicators", analysis.IndicatorCount,
		"temporal", analysis.TemporalCount,
		"entities", analysis.EntityCount,
		"trigger", string(analysis.Trigger))

	if !analysis.NeedsMulti {
		p.answerSingle(ctx, question, result)
		result.SetMeta(models.MetaIntendedApproach, string(models.ApproachSingleQuery))
		return result
	}

	plan, err := p.buildPlan(ctx, question)
	if err != nil {
		p.fallbacks.Add(1)
		p.metrics.IncrementCounter("plan_fallbacks")
		p.logger.Warn("Query planning failed, falling back to single query", "error", err)
		p.answerSingle(ctx, question, result)
		result.SetMeta(models.MetaFallbackReason, models.FallbackQueryPlanningFailed)
		result.SetMeta(models.MetaFallbackDetail, err.Error())
		result.SetMeta(models.MetaIntendedApproach, string(models.ApproachMultiQuery))
		return result
	}

	if plan.IsSingle() {
		p.logger.Debug("Plan has a single query, using single query path")
		p.answerSingle(ctx, question, result)
		result.SetMeta(models.MetaIntendedApproach, string(models.ApproachMultiQuery))
		result.SetMeta(models.MetaActuallyUsedMultiQuery, false)
		return result
	}

	p.answerMulti(ctx, question, plan, result)
	return result
}

// buildPlan asks the planner for a plan and parses it. Every failure mode
// comes back as a PLANNING_FAILED error.
func (p *Pipeline) buildPlan(ctx context.Context, question string) (*models.QueryPlan, error) {
	if p.planner == nil {
		return nil, errors.New(errors.CodePlanningFailed, "no planner configured")
	}
	schema, err := p.schema.Summary(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePlanningFailed, "schema summary unavailable")
	}
	raw, err := p.planner.Plan(ctx, question, schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePlanningFailed, "planner call failed")
	}
	plan, err := models.ParseQueryPlan(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePlanningFailed, "planner returned an unusable plan")
	}
	p.logger.Info("Query plan created",
		"strategy", string(plan.IntegrationStrategy),
		"queries", len(plan.Queries))
	return plan, nil
}

func (p *Pipeline) answerSingle(ctx context.Context, question string, result *models.PipelineResult) {
	result.Approach = models.ApproachSingleQuery

	schema, err := p.schema.Summary(ctx)
	if err != nil {
		fail(result, models.StageSchema, err.Error())
		return
	}

	query, err := p.generator.GenerateQuery(ctx, question, schema)
	if err != nil || strings.TrimSpace(query) == "" {
		if err != nil {
			p.logger.Error("Cypher generation failed", "error", err)
		}
		fail(result, models.StageQueryGeneration, generationFailed)
		return
	}
	if p.cfg.ApplySafetyLimit {
		query = AddSafetyLimit(query, p.cfg.DefaultLimit)
	}
	result.GeneratedQuery = query

	exec := p.executor.ExecuteSafely(ctx, query, nil, p.cfg.MaxComplexity, false)
	result.PerQuery = []models.QueryMetadata{{
		Query:         query,
		Success:       exec.Success,
		RecordsCount:  len(exec.Records),
		ExecutionTime: exec.ExecutionTime,
		Error:         exec.ErrorMessage,
	}}
	if exec.Validation != nil {
		result.SetMeta(models.MetaValidation, *exec.Validation)
	}
	if !exec.Success {
		fail(result, models.StageQueryExecution, exec.ErrorMessage)
		return
	}
	result.CombinedRecords = exec.Records
	result.SetMeta(models.MetaTotalRecords, len(exec.Records))

	answer, err := p.synthesizer.SynthesizeSingle(ctx, question, query, exec.Records)
	p.setAnswer(result, answer, err, answerUnavailable)
}

func (p *Pipeline) answerMulti(ctx context.Context, question string, plan *models.QueryPlan, result *models.PipelineResult) {
	p.multiQueries.Add(1)
	result.Approach = models.ApproachMultiQuery
	result.GeneratedQuery = models.JoinQueries(plan.Queries)
	result.SetMeta(models.MetaIntendedApproach, string(models.ApproachMultiQuery))
	result.SetMeta(models.MetaActuallyUsedMultiQuery, true)
	result.SetMeta(models.MetaQueryPlan, map[string]interface{}{
		"num_queries":          len(plan.Queries),
		"integration_strategy": string(plan.IntegrationStrategy),
		"reasoning":            plan.Reasoning,
		"dependencies":         plan.Dependencies,
	})

	exec, err := p.planExecutor.ExecutePlan(ctx, plan)
	if exec != nil {
		result.PerQuery = QueryMetadataFrom(exec.Records)
		result.SetMeta(models.MetaSuccessfulQueries, exec.Succeeded)
		result.SetMeta(models.MetaFailedQueries, exec.Failed+exec.Skipped)
	}
	if err != nil {
		msg := errors.GetMessage(err)
		fail(result, models.StageMultiQueryExecution, msg)
		result.SetMeta(models.MetaTotalRecords, 0)
		return
	}

	integrated := Integrate(plan, exec.Records, p.cfg.SampleSize)
	result.CombinedRecords = integrated.CombinedRecords
	result.SetMeta(models.MetaTotalRecords, integrated.TotalRecords)

	answer, err := p.synthesizer.SynthesizeIntegrated(ctx, question, integrated)
	p.setAnswer(result, answer, err, integratedAnswerUnavailable)
}

func (p *Pipeline) setAnswer(result *models.PipelineResult, answer string, err error, unavailable string) {
	if err != nil {
		p.logger.Error("Answer synthesis failed", "error", err)
		result.Answer = unavailable
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ErrorStage = models.StageAnswerGeneration
		return
	}
	if strings.TrimSpace(answer) == "" {
		result.Answer = unavailable
		result.Success = false
		result.ErrorStage = models.StageAnswerGeneration
		return
	}
	result.Answer = strings.TrimSpace(answer)
	result.Success = true
}

func fail(result *models.PipelineResult, stage, msg string) {
	result.Success = false
	result.ErrorStage = stage
	result.ErrorMessage = msg
	result.CombinedRecords = []models.Row{}
}

// finish updates stats and history. It recovers on its own because it runs
// after Answer's recover has already fired.
func (p *Pipeline) finish(ctx context.Context, result *models.PipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Failed to finish pipeline run", "id", result.ID, "panic", r)
		}
	}()

	p.executions.Add(1)
	p.totalDuration.Add(int64(result.ExecutionTime))
	if result.Success {
		p.successes.Add(1)
		p.metrics.IncrementCounter("pipeline_successes", "approach", string(result.Approach))
	} else {
		p.metrics.IncrementCounter("pipeline_failures", "stage", result.ErrorStage)
	}
	p.metrics.RecordHistogram("pipeline_execution_time", result.ExecutionTime.Seconds())

	p.logger.Info("Question answered",
		"id", result.ID,
		"approach", string(result.Approach),
		"success", result.Success,
		"error_stage", result.ErrorStage,
		"records", len(result.CombinedRecords),
		"execution_time", result.ExecutionTime)

	if p.history == nil {
		return
	}
	if err := p.recordRun(ctx, result); err != nil {
		p.metrics.IncrementCounter("history_write_errors")
		p.logger.Warn("Failed to record run", "id", result.ID, "error", err)
	}
}

func (p *Pipeline) recordRun(ctx context.Context, result *models.PipelineResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("history panicked: %v", r)
		}
	}()
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	return p.history.Record(hctx, models.NewRunRecord(result))
}

// Stats returns aggregate counters since creation or the last reset.
func (p *Pipeline) Stats() models.PipelineStats {
	n := p.executions.Load()
	s := models.PipelineStats{
		ExecutionCount:  n,
		SuccessCount:    p.successes.Load(),
		MultiQueryCount: p.multiQueries.Load(),
		FallbackCount:   p.fallbacks.Load(),
	}
	if n > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(n)
		s.AverageExecutionTime = time.Duration(p.totalDuration.Load() / n)
	}
	return s
}

// ResetStats zeroes the aggregate counters.
func (p *Pipeline) ResetStats() {
	p.executions.Store(0)
	p.successes.Store(0)
	p.multiQueries.Store(0)
	p.fallbacks.Store(0)
	p.totalDuration.Store(0)
}
