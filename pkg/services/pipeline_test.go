package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cypherplan/pkg/models"
)

const (
	simpleQuestion  = "How many U-Bahn stations were there in 1971?"
	complexQuestion = "Compare U-Bahn and S-Bahn development in East and West Berlin between 1961 and 1971"

	eastQuery  = "MATCH (s:Station) WHERE s.east_west = 'east' RETURN s.name LIMIT 10"
	westQuery  = "MATCH (s:Station) WHERE s.east_west = 'west' RETURN s.name LIMIT 10"
	linesQuery = "MATCH (l:Line) WHERE l.type = 'u-bahn' RETURN l.name LIMIT 10"
	tramQuery  = "MATCH (s:Station) WHERE s.type = 'u-bahn' RETURN s.name LIMIT 25"
)

var threeQueryPlanResponse = "Here is the plan:\n```json\n" + `{
  "queries": [
    "MATCH (s:Station) WHERE s.east_west = 'east' RETURN s.name LIMIT 10",
    "MATCH (s:Station) WHERE s.east_west = 'west' RETURN s.name LIMIT 10",
    "MATCH (l:Line) WHERE l.type = 'u-bahn' RETURN l.name LIMIT 10"
  ],
  "integration_strategy": "compare",
  "dependencies": [[], [], []],
  "reasoning": "east and west stations, then lines"
}` + "\n```"

type pipelineFixture struct {
	pipeline    *Pipeline
	repo        *countingRepo
	planner     *stubPlanner
	generator   *stubGenerator
	synthesizer *stubSynthesizer
	history     *memoryHistory
	metrics     *mockMetricsCollector
}

func newPipelineFixture(cfg PipelineConfig) *pipelineFixture {
	f := &pipelineFixture{
		repo: &countingRepo{
			respond: func(ctx context.Context, query string) (*models.ExecutionResult, error) {
				return rowsResult(query, 2), nil
			},
		},
		planner:     &stubPlanner{response: threeQueryPlanResponse},
		generator:   &stubGenerator{query: tramQuery},
		synthesizer: &stubSynthesizer{answer: "There were 12 stations."},
		history:     &memoryHistory{},
		metrics:     &mockMetricsCollector{},
	}
	logger := &mockLogger{}
	executor := NewSafeExecutor(f.repo, 0, logger, f.metrics)
	f.pipeline = NewPipeline(PipelineComponents{
		Schema:       &stubSchema{summary: "Node labels: Station, Line"},
		Generator:    f.generator,
		Planner:      f.planner,
		Synthesizer:  f.synthesizer,
		Executor:     executor,
		PlanExecutor: NewPlanExecutor(executor, DefaultPlanExecutorConfig(), logger, f.metrics),
		History:      f.history,
	}, cfg, logger, f.metrics)
	return f
}

func failQueries(bad ...string) func(ctx context.Context, query string) (*models.ExecutionResult, error) {
	return func(ctx context.Context, query string) (*models.ExecutionResult, error) {
		for _, b := range bad {
			if query == b {
				return failedResult(query, "Neo.ClientError.Statement.SyntaxError"), nil
			}
		}
		return rowsResult(query, 2), nil
	}
}

func TestPipeline_SingleQuery(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())

	res := f.pipeline.Answer(context.Background(), simpleQuestion)

	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.ApproachSingleQuery, res.Approach)
	assert.Equal(t, "There were 12 stations.", res.Answer)
	assert.Equal(t, tramQuery, res.GeneratedQuery)
	assert.Len(t, res.CombinedRecords, 2)
	assert.Equal(t, "single_query", res.Metadata[models.MetaIntendedApproach])
	assert.Equal(t, 0, f.planner.calls)
	assert.Equal(t, []string{tramQuery}, f.repo.readCalls)
	assert.Len(t, f.synthesizer.records, 2)
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, res.ID, f.history.runs[0].ID)
}

func TestPipeline_MultiQueryPartialFailure(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.repo.respond = failQueries(westQuery)
	f.synthesizer.answer = "East Berlin had more stations."

	res := f.pipeline.Answer(context.Background(), complexQuestion)

	assert.True(t, res.Success)
	assert.Equal(t, models.ApproachMultiQuery, res.Approach)
	assert.Equal(t, "East Berlin had more stations.", res.Answer)
	assert.True(t, strings.HasPrefix(res.GeneratedQuery, "-- QUERY 1 --\n"+eastQuery))
	assert.Contains(t, res.GeneratedQuery, "-- QUERY 3 --\n"+linesQuery)
	assert.Len(t, res.CombinedRecords, 4)
	require.Len(t, res.PerQuery, 3)
	assert.False(t, res.PerQuery[1].Success)

	assert.Equal(t, "multi_query", res.Metadata[models.MetaIntendedApproach])
	assert.Equal(t, true, res.Metadata[models.MetaActuallyUsedMultiQuery])
	assert.Equal(t, 2, res.Metadata[models.MetaSuccessfulQueries])
	assert.Equal(t, 1, res.Metadata[models.MetaFailedQueries])
	assert.Equal(t, 4, res.Metadata[models.MetaTotalRecords])
	plan, ok := res.Metadata[models.MetaQueryPlan].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3, plan["num_queries"])
	assert.Equal(t, "compare", plan["integration_strategy"])

	require.NotNil(t, f.synthesizer.integrated)
	assert.Equal(t, 1, f.synthesizer.integrated.FailedQueries)
	assert.Equal(t, 0, f.generator.calls)
	assert.Equal(t, int64(1), f.pipeline.Stats().MultiQueryCount)
}

func TestPipeline_PlanningFallback(t *testing.T) {
	tests := []struct {
		name    string
		planner *stubPlanner
	}{
		{name: "unparseable plan", planner: &stubPlanner{response: "I cannot plan this question."}},
		{name: "planner error", planner: &stubPlanner{err: errors.New("rate limited")}},
		{name: "unknown strategy", planner: &stubPlanner{response: `{"queries": ["RETURN 1", "RETURN 2"], "integration_strategy": "merge"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(DefaultPipelineConfig())
			f.pipeline.planner = tt.planner

			res := f.pipeline.Answer(context.Background(), complexQuestion)

			assert.True(t, res.Success)
			assert.Equal(t, models.ApproachSingleQuery, res.Approach)
			assert.Equal(t, models.FallbackQueryPlanningFailed, res.Metadata[models.MetaFallbackReason])
			assert.Equal(t, "multi_query", res.Metadata[models.MetaIntendedApproach])
			assert.NotEmpty(t, res.Metadata[models.MetaFallbackDetail])
			assert.Equal(t, 1, f.generator.calls)
			assert.Equal(t, 1, tt.planner.calls)
			assert.Equal(t, int64(1), f.pipeline.Stats().FallbackCount)
			require.Len(t, f.history.runs, 1)
			assert.Equal(t, models.FallbackQueryPlanningFailed, f.history.runs[0].FallbackReason)
		})
	}
}

func TestPipeline_SingleQueryPlanUsesSinglePath(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.planner.response = `{"queries": ["MATCH (s:Station) RETURN count(s)"], "integration_strategy": "single", "dependencies": [[]], "reasoning": "one query is enough"}`

	res := f.pipeline.Answer(context.Background(), complexQuestion)

	assert.True(t, res.Success)
	assert.Equal(t, models.ApproachSingleQuery, res.Approach)
	assert.Equal(t, false, res.Metadata[models.MetaActuallyUsedMultiQuery])
	assert.Equal(t, "multi_query", res.Metadata[models.MetaIntendedApproach])
	assert.Equal(t, 1, f.generator.calls)
}

func TestPipeline_AllQueriesFailed(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.repo.respond = failQueries(eastQuery, westQuery, linesQuery)

	res := f.pipeline.Answer(context.Background(), complexQuestion)

	assert.False(t, res.Success)
	assert.Equal(t, "all queries in plan failed", res.ErrorMessage)
	assert.Equal(t, models.StageMultiQueryExecution, res.ErrorStage)
	assert.Empty(t, res.CombinedRecords)
	assert.Len(t, res.PerQuery, 3)
	assert.Equal(t, 3, res.Metadata[models.MetaFailedQueries])
	assert.Equal(t, 0, res.Metadata[models.MetaSuccessfulQueries])
	assert.Nil(t, f.synthesizer.integrated)
}

func TestPipeline_EmptyAnswers(t *testing.T) {
	t.Run("integrated", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.synthesizer.answer = "   "

		res := f.pipeline.Answer(context.Background(), complexQuestion)

		assert.False(t, res.Success)
		assert.Equal(t, "Unable to generate integrated answer", res.Answer)
		assert.Equal(t, models.StageAnswerGeneration, res.ErrorStage)
	})

	t.Run("single", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.synthesizer.answer = ""

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.False(t, res.Success)
		assert.Equal(t, "Unable to generate answer", res.Answer)
	})

	t.Run("synthesis error", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.synthesizer.err = errors.New("model overloaded")

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.False(t, res.Success)
		assert.Equal(t, "Unable to generate answer", res.Answer)
		assert.Equal(t, "model overloaded", res.ErrorMessage)
		assert.Equal(t, models.StageAnswerGeneration, res.ErrorStage)
	})
}

func TestPipeline_SinglePathFailures(t *testing.T) {
	t.Run("generation error", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.generator.err = errors.New("no completion")

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.False(t, res.Success)
		assert.Equal(t, models.StageQueryGeneration, res.ErrorStage)
		assert.Equal(t, "Failed to generate Cypher query", res.ErrorMessage)
		assert.Equal(t, 0, f.repo.calls())
	})

	t.Run("blank generation", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.generator.query = "  \n"

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.Equal(t, models.StageQueryGeneration, res.ErrorStage)
	})

	t.Run("write rejected before execution", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.generator.query = "MATCH (n) DETACH DELETE n"

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.False(t, res.Success)
		assert.Equal(t, models.StageQueryExecution, res.ErrorStage)
		assert.Equal(t, "Write operations not permitted", res.ErrorMessage)
		assert.Empty(t, res.CombinedRecords)
		assert.Equal(t, 0, f.repo.calls())
	})

	t.Run("schema unavailable", func(t *testing.T) {
		f := newPipelineFixture(DefaultPipelineConfig())
		f.pipeline.schema = &stubSchema{err: errors.New("database unavailable")}

		res := f.pipeline.Answer(context.Background(), simpleQuestion)

		assert.Equal(t, models.StageSchema, res.ErrorStage)
		assert.Equal(t, 0, f.generator.calls)
	})
}

func TestPipeline_EmptyQuestion(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())

	res := f.pipeline.Answer(context.Background(), "   ")

	assert.False(t, res.Success)
	assert.Equal(t, models.StageValidation, res.ErrorStage)
	assert.Equal(t, "question must not be empty", res.ErrorMessage)
	assert.Equal(t, 0, f.generator.calls)
}

func TestPipeline_RecoversFromPanic(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.synthesizer.panicMsg = "synthesizer exploded"

	res := f.pipeline.Answer(context.Background(), simpleQuestion)

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, models.StageUnknown, res.ErrorStage)
	assert.Equal(t, "synthesizer exploded", res.ErrorMessage)
	assert.Empty(t, res.CombinedRecords)
	assert.Len(t, f.history.runs, 1)
}

func TestPipeline_ApplySafetyLimit(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.ApplySafetyLimit = true
	f := newPipelineFixture(cfg)
	f.generator.query = "MATCH (s:Station) WHERE s.type = 'u-bahn' RETURN s.name"

	res := f.pipeline.Answer(context.Background(), simpleQuestion)

	assert.True(t, res.Success)
	assert.Equal(t, "MATCH (s:Station) WHERE s.type = 'u-bahn' RETURN s.name LIMIT 1000", res.GeneratedQuery)
	assert.Equal(t, []string{res.GeneratedQuery}, f.repo.readCalls)
}

func TestPipeline_HistoryErrorDoesNotFailRun(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.history.err = errors.New("disk full")

	res := f.pipeline.Answer(context.Background(), simpleQuestion)

	assert.True(t, res.Success)
	assert.Equal(t, 1, f.metrics.count("history_write_errors"))
}

func TestPipeline_HistoryPanicDoesNotEscape(t *testing.T) {
	tests := []struct {
		name        string
		synthPanic  string
		wantSuccess bool
	}{
		{name: "successful run", wantSuccess: true},
		{name: "after recovered panic", synthPanic: "synthesizer exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(DefaultPipelineConfig())
			f.history.panicMsg = "history writer crashed"
			f.synthesizer.panicMsg = tt.synthPanic

			var res *models.PipelineResult
			require.NotPanics(t, func() {
				res = f.pipeline.Answer(context.Background(), simpleQuestion)
			})

			require.NotNil(t, res)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, 1, f.metrics.count("history_write_errors"))
			assert.Equal(t, int64(1), f.pipeline.Stats().ExecutionCount)
		})
	}
}

func TestPipeline_OneBasedDependenciesStillRunPlan(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())
	f.planner.response = strings.Replace(threeQueryPlanResponse,
		`"dependencies": [[], [], []]`, `"dependencies": [[], [1], [2]]`, 1)

	res := f.pipeline.Answer(context.Background(), complexQuestion)

	assert.True(t, res.Success)
	assert.Equal(t, models.ApproachMultiQuery, res.Approach)
	assert.NotContains(t, res.Metadata, models.MetaFallbackReason)
	assert.Equal(t, []string{eastQuery, westQuery, linesQuery}, f.repo.readCalls)
	assert.Equal(t, 0, f.generator.calls)
	assert.Equal(t, 3, res.Metadata[models.MetaSuccessfulQueries])
}

func TestPipeline_Stats(t *testing.T) {
	f := newPipelineFixture(DefaultPipelineConfig())

	f.pipeline.Answer(context.Background(), simpleQuestion)
	f.pipeline.Answer(context.Background(), "")

	stats := f.pipeline.Stats()
	assert.Equal(t, int64(2), stats.ExecutionCount)
	assert.Equal(t, int64(1), stats.SuccessCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	f.pipeline.ResetStats()
	assert.Equal(t, models.PipelineStats{}, f.pipeline.Stats())
}
