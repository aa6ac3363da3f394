package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cypherplan/cmd/cypherplan/config"
	"github.com/TFMV/cypherplan/pkg/infrastructure/metrics"
	"github.com/TFMV/cypherplan/pkg/llm"
	"github.com/TFMV/cypherplan/pkg/repositories"
	"github.com/TFMV/cypherplan/pkg/repositories/duckdb"
	"github.com/TFMV/cypherplan/pkg/repositories/neo4j"
	"github.com/TFMV/cypherplan/pkg/schema"
	"github.com/TFMV/cypherplan/pkg/services"
)

const shutdownTimeout = 5 * time.Second

// needs selects which collaborators a command builds.
type needs struct {
	graph   bool
	llm     bool
	history bool
}

// app holds the wired components for one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	collector     metrics.Collector
	metricsServer *metrics.MetricsServer

	graph        *neo4j.Repository
	history      repositories.HistoryRepository
	schema       services.SchemaProvider
	executor     *services.SafeExecutor
	planExecutor *services.PlanExecutor
	pipeline     *services.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, n needs) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.startMetrics()

	if n.history && cfg.History.Enabled {
		history, err := duckdb.NewHistoryRepository(ctx, cfg.History.DSN, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		a.history = history
	}

	if !n.graph {
		return a, nil
	}

	graph, err := neo4j.Connect(ctx, neo4j.Config{
		URI:                   cfg.Neo4j.URI,
		Username:              cfg.Neo4j.Username,
		Password:              cfg.Neo4j.Password,
		Database:              cfg.Neo4j.Database,
		MaxConnectionPoolSize: cfg.Neo4j.MaxConnections,
		ConnectionTimeout:     cfg.Neo4j.ConnectionTimeout,
		ConnectRetries:        3,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	a.graph = graph

	if err := a.buildSchema(); err != nil {
		a.Close()
		return nil, err
	}

	serviceMetrics := &serviceMetricsAdapter{collector: a.collector}
	a.executor = services.NewSafeExecutor(
		graph,
		cfg.Execution.QueryTimeout,
		newServiceLogger(logger, "safe_executor"),
		serviceMetrics,
	)

	mode, err := services.ParseScheduleMode(cfg.Execution.ScheduleMode)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.planExecutor = services.NewPlanExecutor(
		a.executor,
		services.PlanExecutorConfig{
			MaxComplexity: cfg.Execution.MaxComplexity,
			QueryTimeout:  cfg.Execution.QueryTimeout,
			PlanDeadline:  cfg.Execution.PlanDeadline,
			Mode:          mode,
		},
		newServiceLogger(logger, "plan_executor"),
		serviceMetrics,
	)

	if !n.llm {
		return a, nil
	}

	model, err := llm.NewModel(ctx, llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}
	client := llm.NewClient(model, llm.ClientOptions{
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Timeout:           cfg.LLM.Timeout,
	}, logger)

	a.pipeline = services.NewPipeline(
		services.PipelineComponents{
			Schema:       a.schema,
			Generator:    llm.NewGenerator(client, cfg.LLM.DomainContext, cfg.LLM.Temperature),
			Planner:      llm.NewPlanner(client, cfg.LLM.DomainContext),
			Synthesizer:  llm.NewSynthesizer(client),
			Executor:     a.executor,
			PlanExecutor: a.planExecutor,
			History:      a.history,
		},
		services.PipelineConfig{
			MaxComplexity:    cfg.Execution.MaxComplexity,
			ApplySafetyLimit: cfg.Execution.ApplySafetyLimit,
			DefaultLimit:     cfg.Execution.DefaultLimit,
			SampleSize:       cfg.Execution.SampleSize,
		},
		newServiceLogger(logger, "pipeline"),
		serviceMetrics,
	)
	return a, nil
}

func (a *app) buildSchema() error {
	var source services.SchemaProvider
	if a.cfg.Schema.StaticFile != "" {
		static, err := schema.LoadStaticFile(a.cfg.Schema.StaticFile)
		if err != nil {
			return fmt.Errorf("failed to load schema file: %w", err)
		}
		source = static
	} else {
		source = schema.NewLoader(a.graph, schema.DefaultKeyEntities, a.logger)
	}
	a.schema = schema.NewCachedProvider(source, a.cfg.Schema.TTL, a.logger)
	return nil
}

func (a *app) startMetrics() {
	if !a.cfg.Metrics.Enabled {
		a.collector = metrics.NewNoOpCollector()
		return
	}

	a.collector = metrics.NewPrometheusCollector("cypherplan", nil)
	a.metricsServer = metrics.NewMetricsServer(a.cfg.Metrics.Address, a.cfg.Metrics.Path, nil)
	go func() {
		a.logger.Info().Str("address", a.cfg.Metrics.Address).Msg("Starting metrics server")
		if err := a.metricsServer.Start(); err != nil {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Close releases everything newApp opened. It is safe on a partial app.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Error closing graph connection")
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Error closing run history")
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}
}
