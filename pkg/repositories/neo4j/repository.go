// Package neo4j provides the Neo4j-backed graph repository.
package neo4j

import (
	"context"
	"math"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

// Config holds connection settings for the graph store.
type Config struct {
	URI                     string
	Username                string
	Password                string
	Database                string
	MaxConnectionPoolSize   int
	ConnectionTimeout       time.Duration
	MaxTransactionRetryTime time.Duration
	ConnectRetries          int
}

// DefaultConfig returns settings for a local Neo4j instance.
func DefaultConfig() Config {
	return Config{
		URI:                     "bolt://localhost:7687",
		Username:                "neo4j",
		Database:                "neo4j",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 15 * time.Second,
		ConnectRetries:          5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URI == "" {
		return errors.New(errors.CodeInvalidRequest, "neo4j uri is required")
	}
	if c.MaxConnectionPoolSize < 0 {
		return errors.New(errors.CodeInvalidRequest, "neo4j max connection pool size must not be negative")
	}
	if c.ConnectionTimeout < 0 {
		return errors.New(errors.CodeInvalidRequest, "neo4j connection timeout must not be negative")
	}
	return nil
}

// Repository implements repositories.GraphRepository over the Neo4j driver.
type Repository struct {
	driver   neo.DriverWithContext
	database string
	logger   zerolog.Logger
}

var _ repositories.GraphRepository = (*Repository)(nil)

// NewRepository wraps an existing driver.
func NewRepository(driver neo.DriverWithContext, database string, logger zerolog.Logger) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.With().Str("component", "neo4j").Logger(),
	}
}

// Connect creates a driver and verifies connectivity, retrying with
// exponential backoff.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth := neo.BasicAuth(cfg.Username, cfg.Password, "")
	configure := func(c *neo.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		}
		if cfg.MaxTransactionRetryTime > 0 {
			c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
		}
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		driver, err := neo.NewDriverWithContext(cfg.URI, auth, configure)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				logger.Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")
				return NewRepository(driver, cfg.Database, logger), nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CodeConnectionFailed, "neo4j connection attempt canceled")
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if cfg.ConnectionTimeout > 0 && delay > cfg.ConnectionTimeout {
			delay = cfg.ConnectionTimeout
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("Neo4j connection failed")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CodeConnectionFailed, "neo4j connection attempt canceled")
		}
	}

	return nil, errors.Wrapf(lastErr, errors.CodeConnectionFailed, "failed to connect to neo4j after %d attempts", retries)
}

// ExecuteRead runs query in a read-access session.
func (r *Repository) ExecuteRead(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error) {
	return r.run(ctx, query, params, neo.AccessModeRead)
}

// Execute runs query in a write-access session.
func (r *Repository) Execute(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error) {
	return r.run(ctx, query, params, neo.AccessModeWrite)
}

// Close releases the driver.
func (r *Repository) Close(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}
	if err := r.driver.Close(ctx); err != nil {
		return errors.Wrap(err, errors.CodeConnectionFailed, "failed to close neo4j driver")
	}
	r.driver = nil
	return nil
}

type collected struct {
	records []*neo.Record
	summary neo.ResultSummary
}

func (r *Repository) run(ctx context.Context, query string, params map[string]interface{}, mode neo.AccessMode) (*models.ExecutionResult, error) {
	if r.driver == nil {
		return nil, errors.New(errors.CodeConnectionFailed, "neo4j driver not connected")
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	start := time.Now()
	result := &models.ExecutionResult{
		Query:      query,
		Parameters: params,
		Records:    []models.Row{},
		Timestamp:  start,
	}

	session := r.driver.NewSession(ctx, neo.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   mode,
	})
	defer session.Close(ctx)

	work := func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return collected{records: records, summary: summary}, nil
	}

	var (
		out any
		err error
	)
	if mode == neo.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	result.ExecutionTime = time.Since(start)

	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("query", query).
			Dur("elapsed", result.ExecutionTime).
			Msg("Cypher query failed")
		result.ErrorMessage = err.Error()
		return result, nil
	}

	c := out.(collected)
	result.Records = convertRecords(c.records)
	if c.summary != nil && c.summary.Counters() != nil {
		result.Summary = summaryFrom(c.summary.Counters())
	}
	result.Success = true

	r.logger.Debug().
		Str("query", query).
		Int("records", len(result.Records)).
		Dur("elapsed", result.ExecutionTime).
		Msg("Cypher query completed")
	return result, nil
}

func convertRecords(records []*neo.Record) []models.Row {
	rows := make([]models.Row, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		row := make(models.Row, len(rec.Keys))
		for i, key := range rec.Keys {
			if i < len(rec.Values) {
				row[key] = convertValue(rec.Values[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// convertValue flattens graph entities to their property maps and renders
// temporal values as strings so rows stay JSON and Arrow friendly.
func convertValue(v any) any {
	switch val := v.(type) {
	case neo.Node:
		return convertMap(val.Props)
	case neo.Relationship:
		return convertMap(val.Props)
	case neo.Path:
		out := make([]any, 0, len(val.Nodes)+len(val.Relationships))
		for i, n := range val.Nodes {
			out = append(out, convertMap(n.Props))
			if i < len(val.Relationships) {
				out = append(out, convertMap(val.Relationships[i].Props))
			}
		}
		return out
	case neo.Date:
		return val.Time().Format("2006-01-02")
	case neo.LocalDateTime:
		return val.Time().Format("2006-01-02T15:04:05.999999999")
	case neo.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		return convertMap(val)
	default:
		return v
	}
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}

type writeCounters interface {
	NodesCreated() int
	NodesDeleted() int
	RelationshipsCreated() int
	RelationshipsDeleted() int
	PropertiesSet() int
}

func summaryFrom(c writeCounters) models.ExecutionSummary {
	return models.ExecutionSummary{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
	}
}
