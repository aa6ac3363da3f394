// Package duckdb provides the DuckDB-backed run history store.
package duckdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

const defaultRecentLimit = 20

const createRunsTable = `CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                 VARCHAR PRIMARY KEY,
	question           VARCHAR NOT NULL,
	approach           VARCHAR,
	success            BOOLEAN,
	answer             VARCHAR,
	generated_query    VARCHAR,
	error_message      VARCHAR,
	error_stage        VARCHAR,
	fallback_reason    VARCHAR,
	total_records      INTEGER,
	successful_queries INTEGER,
	failed_queries     INTEGER,
	execution_time_ns  BIGINT,
	created_at         TIMESTAMP
)`

const insertRun = `INSERT INTO pipeline_runs (
	id, question, approach, success, answer, generated_query, error_message, error_stage,
	fallback_reason, total_records, successful_queries, failed_queries, execution_time_ns, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRuns = `SELECT
	id, question, approach, success, answer, generated_query, error_message, error_stage,
	fallback_reason, total_records, successful_queries, failed_queries, execution_time_ns, created_at
FROM pipeline_runs`

// historyRepository implements repositories.HistoryRepository for DuckDB.
type historyRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewHistoryRepository opens (or creates) the run history database at dsn.
// An empty dsn uses an in-memory database.
func NewHistoryRepository(ctx context.Context, dsn string, logger zerolog.Logger) (repositories.HistoryRepository, error) {
	logger = logger.With().Str("component", "history").Logger()

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryFailed, "failed to open history database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to connect to history database")
	}
	if _, err := db.ExecContext(ctx, createRunsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeHistoryFailed, "failed to create history table")
	}

	logger.Debug().Bool("in_memory", dsn == "").Msg("History database ready")
	return &historyRepository{db: db, logger: logger}, nil
}

// Record stores one run. A missing ID or timestamp is filled in.
func (r *historyRepository) Record(ctx context.Context, run models.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertRun,
		run.ID,
		run.Question,
		string(run.Approach),
		run.Success,
		run.Answer,
		run.GeneratedQuery,
		run.ErrorMessage,
		run.ErrorStage,
		run.FallbackReason,
		run.TotalRecords,
		run.SuccessfulQueries,
		run.FailedQueries,
		int64(run.ExecutionTime),
		run.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record run")
		return errors.Wrapf(err, errors.CodeHistoryFailed, "failed to record run %s", run.ID)
	}

	r.logger.Debug().Str("run_id", run.ID).Bool("success", run.Success).Msg("Run recorded")
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *historyRepository) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := r.db.QueryContext(ctx, selectRuns+" ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryFailed, "failed to query run history")
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryFailed, "failed to read run history")
	}
	return runs, nil
}

// Get returns the run with the given ID.
func (r *historyRepository) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.CodeNotFound, "run %s not found", id)
		}
		return nil, err
	}
	return &run, nil
}

// Close closes the database.
func (r *historyRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeHistoryFailed, "failed to close history database")
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (models.RunRecord, error) {
	var (
		run            models.RunRecord
		approach       sql.NullString
		answer         sql.NullString
		query          sql.NullString
		errMsg         sql.NullString
		errStage       sql.NullString
		fallback       sql.NullString
		success        sql.NullBool
		totalRecords   sql.NullInt64
		successful     sql.NullInt64
		failed         sql.NullInt64
		executionNanos sql.NullInt64
		createdAt      sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.Question, &approach, &success, &answer, &query, &errMsg, &errStage,
		&fallback, &totalRecords, &successful, &failed, &executionNanos, &createdAt,
	)
	if err == sql.ErrNoRows {
		return run, err
	}
	if err != nil {
		return run, errors.Wrap(err, errors.CodeHistoryFailed, "failed to scan run")
	}

	run.Approach = models.Approach(approach.String)
	run.Success = success.Bool
	run.Answer = answer.String
	run.GeneratedQuery = query.String
	run.ErrorMessage = errMsg.String
	run.ErrorStage = errStage.String
	run.FallbackReason = fallback.String
	run.TotalRecords = int(totalRecords.Int64)
	run.SuccessfulQueries = int(successful.Int64)
	run.FailedQueries = int(failed.Int64)
	run.ExecutionTime = time.Duration(executionNanos.Int64)
	if createdAt.Valid {
		run.CreatedAt = createdAt.Time.UTC()
	}
	return run, nil
}
