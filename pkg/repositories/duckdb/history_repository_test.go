package duckdb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

func newTestRepo(t *testing.T) repositories.HistoryRepository {
	t.Helper()
	repo, err := NewHistoryRepository(context.Background(), "", zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHistoryRepository_RecordAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := time.Date(1971, 5, 1, 12, 30, 0, 0, time.UTC)
	run := models.RunRecord{
		ID:                "run-1",
		Question:          "Compare U-Bahn and S-Bahn in 1971",
		Approach:          models.ApproachMultiQuery,
		Success:           true,
		Answer:            "The U-Bahn had more stations.",
		GeneratedQuery:    "-- QUERY 1 --\nMATCH (s) RETURN s",
		FallbackReason:    "",
		TotalRecords:      12,
		SuccessfulQueries: 2,
		FailedQueries:     1,
		ExecutionTime:     1500 * time.Millisecond,
		CreatedAt:         created,
	}
	require.NoError(t, repo.Record(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Question, got.Question)
	assert.Equal(t, models.ApproachMultiQuery, got.Approach)
	assert.True(t, got.Success)
	assert.Equal(t, 12, got.TotalRecords)
	assert.Equal(t, 2, got.SuccessfulQueries)
	assert.Equal(t, 1, got.FailedQueries)
	assert.Equal(t, 1500*time.Millisecond, got.ExecutionTime)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
}

func TestHistoryRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestHistoryRepository_FillsIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, models.RunRecord{Question: "q", ErrorStage: models.StageSchema}))

	runs, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
	assert.False(t, runs[0].CreatedAt.IsZero())
	assert.Equal(t, models.StageSchema, runs[0].ErrorStage)
}

func TestHistoryRepository_RecentOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, models.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Question:  fmt.Sprintf("question %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestHistoryRepository_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, models.RunRecord{ID: "dup", Question: "a"}))
	err := repo.Record(ctx, models.RunRecord{ID: "dup", Question: "b"})
	assert.Equal(t, errors.CodeHistoryFailed, errors.GetCode(err))
}

func TestHistoryRepository_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.duckdb")
	ctx := context.Background()

	repo, err := NewHistoryRepository(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(ctx, models.RunRecord{ID: "kept", Question: "q"}))
	require.NoError(t, repo.Close())

	reopened, err := NewHistoryRepository(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "q", got.Question)
}
