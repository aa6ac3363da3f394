// Package repositories defines interfaces for data access operations.
package repositories

import (
	"context"

	"github.com/TFMV/cypherplan/pkg/models"
)

// GraphRepository executes Cypher against the graph store.
//
// Both methods return a result even when the query fails; err is reserved for
// failures that prevented a result from being built at all.
type GraphRepository interface {
	// ExecuteRead runs a query in a read-only session.
	ExecuteRead(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error)
	// Execute runs a query in a general (read/write) session.
	Execute(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error)
}

// HistoryRepository persists pipeline runs.
type HistoryRepository interface {
	// Record stores one run.
	Record(ctx context.Context, run models.RunRecord) error
	// Recent returns the most recent runs, newest first.
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
	// Get returns a single run by ID.
	Get(ctx context.Context, id string) (*models.RunRecord, error)
	// Close releases the underlying storage.
	Close() error
}
