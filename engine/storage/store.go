// Package storage provides the history store the analytics engine reads
// runs from: an in-memory implementation for tests and small setups and
// a PostgreSQL-backed implementation for production.
package storage

import (
	"context"
	"errors"

	"github.com/evaldash/engine/types"
)

// ErrRunNotFound is returned when a run id does not exist in the store.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore persists and retrieves evaluation run records. Records
// are immutable after SaveRun.
type HistoryStore interface {
	SaveRun(ctx context.Context, run *types.RunRecord) error
	GetRun(ctx context.Context, id string) (*types.RunRecord, error)

	// ListRuns returns all runs, newest first. An empty project name
	// returns runs across all projects.
	ListRuns(ctx context.Context, project string) ([]*types.RunRecord, error)

	DeleteRun(ctx context.Context, id string) error
	Close() error
}
