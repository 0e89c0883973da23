// Package store persists search runs so past prospecting sessions can be
// listed again from the CLI or served over HTTP. Two backends implement the
// same interface: embedded SQLite (the default, zero setup) and Postgres for
// shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/studio-carto/prospect-cli/internal/model"
)

// ErrRunNotFound is returned by run lookups when the id does not exist.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for search runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, request model.SearchRequest) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
