package store

import (
	"context"

	"github.com/me/wftemplates/pkg/model"
)

// Store persists repository load history and the last served template set.
type Store interface {
	// Load history
	RecordLoad(ctx context.Context, run *model.LoadRun) error
	GetLoad(ctx context.Context, id string) (*model.LoadRun, error)
	ListLoads(ctx context.Context, opts model.ListOptions) ([]*model.LoadRun, int, error)

	// Template snapshot
	SaveSnapshot(ctx context.Context, runID string, templates []*model.Template) error
	LoadSnapshot(ctx context.Context) ([]*model.Template, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
