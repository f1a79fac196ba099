package store

import (
	"context"

	"github.com/me/ossim/pkg/model"
)

// Store defines the persistence layer for the coordinator's audit trail.
type Store interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// Audit records, in the order they were written
	RecordSnapshot(ctx context.Context, snap model.TableSnapshot) error
	RecordEvent(ctx context.Context, ev model.Event) error
	ListSnapshots(ctx context.Context, runID string) ([]model.TableSnapshot, error)
	ListEvents(ctx context.Context, runID string) ([]model.Event, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
