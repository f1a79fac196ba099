package scheduler

import (
	"context"
	"errors"

	"github.com/me/ossim/pkg/model"
)

// Recorder receives the coordinator's audit trail.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap model.TableSnapshot) error
	RecordEvent(ctx context.Context, ev model.Event) error
}

// MultiRecorder fans records out to several recorders. Every recorder sees
// every record even when an earlier one fails.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordSnapshot(ctx context.Context, snap model.TableSnapshot) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) RecordEvent(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopRecorder struct{}

func (nopRecorder) RecordSnapshot(context.Context, model.TableSnapshot) error { return nil }
func (nopRecorder) RecordEvent(context.Context, model.Event) error            { return nil }
