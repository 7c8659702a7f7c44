// Package history records generation reports locally and mirrors them to a
// remote run-history service.
package history

import (
	"context"
	"fmt"

	"neuraldrive/internal/model"
	"neuraldrive/internal/storage"
)

// Remote is the subset of the run-history service the recorder needs.
type Remote interface {
	CreateRun(ctx context.Context, report model.GenerationReport) (model.GenerationReport, error)
	ListRuns(ctx context.Context, limit int) ([]model.GenerationReport, error)
}

type Recorder struct {
	store  storage.Store
	remote Remote
	keep   int
}

type RecorderOption func(*Recorder)

// WithRemote forwards every recorded report.
func WithRemote(remote Remote) RecorderOption {
	return func(r *Recorder) { r.remote = remote }
}

// WithRetention keeps at most keep reports locally.
func WithRetention(keep int) RecorderOption {
	return func(r *Recorder) { r.keep = keep }
}

func NewRecorder(store storage.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record saves the report locally and then forwards it. A forwarding failure
// is returned but the local copy stays.
func (r *Recorder) Record(ctx context.Context, report model.GenerationReport) error {
	if err := r.store.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("save report %s: %w", report.ID, err)
	}
	if r.keep > 0 {
		if _, err := r.store.TrimReports(ctx, r.keep); err != nil {
			return fmt.Errorf("trim reports: %w", err)
		}
	}
	if r.remote == nil {
		return nil
	}
	if _, err := r.remote.CreateRun(ctx, report); err != nil {
		return fmt.Errorf("forward report %s: %w", report.ID, err)
	}
	return nil
}

// Sync pulls up to limit remote reports and stores those not known locally.
// It returns how many were merged.
func (r *Recorder) Sync(ctx context.Context, limit int) (int, error) {
	if r.remote == nil {
		return 0, fmt.Errorf("no remote configured")
	}
	remote, err := r.remote.ListRuns(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list remote runs: %w", err)
	}

	merged := 0
	for _, report := range remote {
		if report.ID == "" {
			continue
		}
		_, ok, err := r.store.GetReport(ctx, report.ID)
		if err != nil {
			return merged, err
		}
		if ok {
			continue
		}
		if err := r.store.SaveReport(ctx, report); err != nil {
			return merged, fmt.Errorf("save report %s: %w", report.ID, err)
		}
		merged++
	}
	return merged, nil
}

// List returns local reports newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]model.GenerationReport, error) {
	return r.store.ListReports(ctx, limit)
}
