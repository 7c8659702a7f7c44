package storage

import (
	"context"
	"errors"
	"sort"

	"neuraldrive/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists trained networks and generation reports.
//
// ListReports returns reports newest first by EndedAt; a limit <= 0 returns
// every report. TrimReports keeps the newest keep reports and returns how many
// were removed.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, record model.NetworkRecord) error
	GetNetwork(ctx context.Context, id string) (model.NetworkRecord, bool, error)
	DeleteNetwork(ctx context.Context, id string) (bool, error)
	SaveReport(ctx context.Context, report model.GenerationReport) error
	GetReport(ctx context.Context, id string) (model.GenerationReport, bool, error)
	ListReports(ctx context.Context, limit int) ([]model.GenerationReport, error)
	DeleteReport(ctx context.Context, id string) (bool, error)
	TrimReports(ctx context.Context, keep int) (int, error)
}

// sortNewestFirst orders reports by EndedAt descending. Equal timestamps keep
// their current relative order.
func sortNewestFirst(reports []model.GenerationReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].EndedAt.After(reports[j].EndedAt)
	})
}

func limitReports(reports []model.GenerationReport, limit int) []model.GenerationReport {
	if limit > 0 && len(reports) > limit {
		return reports[:limit]
	}
	return reports
}

func cloneNetworkRecord(record model.NetworkRecord) model.NetworkRecord {
	out := record
	out.Levels = make([]model.LevelRecord, len(record.Levels))
	for i, level := range record.Levels {
		weights := make([][]float64, len(level.Weights))
		for j, row := range level.Weights {
			weights[j] = append([]float64(nil), row...)
		}
		out.Levels[i] = model.LevelRecord{
			Inputs:  append([]float64(nil), level.Inputs...),
			Outputs: append([]float64(nil), level.Outputs...),
			Biases:  append([]float64(nil), level.Biases...),
			Weights: weights,
		}
	}
	return out
}
