package storage

import (
	"context"
	"testing"
	"time"

	"neuraldrive/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testReport(id string, generation int, endedAt time.Time) model.GenerationReport {
	return model.GenerationReport{
		ID:             id,
		Generation:     generation,
		BestDistance:   float64(generation * 100),
		AverageFitness: -12.5,
		AlivePeak:      100,
		DurationMS:     1500,
		Reason:         model.ReasonExtinction,
		EndedAt:        endedAt,
		Config:         model.ConfigSnapshot{Population: 100, TrafficCount: 50, MutationRate: 0.1, LaneCount: 3},
	}
}

func testNetwork(id string) model.NetworkRecord {
	record := model.NetworkRecord{
		ID: id,
		Levels: []model.LevelRecord{{
			Inputs:  []float64{0, 0},
			Outputs: []float64{0},
			Biases:  []float64{0.25},
			Weights: [][]float64{{0.5}, {-0.5}},
		}},
		SavedAt: baseTime,
	}
	StampVersion(&record.VersionedRecord)
	return record
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	network := testNetwork("best")
	if err := store.SaveNetwork(ctx, network); err != nil {
		t.Fatalf("save network: %v", err)
	}
	loaded, ok, err := store.GetNetwork(ctx, "best")
	if err != nil {
		t.Fatalf("get network: %v", err)
	}
	if !ok {
		t.Fatal("expected stored network")
	}
	if len(loaded.Levels) != 1 || loaded.Levels[0].Weights[1][0] != -0.5 || loaded.Levels[0].Biases[0] != 0.25 {
		t.Fatalf("unexpected network loaded: %+v", loaded)
	}
	if _, ok, err := store.GetNetwork(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing network, ok=%t err=%v", ok, err)
	}

	removed, err := store.DeleteNetwork(ctx, "best")
	if err != nil || !removed {
		t.Fatalf("delete network: removed=%t err=%v", removed, err)
	}
	if removed, err := store.DeleteNetwork(ctx, "best"); err != nil || removed {
		t.Fatalf("second delete: removed=%t err=%v", removed, err)
	}

	reports := []model.GenerationReport{
		testReport("r1", 1, baseTime),
		testReport("r3", 3, baseTime.Add(2*time.Minute)),
		testReport("r2", 2, baseTime.Add(time.Minute)),
	}
	for _, report := range reports {
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("save report %s: %v", report.ID, err)
		}
	}

	listed, err := store.ListReports(ctx, 0)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if got := reportIDs(listed); !equalStrings(got, []string{"r3", "r2", "r1"}) {
		t.Fatalf("unexpected order: %v", got)
	}

	limited, err := store.ListReports(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if got := reportIDs(limited); !equalStrings(got, []string{"r3", "r2"}) {
		t.Fatalf("unexpected limited list: %v", got)
	}

	got, ok, err := store.GetReport(ctx, "r2")
	if err != nil || !ok {
		t.Fatalf("get report: ok=%t err=%v", ok, err)
	}
	if got.Generation != 2 || got.Reason != model.ReasonExtinction || !got.EndedAt.Equal(reports[2].EndedAt) {
		t.Fatalf("unexpected report: %+v", got)
	}
	if got.Config.LaneCount != 3 {
		t.Fatalf("unexpected config snapshot: %+v", got.Config)
	}

	updated := testReport("r1", 1, baseTime)
	updated.BestDistance = 999
	if err := store.SaveReport(ctx, updated); err != nil {
		t.Fatalf("resave report: %v", err)
	}
	all, err := store.ListReports(ctx, 0)
	if err != nil {
		t.Fatalf("list after resave: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected resave to replace, got %d reports", len(all))
	}
	if got, _, _ := store.GetReport(ctx, "r1"); got.BestDistance != 999 {
		t.Fatalf("expected updated report, got %+v", got)
	}

	removed, err = store.DeleteReport(ctx, "r2")
	if err != nil || !removed {
		t.Fatalf("delete report: removed=%t err=%v", removed, err)
	}
	if removed, err := store.DeleteReport(ctx, "r2"); err != nil || removed {
		t.Fatalf("second delete report: removed=%t err=%v", removed, err)
	}

	trimmed, err := store.TrimReports(ctx, 1)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if trimmed != 1 {
		t.Fatalf("expected 1 trimmed report, got %d", trimmed)
	}
	left, err := store.ListReports(ctx, 0)
	if err != nil {
		t.Fatalf("list after trim: %v", err)
	}
	if got := reportIDs(left); !equalStrings(got, []string{"r3"}) {
		t.Fatalf("expected newest report to survive trim, got %v", got)
	}
}

func reportIDs(reports []model.GenerationReport) []string {
	ids := make([]string, 0, len(reports))
	for _, report := range reports {
		ids = append(ids, report.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
