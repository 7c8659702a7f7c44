package evo

import (
	"time"

	"github.com/google/uuid"

	"neuraldrive/internal/model"
)

// ReportInput is everything needed to close out a generation.
type ReportInput struct {
	Generation int
	Stats      GenerationStats
	Reason     model.ResetReason
	StartedAt  time.Time
	EndedAt    time.Time
	Config     model.ConfigSnapshot
}

// BuildReport creates the immutable report for a finished generation.
func BuildReport(in ReportInput) model.GenerationReport {
	reason := in.Reason
	if !reason.Valid() {
		reason = model.ReasonManual
	}
	duration := in.EndedAt.Sub(in.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	return model.GenerationReport{
		ID:             uuid.NewString(),
		Generation:     in.Generation,
		BestDistance:   in.Stats.BestDistance,
		AverageFitness: in.Stats.AverageFitness,
		AlivePeak:      in.Stats.AlivePeak,
		DurationMS:     duration,
		Reason:         reason,
		EndedAt:        in.EndedAt.UTC(),
		Config:         in.Config,
	}
}
