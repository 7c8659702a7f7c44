package evo

import (
	"math"

	"neuraldrive/internal/nn"
)

// GenerationStats accumulates the per-generation figures that end up in a
// generation report.
type GenerationStats struct {
	Alive          int
	AlivePeak      int
	AverageFitness float64
	// FitnessSpread is the population standard deviation of fitness.
	FitnessSpread float64
	BestFitness   float64
	BestDistance  float64
	Ticks         int
}

// Observe folds one tick into the stats. bestProgress is the forward progress
// of the fittest agent; BestDistance only ever grows.
func (s *GenerationStats) Observe(fitness []float64, alive int, bestProgress float64) {
	s.Ticks++
	s.Alive = alive
	if alive > s.AlivePeak {
		s.AlivePeak = alive
	}

	s.AverageFitness, s.FitnessSpread, s.BestFitness = 0, 0, 0
	if len(fitness) > 0 {
		// Neither call can fail on a non-empty slice.
		s.AverageFitness, _ = nn.Avg(fitness)
		s.FitnessSpread, _ = nn.Std(fitness)
		s.BestFitness = fitness[FittestIndex(fitness)]
	}

	distance := math.Max(0, math.Round(bestProgress))
	if distance > s.BestDistance {
		s.BestDistance = distance
	}
}

func (s *GenerationStats) Reset() {
	*s = GenerationStats{}
}
