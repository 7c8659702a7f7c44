package evo

import (
	"fmt"
	"math/rand"

	"neuraldrive/internal/nn"
)

// SeedSpec describes how to build the networks of a new generation.
type SeedSpec struct {
	Size  int
	Shape []int
	// Incumbent seeds the generation when set. It is copied verbatim into
	// slot 0 and passed through Mutation for every other slot.
	Incumbent *nn.Network
	Mutation  Operator
}

// SeedPopulation builds Size networks. Without an incumbent every network is
// freshly randomised.
func SeedPopulation(rng *rand.Rand, spec SeedSpec) ([]*nn.Network, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if spec.Size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}

	out := make([]*nn.Network, spec.Size)
	if spec.Incumbent == nil {
		for i := range out {
			net, err := nn.New(spec.Shape, rng)
			if err != nil {
				return nil, err
			}
			out[i] = net
		}
		return out, nil
	}

	if err := spec.Incumbent.Validate(); err != nil {
		return nil, fmt.Errorf("incumbent: %w", err)
	}
	if spec.Shape != nil && !sameShape(spec.Incumbent.Shape(), spec.Shape) {
		return nil, fmt.Errorf("%w: incumbent shape %v, want %v", nn.ErrInvalidShape, spec.Incumbent.Shape(), spec.Shape)
	}
	mutation := spec.Mutation
	if mutation == nil {
		mutation = CloneOperator{}
	}

	out[0] = CloneOperator{}.Apply(rng, spec.Incumbent)
	for i := 1; i < len(out); i++ {
		out[i] = mutation.Apply(rng, spec.Incumbent)
	}
	return out, nil
}

func sameShape(a, b []int) bool {
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
