package evo

import (
	"math/rand"

	"neuraldrive/internal/nn"
)

// Operator derives a new network from a parent. Implementations never modify
// the parent.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, parent *nn.Network) *nn.Network
}

// CloneOperator copies the parent unchanged.
type CloneOperator struct{}

func (CloneOperator) Name() string {
	return "clone"
}

func (CloneOperator) Apply(_ *rand.Rand, parent *nn.Network) *nn.Network {
	return parent.Clone()
}

// PerturbOperator copies the parent and nudges every weight and bias toward a
// fresh random draw by Amount.
type PerturbOperator struct {
	Amount float64
}

func (PerturbOperator) Name() string {
	return "perturb"
}

func (o PerturbOperator) Apply(rng *rand.Rand, parent *nn.Network) *nn.Network {
	child := parent.Clone()
	child.Mutate(rng, o.Amount)
	return child
}
