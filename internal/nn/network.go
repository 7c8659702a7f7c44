package nn

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrInvalidShape = errors.New("invalid network shape")

// Level is one fully connected layer with a step activation. Weights are
// indexed [input][output]. Inputs and Outputs hold the most recent activation
// recorded by Activate and otherwise only carry the level's shape.
type Level struct {
	Inputs  []float64   `json:"inputs"`
	Outputs []float64   `json:"outputs"`
	Biases  []float64   `json:"biases"`
	Weights [][]float64 `json:"weights"`
}

// NewLevel allocates a level and draws every weight and bias from [-1, 1].
func NewLevel(inputCount, outputCount int, rng *rand.Rand) *Level {
	level := &Level{
		Inputs:  make([]float64, inputCount),
		Outputs: make([]float64, outputCount),
		Biases:  make([]float64, outputCount),
		Weights: make([][]float64, inputCount),
	}
	for i := range level.Weights {
		level.Weights[i] = make([]float64, outputCount)
	}
	level.Randomize(rng)
	return level
}

func (l *Level) Randomize(rng *rand.Rand) {
	for i := range l.Weights {
		for j := range l.Weights[i] {
			l.Weights[i][j] = RandomUnit(rng)
		}
	}
	for i := range l.Biases {
		l.Biases[i] = RandomUnit(rng)
	}
}

// Forward computes the level outputs without touching the level's buffers.
func (l *Level) Forward(inputs []float64) []float64 {
	if len(inputs) != len(l.Weights) {
		panic(fmt.Sprintf("nn: level expects %d inputs, got %d", len(l.Weights), len(inputs)))
	}
	outputs := make([]float64, len(l.Biases))
	for i := range outputs {
		sum := 0.0
		for j, input := range inputs {
			sum += input * l.Weights[j][i]
		}
		outputs[i] = Step(sum, l.Biases[i])
	}
	return outputs
}

func (l *Level) validate() error {
	if len(l.Weights) == 0 || len(l.Biases) == 0 {
		return fmt.Errorf("%w: level has no neurons", ErrInvalidShape)
	}
	if len(l.Inputs) != len(l.Weights) {
		return fmt.Errorf("%w: %d inputs but %d weight rows", ErrInvalidShape, len(l.Inputs), len(l.Weights))
	}
	if len(l.Outputs) != len(l.Biases) {
		return fmt.Errorf("%w: %d outputs but %d biases", ErrInvalidShape, len(l.Outputs), len(l.Biases))
	}
	for i, row := range l.Weights {
		if len(row) != len(l.Outputs) {
			return fmt.Errorf("%w: weight row %d has %d entries, want %d", ErrInvalidShape, i, len(row), len(l.Outputs))
		}
	}
	return nil
}

func (l *Level) clone() *Level {
	out := &Level{
		Inputs:  append([]float64(nil), l.Inputs...),
		Outputs: append([]float64(nil), l.Outputs...),
		Biases:  append([]float64(nil), l.Biases...),
		Weights: make([][]float64, len(l.Weights)),
	}
	for i, row := range l.Weights {
		out.Weights[i] = append([]float64(nil), row...)
	}
	return out
}

// Network chains levels so that each level's outputs feed the next level's
// inputs. The shape is fixed at construction; only weights and biases change.
type Network struct {
	Levels []*Level `json:"levels"`
}

// New builds a randomized network from per-layer neuron counts, e.g. [5, 6, 4].
func New(neuronCounts []int, rng *rand.Rand) (*Network, error) {
	if len(neuronCounts) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 layers, got %d", ErrInvalidShape, len(neuronCounts))
	}
	for i, count := range neuronCounts {
		if count <= 0 {
			return nil, fmt.Errorf("%w: layer %d has %d neurons", ErrInvalidShape, i, count)
		}
	}

	network := &Network{Levels: make([]*Level, 0, len(neuronCounts)-1)}
	for i := 0; i < len(neuronCounts)-1; i++ {
		network.Levels = append(network.Levels, NewLevel(neuronCounts[i], neuronCounts[i+1], rng))
	}
	return network, nil
}

// Shape returns the neuron count of every layer, input layer first.
func (n *Network) Shape() []int {
	if len(n.Levels) == 0 {
		return nil
	}
	shape := make([]int, 0, len(n.Levels)+1)
	shape = append(shape, len(n.Levels[0].Weights))
	for _, level := range n.Levels {
		shape = append(shape, len(level.Biases))
	}
	return shape
}

// FeedForward threads inputs through every level and returns fresh outputs.
func (n *Network) FeedForward(inputs []float64) []float64 {
	outputs := inputs
	for _, level := range n.Levels {
		outputs = level.Forward(outputs)
	}
	return outputs
}

// Activate is FeedForward that also records each level's inputs and outputs
// for later inspection through Snapshot.
func (n *Network) Activate(inputs []float64) []float64 {
	outputs := inputs
	for _, level := range n.Levels {
		next := level.Forward(outputs)
		copy(level.Inputs, outputs)
		copy(level.Outputs, next)
		outputs = next
	}
	return outputs
}

// Mutate nudges every bias and weight toward a fresh draw from [-1, 1].
// amount 0 leaves the network unchanged, amount 1 replaces every value.
func (n *Network) Mutate(rng *rand.Rand, amount float64) {
	amount = Sat(amount, 1, 0)
	for _, level := range n.Levels {
		for i := range level.Biases {
			level.Biases[i] = Lerp(level.Biases[i], RandomUnit(rng), amount)
		}
		for i := range level.Weights {
			for j := range level.Weights[i] {
				level.Weights[i][j] = Lerp(level.Weights[i][j], RandomUnit(rng), amount)
			}
		}
	}
}

func (n *Network) Clone() *Network {
	out := &Network{Levels: make([]*Level, len(n.Levels))}
	for i, level := range n.Levels {
		out.Levels[i] = level.clone()
	}
	return out
}

// Snapshot returns a deep copy safe to hand to readers outside the tick loop.
func (n *Network) Snapshot() []Level {
	out := make([]Level, len(n.Levels))
	for i, level := range n.Levels {
		out[i] = *level.clone()
	}
	return out
}

// Validate checks that the level chain is non-empty and dimensionally
// consistent.
func (n *Network) Validate() error {
	if n == nil || len(n.Levels) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidShape)
	}
	for i, level := range n.Levels {
		if level == nil {
			return fmt.Errorf("%w: level %d is missing", ErrInvalidShape, i)
		}
		if err := level.validate(); err != nil {
			return fmt.Errorf("level %d: %w", i, err)
		}
		if i > 0 && len(n.Levels[i-1].Outputs) != len(level.Inputs) {
			return fmt.Errorf("%w: level %d emits %d values but level %d takes %d",
				ErrInvalidShape, i-1, len(n.Levels[i-1].Outputs), i, len(level.Inputs))
		}
	}
	return nil
}
