package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewBuildsChainedLevels(t *testing.T) {
	network, err := New([]int{5, 6, 4}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if len(network.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(network.Levels))
	}
	shape := network.Shape()
	want := []int{5, 6, 4}
	for i := range want {
		if shape[i] != want[i] {
			t.Fatalf("unexpected shape: got=%v want=%v", shape, want)
		}
	}
	if err := network.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, level := range network.Levels {
		for _, bias := range level.Biases {
			if bias < -1 || bias > 1 {
				t.Fatalf("bias out of range: %f", bias)
			}
		}
		for _, row := range level.Weights {
			for _, w := range row {
				if w < -1 || w > 1 {
					t.Fatalf("weight out of range: %f", w)
				}
			}
		}
	}
}

func TestNewRejectsInvalidShape(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
	}{
		{name: "empty", counts: nil},
		{name: "single-layer", counts: []int{4}},
		{name: "zero-hidden", counts: []int{5, 0, 4}},
		{name: "zero-output", counts: []int{5, 6, 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.counts, rand.New(rand.NewSource(1)))
			if !errors.Is(err, ErrInvalidShape) {
				t.Fatalf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}

func TestLevelForwardStepActivation(t *testing.T) {
	level := &Level{
		Inputs:  make([]float64, 2),
		Outputs: make([]float64, 2),
		Biases:  []float64{0.5, 0.5},
		Weights: [][]float64{
			{1, -1},
			{0, 0.2},
		},
	}

	got := level.Forward([]float64{1, 1})
	if got[0] != 1 {
		t.Fatalf("expected first neuron to fire, got=%f", got[0])
	}
	if got[1] != 0 {
		t.Fatalf("expected second neuron to stay low, got=%f", got[1])
	}
	if level.Outputs[0] != 0 {
		t.Fatal("forward must not write the level buffers")
	}
}

func TestFeedForwardOutputsAreBinary(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	network, err := New([]int{5, 6, 4}, rng)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	for trial := 0; trial < 50; trial++ {
		inputs := make([]float64, 5)
		for i := range inputs {
			inputs[i] = rng.Float64()
		}
		outputs := network.FeedForward(inputs)
		if len(outputs) != 4 {
			t.Fatalf("unexpected output length: %d", len(outputs))
		}
		for _, v := range outputs {
			if v != 0 && v != 1 {
				t.Fatalf("expected binary output, got %f", v)
			}
		}
	}
}

func TestActivateRecordsLevelBuffers(t *testing.T) {
	network, err := New([]int{3, 2}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	inputs := []float64{0.25, 0, 1}
	outputs := network.Activate(inputs)

	level := network.Levels[0]
	for i := range inputs {
		if level.Inputs[i] != inputs[i] {
			t.Fatalf("unexpected recorded input %d: %f", i, level.Inputs[i])
		}
	}
	for i := range outputs {
		if level.Outputs[i] != outputs[i] {
			t.Fatalf("unexpected recorded output %d: %f", i, level.Outputs[i])
		}
	}

	outputs[0] = 42
	if level.Outputs[0] == 42 {
		t.Fatal("returned outputs must not alias level buffers")
	}
}

func TestFeedForwardPanicsOnDimensionMismatch(t *testing.T) {
	network, err := New([]int{3, 2}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched input length")
		}
	}()
	network.FeedForward([]float64{1})
}

func TestMutateZeroKeepsValues(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	network, err := New([]int{5, 6, 4}, rng)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	before := network.Clone()

	network.Mutate(rng, 0)

	for i, level := range network.Levels {
		for j, bias := range level.Biases {
			if bias != before.Levels[i].Biases[j] {
				t.Fatalf("bias %d/%d changed with amount 0", i, j)
			}
		}
		for j, row := range level.Weights {
			for k, w := range row {
				if w != before.Levels[i].Weights[j][k] {
					t.Fatalf("weight %d/%d/%d changed with amount 0", i, j, k)
				}
			}
		}
	}
}

func TestMutateOneReplacesValues(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	network, err := New([]int{8, 16, 8}, rng)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	for _, level := range network.Levels {
		for i := range level.Weights {
			for j := range level.Weights[i] {
				level.Weights[i][j] = 1
			}
		}
	}

	network.Mutate(rng, 1)

	var values []float64
	for _, level := range network.Levels {
		for _, row := range level.Weights {
			values = append(values, row...)
		}
	}
	mean, err := Avg(values)
	if err != nil {
		t.Fatalf("avg: %v", err)
	}
	if math.Abs(mean) > 0.2 {
		t.Fatalf("expected fresh draws centred on 0, mean=%f", mean)
	}
	for _, v := range values {
		if v < -1 || v > 1 {
			t.Fatalf("mutated value out of range: %f", v)
		}
	}
}

func TestMutatePreservesShape(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	network, err := New([]int{5, 6, 4}, rng)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	network.Mutate(rng, 0.3)
	if err := network.Validate(); err != nil {
		t.Fatalf("validate after mutate: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	network, err := New([]int{2, 2}, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	clone := network.Clone()
	clone.Levels[0].Weights[0][0] = 99
	clone.Levels[0].Biases[0] = 99
	if network.Levels[0].Weights[0][0] == 99 || network.Levels[0].Biases[0] == 99 {
		t.Fatal("clone shares storage with the original")
	}

	snapshot := network.Snapshot()
	snapshot[0].Weights[0][1] = 77
	if network.Levels[0].Weights[0][1] == 77 {
		t.Fatal("snapshot shares storage with the original")
	}
}

func TestValidateDetectsMismatch(t *testing.T) {
	tests := []struct {
		name    string
		network *Network
	}{
		{name: "nil", network: nil},
		{name: "no-levels", network: &Network{}},
		{
			name: "short-weight-row",
			network: &Network{Levels: []*Level{{
				Inputs: []float64{0}, Outputs: []float64{0, 0}, Biases: []float64{0, 0},
				Weights: [][]float64{{1}},
			}}},
		},
		{
			name: "bias-count",
			network: &Network{Levels: []*Level{{
				Inputs: []float64{0}, Outputs: []float64{0}, Biases: []float64{0, 0},
				Weights: [][]float64{{1}},
			}}},
		},
		{
			name: "broken-chain",
			network: &Network{Levels: []*Level{
				{Inputs: []float64{0}, Outputs: []float64{0, 0}, Biases: []float64{0, 0}, Weights: [][]float64{{1, 1}}},
				{Inputs: []float64{0, 0, 0}, Outputs: []float64{0}, Biases: []float64{0}, Weights: [][]float64{{1}, {1}, {1}}},
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.network.Validate(); !errors.Is(err, ErrInvalidShape) {
				t.Fatalf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}
