package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Step is the hard threshold activation used by every level: the bias is the
// threshold the weighted sum has to exceed, not an additive offset.
func Step(sum, threshold float64) float64 {
	if sum > threshold {
		return 1
	}
	return 0
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// RandomUnit draws uniformly from [-1, 1).
func RandomUnit(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// Avg returns the arithmetic mean of values.
func Avg(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("values must not be empty")
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values)), nil
}

// Std returns population standard deviation.
func Std(values []float64) (float64, error) {
	mean, err := Avg(values)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, value := range values {
		diff := mean - value
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values))), nil
}
