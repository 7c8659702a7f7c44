package evo

// FittestIndex returns the index of the highest fitness, or -1 for an empty
// slice. Ties keep the earliest index.
func FittestIndex(fitness []float64) int {
	best := -1
	for i, f := range fitness {
		if best < 0 || f > fitness[best] {
			best = i
		}
	}
	return best
}
