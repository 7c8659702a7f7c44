package evo

import "time"

// ExtinctionWatch signals a reset once no agent has been alive for Delay.
type ExtinctionWatch struct {
	Delay time.Duration

	since   time.Time
	pending bool
}

// Observe records the alive count at now and reports whether the population
// has been extinct for at least Delay. The watch clears itself after firing
// and whenever an agent is alive.
func (w *ExtinctionWatch) Observe(alive int, now time.Time) bool {
	if alive > 0 {
		w.Clear()
		return false
	}
	if !w.pending {
		w.pending = true
		w.since = now
	}
	if now.Sub(w.since) >= w.Delay {
		w.Clear()
		return true
	}
	return false
}

// Pending reports whether an extinction is currently being timed.
func (w *ExtinctionWatch) Pending() bool {
	return w.pending
}

func (w *ExtinctionWatch) Clear() {
	w.pending = false
	w.since = time.Time{}
}
