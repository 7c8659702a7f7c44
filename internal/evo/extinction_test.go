package evo

import (
	"testing"
	"time"
)

func TestExtinctionWatchFiresAfterDelay(t *testing.T) {
	w := ExtinctionWatch{Delay: 700 * time.Millisecond}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if w.Observe(0, start) {
		t.Fatal("must not fire on the first extinct tick")
	}
	if !w.Pending() {
		t.Fatal("expected pending extinction")
	}
	if w.Observe(0, start.Add(699*time.Millisecond)) {
		t.Fatal("must not fire before the delay")
	}
	if !w.Observe(0, start.Add(700*time.Millisecond)) {
		t.Fatal("expected to fire at the delay")
	}
	if w.Pending() {
		t.Fatal("expected watch to clear after firing")
	}
}

func TestExtinctionWatchClearsOnSurvivor(t *testing.T) {
	w := ExtinctionWatch{Delay: 100 * time.Millisecond}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w.Observe(0, start)
	if w.Observe(1, start.Add(50*time.Millisecond)) {
		t.Fatal("must not fire while alive")
	}
	if w.Observe(0, start.Add(120*time.Millisecond)) {
		t.Fatal("timer must restart after a survivor was seen")
	}
	if !w.Observe(0, start.Add(220*time.Millisecond)) {
		t.Fatal("expected to fire a full delay after the restart")
	}
}

func TestExtinctionWatchZeroDelay(t *testing.T) {
	w := ExtinctionWatch{}
	if !w.Observe(0, time.Now()) {
		t.Fatal("zero delay fires immediately")
	}
}
