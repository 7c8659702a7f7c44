package sim

import "time"

// StepClock is a synthetic clock that advances by a fixed step on every read.
// Headless runs use it so that time-based policies do not depend on how fast
// the host can step the engine.
type StepClock struct {
	now  time.Time
	step time.Duration
}

func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, step: step}
}

func (c *StepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}
