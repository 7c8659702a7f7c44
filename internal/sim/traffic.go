package sim

import (
	"math/rand"

	"neuraldrive/internal/agent"
	"neuraldrive/internal/road"
)

// generateTraffic schedules count vehicles lane by lane. Each lane keeps a
// cursor that moves away from the spawn point by a random gap per vehicle.
// A paired vehicle shares the primary's speed, sits one or two lanes over and
// slightly closer to the spawn point, and does not move its lane's cursor.
func generateTraffic(rng *rand.Rand, cfg Config, r road.Road) []*agent.Car {
	out := make([]*agent.Car, 0, cfg.TrafficCount)
	cursors := make([]float64, r.LaneCount)
	for i := range cursors {
		cursors[i] = cfg.SpawnY - cfg.TrafficLead
	}

	for i := 0; i < cfg.TrafficCount; i++ {
		lane := rng.Intn(r.LaneCount)
		cursors[lane] -= cfg.TrafficMinGap + rng.Float64()*cfg.TrafficGapJitter
		y := cursors[lane]
		speed := cfg.TrafficSpeedMin + rng.Float64()*(cfg.TrafficSpeedMax-cfg.TrafficSpeedMin)
		out = append(out, newTrafficCar(cfg, r.LaneCenter(lane), y, speed))

		if r.LaneCount > 1 && rng.Float64() < cfg.PairProbability {
			shift := 1 + rng.Intn(2)
			if shift >= r.LaneCount {
				shift = 1
			}
			pairLane := (lane + shift) % r.LaneCount
			pairY := y + rng.Float64()*cfg.PairOffset
			out = append(out, newTrafficCar(cfg, r.LaneCenter(pairLane), pairY, speed))
		}
	}
	return out
}

func newTrafficCar(cfg Config, x, y, speed float64) *agent.Car {
	return agent.New(x, y, agent.Dummy, agent.Options{
		Width:    cfg.CarWidth,
		Height:   cfg.CarHeight,
		MaxSpeed: speed,
	})
}
