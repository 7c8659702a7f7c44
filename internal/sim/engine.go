// Package sim drives a population of learning cars through traffic and
// manages the generation lifecycle.
package sim

import (
	"fmt"
	"math/rand"
	"time"

	"neuraldrive/internal/agent"
	"neuraldrive/internal/evo"
	"neuraldrive/internal/geom"
	"neuraldrive/internal/model"
	"neuraldrive/internal/nn"
	"neuraldrive/internal/road"
	"neuraldrive/internal/sensor"
)

// Engine owns the road, the learning population and the traffic. It is not
// safe for concurrent use; callers drive it from a single goroutine.
type Engine struct {
	cfg     Config
	pending Config
	rng     *rand.Rand

	road    road.Road
	agents  []*agent.Car
	traffic []*agent.Car
	fitness []float64
	best    int

	generation  int
	stats       evo.GenerationStats
	extinction  evo.ExtinctionWatch
	startedAt   time.Time
	initialized bool
}

func New(cfg Config, rng *rand.Rand) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	r, err := road.New(cfg.RoadCenterX, cfg.RoadWidth, cfg.LaneCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Engine{
		cfg:        cfg,
		pending:    cfg,
		rng:        rng,
		road:       r,
		best:       -1,
		generation: 1,
		extinction: evo.ExtinctionWatch{Delay: cfg.ExtinctionDelay()},
	}, nil
}

// Initialize builds the first generation. A saved network seeds the
// population; it must match the configured network shape.
func (e *Engine) Initialize(saved *nn.Network, now time.Time) error {
	agents, err := e.buildPopulation(e.cfg, e.road, saved)
	if err != nil {
		return err
	}
	e.agents = agents
	e.traffic = generateTraffic(e.rng, e.cfg, e.road)
	e.generation = 1
	e.resetCounters(now)
	e.initialized = true
	return nil
}

// Step advances traffic and then every agent by one tick. It returns the
// number of undamaged agents and whether the extinction policy asks for a
// reset.
func (e *Engine) Step(now time.Time) (int, bool) {
	if !e.initialized {
		return 0, false
	}

	for _, car := range e.traffic {
		car.Update(e.road, nil)
	}

	alive := 0
	for i, car := range e.agents {
		car.Update(e.road, e.traffic)
		if !car.Damaged {
			alive++
		}
		e.fitness[i] = car.Fitness
	}
	e.best = evo.FittestIndex(e.fitness)

	progress := 0.0
	if e.best >= 0 {
		progress = -e.agents[e.best].Position.Y
	}
	e.stats.Observe(e.fitness, alive, progress)

	shouldReset := false
	if e.cfg.AutoResetOnExtinction {
		shouldReset = e.extinction.Observe(alive, now)
	}
	return alive, shouldReset
}

// ResetGeneration closes the current generation and starts the next one. The
// returned report describes the generation that just ended. Pending config
// changes take effect here; when they change the road or traffic volume the
// traffic is regenerated regardless of keepTraffic. On error nothing changes.
func (e *Engine) ResetGeneration(saved *nn.Network, reason model.ResetReason, now time.Time, keepTraffic bool) (model.GenerationReport, error) {
	next := e.pending
	nextRoad := e.road
	rebuildRoad := next.LaneCount != e.cfg.LaneCount || next.RoadCenterX != e.cfg.RoadCenterX || next.RoadWidth != e.cfg.RoadWidth
	if rebuildRoad {
		r, err := road.New(next.RoadCenterX, next.RoadWidth, next.LaneCount)
		if err != nil {
			return model.GenerationReport{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		nextRoad = r
	}
	agents, err := e.buildPopulation(next, nextRoad, saved)
	if err != nil {
		return model.GenerationReport{}, err
	}

	report := evo.BuildReport(evo.ReportInput{
		Generation: e.generation,
		Stats:      e.stats,
		Reason:     reason,
		StartedAt:  e.startedAt,
		EndedAt:    now,
		Config:     e.cfg.Snapshot(),
	})

	anchor := geom.Point{Y: e.cfg.SpawnY}
	if e.best >= 0 && e.best < len(e.agents) {
		anchor = e.agents[e.best].Position
	}

	regenerate := !keepTraffic || rebuildRoad || next.TrafficCount != e.cfg.TrafficCount
	e.cfg = next
	e.road = nextRoad
	e.agents = agents
	e.extinction.Delay = next.ExtinctionDelay()

	if regenerate {
		e.traffic = generateTraffic(e.rng, e.cfg, e.road)
	} else {
		shift := e.cfg.SpawnY - anchor.Y
		for _, car := range e.traffic {
			car.MoveTo(geom.Point{X: car.Position.X, Y: car.Position.Y + shift})
		}
	}

	e.generation++
	e.resetCounters(now)
	e.initialized = true
	return report, nil
}

// ApplyConfig validates a partial update. Settings that only steer the tick
// loop apply at once; the rest wait for the next reset. The returned flag
// reports whether a reset is needed for the change to take effect.
func (e *Engine) ApplyConfig(patch ConfigPatch) (bool, error) {
	next := patch.Apply(e.pending)
	if err := next.Validate(); err != nil {
		return false, err
	}
	e.pending = next

	e.cfg.MutationRate = next.MutationRate
	e.cfg.TrafficSpeedMin = next.TrafficSpeedMin
	e.cfg.TrafficSpeedMax = next.TrafficSpeedMax
	e.cfg.TrafficMinGap = next.TrafficMinGap
	e.cfg.TrafficGapJitter = next.TrafficGapJitter
	e.cfg.ExtinctionDelayMS = next.ExtinctionDelayMS
	e.cfg.AutoResetOnExtinction = next.AutoResetOnExtinction
	e.extinction.Delay = next.ExtinctionDelay()
	if !next.AutoResetOnExtinction {
		e.extinction.Clear()
	}

	return e.cfg.structural(next), nil
}

// ResizeRoad replaces the road geometry and moves every car onto the centre
// of the lane it occupied. Damage and fitness are left alone.
func (e *Engine) ResizeRoad(centerX, width float64) error {
	next, err := road.New(centerX, width, e.road.LaneCount)
	if err != nil {
		return err
	}
	realign(e.road, next, e.agents)
	realign(e.road, next, e.traffic)
	e.road = next
	e.cfg.RoadCenterX, e.cfg.RoadWidth = centerX, width
	e.pending.RoadCenterX, e.pending.RoadWidth = centerX, width
	return nil
}

func realign(prev, next road.Road, cars []*agent.Car) {
	for _, car := range cars {
		lane := prev.LaneIndex(car.Position.X)
		car.MoveTo(geom.Point{X: next.LaneCenter(lane), Y: car.Position.Y})
	}
}

func (e *Engine) buildPopulation(cfg Config, r road.Road, saved *nn.Network) ([]*agent.Car, error) {
	nets, err := evo.SeedPopulation(e.rng, evo.SeedSpec{
		Size:      cfg.PopulationSize,
		Shape:     cfg.NetworkShape(),
		Incumbent: saved,
		Mutation:  evo.PerturbOperator{Amount: cfg.MutationRate},
	})
	if err != nil {
		return nil, err
	}

	agents := make([]*agent.Car, len(nets))
	x := r.LaneCenter(cfg.SpawnLane)
	for i, net := range nets {
		s, err := sensor.New(cfg.SensorConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		agents[i] = agent.New(x, cfg.SpawnY, agent.AI, agent.Options{
			Width:    cfg.CarWidth,
			Height:   cfg.CarHeight,
			MaxSpeed: cfg.MaxSpeed,
			Brain:    net,
			Sensor:   s,
		})
	}
	return agents, nil
}

func (e *Engine) resetCounters(now time.Time) {
	e.fitness = make([]float64, len(e.agents))
	e.best = -1
	if len(e.agents) > 0 {
		e.best = 0
	}
	e.stats.Reset()
	e.extinction.Clear()
	e.startedAt = now
}

func (e *Engine) Config() Config {
	return e.cfg
}

// PendingConfig is the configuration the next reset will apply.
func (e *Engine) PendingConfig() Config {
	return e.pending
}

func (e *Engine) Generation() int {
	return e.generation
}

func (e *Engine) Stats() evo.GenerationStats {
	return e.stats
}

func (e *Engine) Road() road.Road {
	return e.road
}

func (e *Engine) StartedAt() time.Time {
	return e.startedAt
}

// Agents exposes the live population. Callers must not retain it across a
// reset.
func (e *Engine) Agents() []*agent.Car {
	return e.agents
}

func (e *Engine) Traffic() []*agent.Car {
	return e.traffic
}

// BestIndex is the index of the fittest agent as of the last tick, or -1.
func (e *Engine) BestIndex() int {
	return e.best
}

// Best returns the fittest agent as of the last tick.
func (e *Engine) Best() (*agent.Car, bool) {
	if e.best < 0 || e.best >= len(e.agents) {
		return nil, false
	}
	return e.agents[e.best], true
}
