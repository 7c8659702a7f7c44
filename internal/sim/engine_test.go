package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"neuraldrive/internal/model"
	"neuraldrive/internal/nn"
	"neuraldrive/internal/road"
)

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 5
	cfg.TrafficCount = 6
	cfg.RoadWidth = 300
	cfg.ExtinctionDelayMS = 700
	return cfg
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Initialize(nil, t0); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero-population", mutate: func(c *Config) { c.PopulationSize = 0 }},
		{name: "zero-lanes", mutate: func(c *Config) { c.LaneCount = 0 }},
		{name: "negative-traffic", mutate: func(c *Config) { c.TrafficCount = -1 }},
		{name: "mutation-out-of-range", mutate: func(c *Config) { c.MutationRate = 1.5 }},
		{name: "no-rays", mutate: func(c *Config) { c.RayCount = 0 }},
		{name: "speed-range", mutate: func(c *Config) { c.TrafficSpeedMin = 3; c.TrafficSpeedMax = 2 }},
		{name: "nan-width", mutate: func(c *Config) { c.RoadWidth = math.NaN() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := smallConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg, rand.New(rand.NewSource(1))); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestInitializeBuildsPopulationAtSpawn(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)

	if len(e.Agents()) != cfg.PopulationSize {
		t.Fatalf("expected %d agents, got %d", cfg.PopulationSize, len(e.Agents()))
	}
	wantX := e.Road().LaneCenter(cfg.SpawnLane)
	for i, car := range e.Agents() {
		if car.Position.X != wantX || car.Position.Y != cfg.SpawnY {
			t.Fatalf("agent %d spawned at %+v", i, car.Position)
		}
		if car.Brain == nil || car.Sensor == nil {
			t.Fatalf("agent %d cannot sense", i)
		}
	}
	if len(e.Traffic()) < cfg.TrafficCount {
		t.Fatalf("expected at least %d traffic cars, got %d", cfg.TrafficCount, len(e.Traffic()))
	}
	if e.Generation() != 1 {
		t.Fatalf("expected generation 1, got %d", e.Generation())
	}
}

func TestInitializeSeedsFromSavedNetwork(t *testing.T) {
	cfg := smallConfig()
	saved, err := nn.New(cfg.NetworkShape(), rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	e, err := New(cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Initialize(saved, t0); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	first := e.Agents()[0].Brain
	if first == saved {
		t.Fatal("agent 0 must own a copy")
	}
	for i, row := range saved.Levels[0].Weights {
		for j, w := range row {
			if first.Levels[0].Weights[i][j] != w {
				t.Fatal("agent 0 must carry the saved network verbatim")
			}
		}
	}
	mutated := false
	for _, car := range e.Agents()[1:] {
		if car.Brain.Levels[1].Biases[0] != saved.Levels[1].Biases[0] {
			mutated = true
		}
	}
	if !mutated {
		t.Fatal("expected followers to be mutated")
	}
}

func TestInitializeRejectsMismatchedNetwork(t *testing.T) {
	e, err := New(smallConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	wrong, err := nn.New([]int{3, 2}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if err := e.Initialize(wrong, t0); !errors.Is(err, nn.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestStepBeforeInitialize(t *testing.T) {
	e, err := New(smallConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if alive, reset := e.Step(t0); alive != 0 || reset {
		t.Fatalf("unexpected step result: alive=%d reset=%t", alive, reset)
	}
}

func TestStepTracksStats(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)

	var alive int
	for i := 0; i < 30; i++ {
		alive, _ = e.Step(t0.Add(time.Duration(i) * 16 * time.Millisecond))
	}
	stats := e.Stats()
	if stats.Ticks != 30 {
		t.Fatalf("expected 30 ticks, got %d", stats.Ticks)
	}
	if stats.Alive != alive || stats.AlivePeak < alive || stats.AlivePeak > cfg.PopulationSize {
		t.Fatalf("unexpected alive counters: %+v (alive=%d)", stats, alive)
	}
	if stats.BestDistance < 0 {
		t.Fatalf("best distance must not be negative: %f", stats.BestDistance)
	}
	best, ok := e.Best()
	if !ok {
		t.Fatal("expected a best agent")
	}
	for _, car := range e.Agents() {
		if car.Fitness > best.Fitness {
			t.Fatalf("best agent is not the fittest: best=%f other=%f", best.Fitness, car.Fitness)
		}
	}

	sum := 0.0
	for _, car := range e.Agents() {
		sum += car.Fitness
	}
	if want := sum / float64(len(e.Agents())); math.Abs(stats.AverageFitness-want) > 1e-9 {
		t.Fatalf("unexpected average fitness: got=%f want=%f", stats.AverageFitness, want)
	}
}

func TestExtinctionResetAfterDelay(t *testing.T) {
	e := newEngine(t, smallConfig())
	for _, car := range e.Agents() {
		car.Damaged = true
	}

	for ms := 0; ms < 700; ms += 100 {
		alive, reset := e.Step(t0.Add(time.Duration(ms) * time.Millisecond))
		if alive != 0 {
			t.Fatalf("expected extinct population, alive=%d", alive)
		}
		if reset {
			t.Fatalf("reset requested early at %dms", ms)
		}
	}
	if _, reset := e.Step(t0.Add(700 * time.Millisecond)); !reset {
		t.Fatal("expected reset once the delay elapsed")
	}
	if _, reset := e.Step(t0.Add(750 * time.Millisecond)); reset {
		t.Fatal("timer must restart after firing")
	}
}

func TestExtinctionDisabled(t *testing.T) {
	cfg := smallConfig()
	cfg.AutoResetOnExtinction = false
	e := newEngine(t, cfg)
	for _, car := range e.Agents() {
		car.Damaged = true
	}
	for ms := 0; ms <= 5000; ms += 500 {
		if _, reset := e.Step(t0.Add(time.Duration(ms) * time.Millisecond)); reset {
			t.Fatal("reset requested with extinction disabled")
		}
	}
}

func TestResetGenerationEmitsReportAndClearsCounters(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)
	for i := 0; i < 40; i++ {
		e.Step(t0.Add(time.Duration(i) * 16 * time.Millisecond))
	}
	before := e.Stats()

	end := t0.Add(2 * time.Second)
	report, err := e.ResetGeneration(nil, model.ReasonManual, end, false)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if report.Generation != 1 {
		t.Fatalf("report must carry the finished generation, got %d", report.Generation)
	}
	if e.Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", e.Generation())
	}
	if report.BestDistance != before.BestDistance || report.AverageFitness != before.AverageFitness || report.AlivePeak != before.AlivePeak {
		t.Fatalf("report does not reflect finished generation: report=%+v stats=%+v", report, before)
	}
	if report.DurationMS != 2000 || !report.EndedAt.Equal(end) || report.Reason != model.ReasonManual {
		t.Fatalf("unexpected report timing: %+v", report)
	}
	if report.Config != cfg.Snapshot() {
		t.Fatalf("unexpected config snapshot: %+v", report.Config)
	}
	if s := e.Stats(); s.BestDistance != 0 || s.AverageFitness != 0 || s.Ticks != 0 {
		t.Fatalf("expected cleared stats, got %+v", s)
	}
	if !e.StartedAt().Equal(end) {
		t.Fatalf("expected generation start at reset time, got %v", e.StartedAt())
	}
	for _, car := range e.Agents() {
		if car.Damaged || car.Position.Y != cfg.SpawnY {
			t.Fatalf("expected fresh agents, got %+v", car.Position)
		}
	}
}

func TestResetGenerationKeepsTrafficSpacing(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)
	for i := 0; i < 60; i++ {
		e.Step(t0.Add(time.Duration(i) * 16 * time.Millisecond))
	}
	best, ok := e.Best()
	if !ok {
		t.Fatal("expected best agent")
	}
	shift := cfg.SpawnY - best.Position.Y
	before := make([]float64, len(e.Traffic()))
	for i, car := range e.Traffic() {
		before[i] = car.Position.Y
	}

	if _, err := e.ResetGeneration(nil, model.ReasonSettings, t0.Add(time.Second), true); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(e.Traffic()) != len(before) {
		t.Fatalf("traffic count changed: %d -> %d", len(before), len(e.Traffic()))
	}
	for i, car := range e.Traffic() {
		if math.Abs(car.Position.Y-(before[i]+shift)) > 1e-9 {
			t.Fatalf("traffic %d not shifted: got=%f want=%f", i, car.Position.Y, before[i]+shift)
		}
	}
}

func TestResetGenerationRejectsMismatchedNetworkWithoutSideEffects(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Step(t0)
	wrong, err := nn.New([]int{2, 2}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if _, err := e.ResetGeneration(wrong, model.ReasonBrainImport, t0, false); !errors.Is(err, nn.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if e.Generation() != 1 || e.Stats().Ticks != 1 {
		t.Fatalf("failed reset changed state: generation=%d ticks=%d", e.Generation(), e.Stats().Ticks)
	}
}

func TestApplyConfigDefersStructuralChanges(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)

	population := 8
	lanes := 4
	mutation := 0.3
	needsReset, err := e.ApplyConfig(ConfigPatch{PopulationSize: &population, LaneCount: &lanes, MutationRate: &mutation})
	if err != nil {
		t.Fatalf("apply config: %v", err)
	}
	if !needsReset {
		t.Fatal("expected structural change to need a reset")
	}
	if len(e.Agents()) != cfg.PopulationSize || e.Road().LaneCount != cfg.LaneCount {
		t.Fatal("structural change applied mid-generation")
	}
	if e.Config().MutationRate != 0.3 {
		t.Fatalf("expected mutation rate to apply immediately, got %f", e.Config().MutationRate)
	}

	report, err := e.ResetGeneration(nil, model.ReasonSettings, t0.Add(time.Second), true)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if report.Config.Population != cfg.PopulationSize {
		t.Fatalf("report must describe the finished generation, got %+v", report.Config)
	}
	if len(e.Agents()) != 8 || e.Road().LaneCount != 4 {
		t.Fatalf("structural change not applied: agents=%d lanes=%d", len(e.Agents()), e.Road().LaneCount)
	}
}

func TestApplyConfigRejectsInvalidPatch(t *testing.T) {
	e := newEngine(t, smallConfig())
	zero := 0
	if _, err := e.ApplyConfig(ConfigPatch{PopulationSize: &zero}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if e.PendingConfig().PopulationSize != 5 {
		t.Fatal("invalid patch must not be kept")
	}
	if needsReset, err := e.ApplyConfig(ConfigPatch{}); err != nil || needsReset {
		t.Fatalf("empty patch: needsReset=%t err=%v", needsReset, err)
	}
}

func TestResizeRoadRealignsWithoutPhysics(t *testing.T) {
	cfg := smallConfig()
	e := newEngine(t, cfg)
	for i := 0; i < 10; i++ {
		e.Step(t0.Add(time.Duration(i) * 16 * time.Millisecond))
	}
	prev := e.Road()
	lanes := make([]int, len(e.Traffic()))
	for i, car := range e.Traffic() {
		lanes[i] = prev.LaneIndex(car.Position.X)
	}
	e.Agents()[0].Damaged = true
	fitness := e.Agents()[1].Fitness

	if err := e.ResizeRoad(400, 600); err != nil {
		t.Fatalf("resize: %v", err)
	}
	next := e.Road()
	if next.LaneCount != prev.LaneCount || next.Left != 100 {
		t.Fatalf("unexpected road: %+v", next)
	}
	for i, car := range e.Traffic() {
		if car.Position.X != next.LaneCenter(lanes[i]) {
			t.Fatalf("traffic %d not on lane %d centre: x=%f", i, lanes[i], car.Position.X)
		}
	}
	if !e.Agents()[0].Damaged || e.Agents()[1].Damaged || e.Agents()[1].Fitness != fitness {
		t.Fatal("resize must not change damage or fitness")
	}
	if err := e.ResizeRoad(0, 0); !errors.Is(err, road.ErrInvalidConfig) {
		t.Fatalf("expected road config error, got %v", err)
	}
}
