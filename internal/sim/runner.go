package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"neuraldrive/internal/model"
	"neuraldrive/internal/nn"
)

// ReportSink receives every generation report.
type ReportSink interface {
	Record(ctx context.Context, report model.GenerationReport) error
}

// NetworkKeeper loads and saves the network that seeds each generation.
type NetworkKeeper interface {
	Load(ctx context.Context) (*nn.Network, bool, error)
	Save(ctx context.Context, net *nn.Network) (*nn.Network, error)
}

type RunnerConfig struct {
	Engine *Engine
	Sink   ReportSink
	Keeper NetworkKeeper
	// SaveBest persists the fittest network whenever a generation beats the
	// best distance seen so far in this run.
	SaveBest bool
	Clock    func() time.Time
	// FrameInterval paces frames in wall time; zero runs flat out.
	FrameInterval time.Duration
	StepsPerFrame int
	// MaxTicks forces a manual reset after that many ticks in one generation.
	MaxTicks int
	// Generations stops the run after that many resets; zero runs until the
	// context is cancelled.
	Generations int
	OnFrame     func(Snapshot)
	OnReport    func(model.GenerationReport)
	Logger      *slog.Logger
}

type RunSummary struct {
	// Seeded reports whether the first generation grew from a saved network.
	Seeded       bool
	Generations  int
	Ticks        int
	BestDistance float64
	Saves        int
	LastReport   *model.GenerationReport
}

// Runner drives an Engine frame by frame. Pause, Resume and RequestReset may
// be called from other goroutines.
type Runner struct {
	cfg RunnerConfig

	paused         atomic.Bool
	resetRequested atomic.Bool

	saved   *nn.Network
	summary RunSummary
	genTick int
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StepsPerFrame <= 0 {
		cfg.StepsPerFrame = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}, nil
}

func (r *Runner) Pause()  { r.paused.Store(true) }
func (r *Runner) Resume() { r.paused.Store(false) }

func (r *Runner) Paused() bool {
	return r.paused.Load()
}

// RequestReset asks for a manual reset at the next tick.
func (r *Runner) RequestReset() {
	r.resetRequested.Store(true)
}

// Run initialises the engine and steps it until the generation budget is
// spent or ctx is cancelled. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	if r.cfg.Keeper != nil {
		saved, ok, err := r.cfg.Keeper.Load(ctx)
		if err != nil {
			return r.summary, fmt.Errorf("load saved network: %w", err)
		}
		if ok {
			r.saved = saved
		}
	}
	err := r.cfg.Engine.Initialize(r.saved, r.cfg.Clock())
	if r.saved != nil && errors.Is(err, nn.ErrInvalidShape) {
		// A stale saved network must not stop the simulation.
		r.cfg.Logger.Warn("saved network ignored", "shape", r.saved.Shape(), "want", r.cfg.Engine.Config().NetworkShape(), "error", err)
		r.saved = nil
		err = r.cfg.Engine.Initialize(nil, r.cfg.Clock())
	}
	if err != nil {
		return r.summary, fmt.Errorf("initialize engine: %w", err)
	}
	r.summary.Seeded = r.saved != nil
	r.cfg.Logger.Info("simulation started",
		"population", r.cfg.Engine.Config().PopulationSize,
		"traffic", len(r.cfg.Engine.Traffic()),
		"seeded", r.summary.Seeded,
	)

	var ticker *time.Ticker
	if r.cfg.FrameInterval > 0 {
		ticker = time.NewTicker(r.cfg.FrameInterval)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			return r.summary, nil
		}

		if !r.paused.Load() {
			done, err := r.frame(ctx)
			if err != nil {
				return r.summary, err
			}
			if done {
				return r.summary, nil
			}
			if r.cfg.OnFrame != nil {
				r.cfg.OnFrame(r.cfg.Engine.Snapshot())
			}
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return r.summary, nil
			case <-ticker.C:
			}
		} else if r.paused.Load() {
			select {
			case <-ctx.Done():
				return r.summary, nil
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (r *Runner) frame(ctx context.Context) (bool, error) {
	for i := 0; i < r.cfg.StepsPerFrame; i++ {
		now := r.cfg.Clock()
		_, extinct := r.cfg.Engine.Step(now)
		r.summary.Ticks++
		r.genTick++

		var reason model.ResetReason
		switch {
		case extinct:
			reason = model.ReasonExtinction
		case r.resetRequested.Swap(false):
			reason = model.ReasonManual
		case r.cfg.MaxTicks > 0 && r.genTick >= r.cfg.MaxTicks:
			reason = model.ReasonManual
		default:
			continue
		}

		if err := r.reset(ctx, reason, now); err != nil {
			return false, err
		}
		if r.cfg.Generations > 0 && r.summary.Generations >= r.cfg.Generations {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) reset(ctx context.Context, reason model.ResetReason, now time.Time) error {
	engine := r.cfg.Engine
	genStats := engine.Stats()
	distance := genStats.BestDistance

	if r.cfg.SaveBest && r.cfg.Keeper != nil && distance > r.summary.BestDistance {
		if best, ok := engine.Best(); ok && best.Brain != nil {
			stored, err := r.cfg.Keeper.Save(ctx, best.Brain)
			if err != nil {
				return fmt.Errorf("save best network: %w", err)
			}
			r.saved = stored
			r.summary.Saves++
		}
	}
	if distance > r.summary.BestDistance {
		r.summary.BestDistance = distance
	}

	report, err := engine.ResetGeneration(r.saved, reason, now, false)
	if err != nil {
		return fmt.Errorf("reset generation: %w", err)
	}
	r.genTick = 0
	r.summary.Generations++
	r.summary.LastReport = &report

	r.cfg.Logger.Info("generation reset",
		"generation", report.Generation,
		"reason", report.Reason,
		"best_distance", report.BestDistance,
		"average_fitness", report.AverageFitness,
		"fitness_spread", genStats.FitnessSpread,
		"alive_peak", report.AlivePeak,
	)
	if r.cfg.OnReport != nil {
		r.cfg.OnReport(report)
	}
	if r.cfg.Sink != nil {
		if err := r.cfg.Sink.Record(ctx, report); err != nil {
			r.cfg.Logger.Warn("record generation failed", "generation", report.Generation, "error", err)
		}
	}
	return nil
}
