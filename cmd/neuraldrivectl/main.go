package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"neuraldrive/internal/api"
	"neuraldrive/internal/brain"
	"neuraldrive/internal/config"
	"neuraldrive/internal/history"
	"neuraldrive/internal/model"
	"neuraldrive/internal/sim"
	"neuraldrive/internal/stats"
	"neuraldrive/internal/storage"
	"neuraldrive/internal/supervisor"
)

const (
	defaultStoreKind = "json"
	defaultDataFile  = "neuraldrive.json"
)

var stdout io.Writer = os.Stdout

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "brain":
		return runBrain(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind *string
	path *string
}

func addStoreFlags(fs *flag.FlagSet, defaultPath string) storeFlags {
	return storeFlags{
		kind: fs.String("store", defaultStoreKind, "store backend: memory|json|sqlite"),
		path: fs.String("db-path", defaultPath, "data file for the json and sqlite stores"),
	}
}

func (f storeFlags) open(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.NewStore(*f.kind, *f.path)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = storage.CloseIfSupported(store) }
	if err := store.Init(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("init %s store: %w", *f.kind, err)
	}
	return store, closeStore, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (.yaml, .ini or .json)")
	stores := addStoreFlags(fs, defaultDataFile)
	seed := fs.Int64("seed", 1, "random seed")
	generations := fs.Int("generations", 5, "generations to run; 0 runs until interrupted")
	maxTicks := fs.Int("max-ticks", 3000, "ticks before a generation is reset manually; 0 disables")
	tickMS := fs.Int("tick-ms", 16, "simulated milliseconds per tick")
	saveBest := fs.Bool("save-best", false, "persist the best network when the distance record improves")
	remote := fs.String("remote", "", "run-history service base URL")
	apiKey := fs.String("api-key", "", "run-history service api key")
	artifactsDir := fs.String("artifacts", "", "directory for run artifacts; empty skips them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *generations < 0 {
		return errors.New("generations must be >= 0")
	}
	if *tickMS <= 0 {
		return errors.New("tick-ms must be > 0")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := stores.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	recorderOpts := []history.RecorderOption{history.WithRetention(cfg.Service.MaxRuns)}
	if *remote != "" {
		recorderOpts = append(recorderOpts, history.WithRemote(history.NewClient(*remote, history.WithAPIKey(*apiKey))))
	}

	engine, err := sim.New(cfg.Simulation, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	keeper := brain.NewKeeper(store)

	var reports []model.GenerationReport
	createdAt := time.Now().UTC()
	clock := sim.NewStepClock(createdAt, time.Duration(*tickMS)*time.Millisecond)
	runner, err := sim.NewRunner(sim.RunnerConfig{
		Engine:      engine,
		Sink:        history.NewRecorder(store, recorderOpts...),
		Keeper:      keeper,
		SaveBest:    *saveBest,
		Clock:       clock.Now,
		MaxTicks:    *maxTicks,
		Generations: *generations,
		OnReport: func(report model.GenerationReport) {
			reports = append(reports, report)
			printReport(report)
		},
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "completed %d generations in %s ticks: best distance %s, saves %d\n",
		summary.Generations,
		humanize.Comma(int64(summary.Ticks)),
		humanize.Comma(int64(summary.BestDistance)),
		summary.Saves,
	)

	if *artifactsDir == "" {
		return nil
	}
	runID := uuid.NewString()
	runDir, err := stats.WriteRunArtifacts(*artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:       runID,
			Seed:        *seed,
			Generations: *generations,
			MaxTicks:    *maxTicks,
			TickMS:      *tickMS,
			SaveBest:    *saveBest,
			Seeded:      summary.Seeded,
			Simulation:  cfg.Simulation,
		},
		Reports: reports,
		Summary: stats.RunSummary{
			Generations:  summary.Generations,
			Ticks:        summary.Ticks,
			BestDistance: summary.BestDistance,
			Saves:        summary.Saves,
		},
	})
	if err != nil {
		return err
	}
	if err := stats.AppendRunIndex(*artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		CreatedAtUTC: createdAt.Format(time.RFC3339),
		Seed:         *seed,
		Generations:  summary.Generations,
		BestDistance: summary.BestDistance,
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run_id=%s artifacts=%s\n", runID, runDir)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dir := fs.String("artifacts", "runs", "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no runs")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s seed=%d generations=%d best_distance=%s\n",
			e.RunID, e.CreatedAtUTC, e.Seed, e.Generations, humanize.Comma(int64(e.BestDistance)))
	}
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("artifacts", "runs", "run artifacts directory")
	runID := fs.String("run-id", "", "run id to export; defaults to the newest run")
	out := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id := *runID
	if id == "" {
		entries, err := stats.ListRunIndex(*dir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("no runs to export")
		}
		id = entries[0].RunID
	}
	runCfg, ok, err := stats.ReadRunConfig(*dir, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	dst, err := stats.ExportRunArtifacts(*dir, id, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s seed=%d generations=%d population=%d seeded=%t to=%s\n",
		id, runCfg.Seed, runCfg.Generations, runCfg.Simulation.PopulationSize, runCfg.Seeded, dst)
	return nil
}

func printReport(report model.GenerationReport) {
	fmt.Fprintf(stdout, "generation %d ended (%s): best %s avg %.2f peak %d\n",
		report.Generation,
		report.Reason,
		humanize.Comma(int64(report.BestDistance)),
		report.AverageFitness,
		report.AlivePeak,
	)
}

func runBrain(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing brain action")
	}
	action := args[0]
	switch action {
	case "show", "export", "import", "clear":
	default:
		return usageError(fmt.Sprintf("unknown brain action: %s", action))
	}

	fs := flag.NewFlagSet("brain "+action, flag.ContinueOnError)
	configPath := fs.String("config", "", "config file whose network shape imports must match")
	stores := addStoreFlags(fs, defaultDataFile)
	file := fs.String("file", "", "network document to read or write; export defaults to stdout")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := stores.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	keeper := brain.NewKeeper(store, brain.WithShape(cfg.Simulation.NetworkShape()))

	switch action {
	case "show":
		record, ok, err := store.GetNetwork(ctx, brain.DefaultKey)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "no saved network")
			return nil
		}
		net, err := brain.FromRecord(record)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "network %s: shape %s, %s parameters, saved %s\n",
			record.ID, formatShape(net.Shape()), humanize.Comma(int64(parameterCount(record))), humanize.Time(record.SavedAt))
		return nil
	case "export":
		net, ok, err := keeper.Load(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no saved network to export")
		}
		data, err := keeper.Export(net)
		if err != nil {
			return err
		}
		if *file == "" {
			_, err = fmt.Fprintln(stdout, string(data))
			return err
		}
		if err := os.WriteFile(*file, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "exported %s to %s\n", formatShape(net.Shape()), *file)
		return nil
	case "import":
		if *file == "" {
			return errors.New("import requires -file")
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		net, err := keeper.Import(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %s\n", formatShape(net.Shape()))
		return nil
	case "clear":
		if err := keeper.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "cleared saved network")
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing history action")
	}
	action := args[0]

	fs := flag.NewFlagSet("history "+action, flag.ContinueOnError)
	stores := addStoreFlags(fs, defaultDataFile)
	limit := fs.Int("limit", 20, "max runs")
	jsonOut := fs.Bool("json", false, "emit runs as JSON")
	remote := fs.String("remote", "", "run-history service base URL")
	apiKey := fs.String("api-key", "", "run-history service api key")
	adminKey := fs.String("admin-key", "", "run-history service admin key")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *limit < 0 {
		return errors.New("limit must be >= 0")
	}

	client := func() (*history.Client, error) {
		if *remote == "" {
			return nil, fmt.Errorf("history %s requires -remote", action)
		}
		return history.NewClient(*remote, history.WithAPIKey(*apiKey), history.WithAdminKey(*adminKey)), nil
	}

	switch action {
	case "list":
		store, closeStore, err := stores.open(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		reports, err := history.NewRecorder(store).List(ctx, *limit)
		if err != nil {
			return err
		}
		return printReports(reports, *jsonOut)
	case "sync":
		c, err := client()
		if err != nil {
			return err
		}
		store, closeStore, err := stores.open(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		merged, err := history.NewRecorder(store, history.WithRemote(c)).Sync(ctx, *limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "merged %d runs\n", merged)
		return nil
	case "delete":
		if fs.NArg() != 1 {
			return errors.New("history delete requires a run id")
		}
		c, err := client()
		if err != nil {
			return err
		}
		deleted, err := c.DeleteRun(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %d runs\n", deleted)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown history action: %s", action))
	}
}

func printReports(reports []model.GenerationReport, asJSON bool) error {
	if asJSON {
		data, err := storage.EncodeReports(reports)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(stdout, "no runs")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(stdout, "%s gen=%d reason=%s best=%s avg=%.2f peak=%d duration=%s ended=%s\n",
			r.ID,
			r.Generation,
			r.Reason,
			humanize.Comma(int64(r.BestDistance)),
			r.AverageFitness,
			r.AlivePeak,
			time.Duration(r.DurationMS)*time.Millisecond,
			humanize.Time(r.EndedAt),
		)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (.yaml, .ini or .json)")
	stores := addStoreFlags(fs, "")
	simulate := fs.Bool("simulate", false, "drive a live simulation and stream snapshots")
	seed := fs.Int64("seed", 1, "random seed for -simulate")
	frameMS := fs.Int("frame-ms", 16, "wall-clock milliseconds per simulation frame")
	saveBest := fs.Bool("save-best", false, "persist the best network when the distance record improves")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	config.ApplyEnv(&cfg.Service, os.LookupEnv)
	if *stores.path == "" {
		*stores.path = cfg.Service.DataFile
	}

	store, closeStore, err := stores.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []api.Option{api.WithLogger(slog.Default())}
	var (
		srv    *api.Server
		runner *sim.Runner
	)
	if *simulate {
		engine, err := sim.New(cfg.Simulation, rand.New(rand.NewSource(*seed)))
		if err != nil {
			return err
		}
		runner, err = sim.NewRunner(sim.RunnerConfig{
			Engine:        engine,
			Sink:          history.NewRecorder(store, history.WithRetention(cfg.Service.MaxRuns)),
			Keeper:        brain.NewKeeper(store),
			SaveBest:      *saveBest,
			FrameInterval: time.Duration(*frameMS) * time.Millisecond,
			OnFrame: func(snap sim.Snapshot) {
				if err := srv.Publish(snap); err != nil {
					slog.Warn("publish snapshot failed", "error", err)
				}
			},
			Logger: slog.Default(),
		})
		if err != nil {
			return err
		}
		opts = append(opts, api.WithController(runner))
	}

	srv = api.NewServer(cfg.Service, store, opts...)
	if runner != nil {
		sup := supervisor.New(supervisor.DefaultPolicy(), supervisor.Hooks{
			OnRestart: func(name string, err error, restarts int) {
				slog.Warn("task restarting", "task", name, "restarts", restarts, "error", err)
			},
			OnGiveUp: func(name string, err error, restarts int) {
				slog.Error("task gave up", "task", name, "restarts", restarts, "error", err)
			},
		})
		defer func() {
			sup.StopAll()
			for _, st := range sup.Children() {
				slog.Info("task stopped", "task", st.Name, "restarts", st.Restarts, "gave_up", st.GaveUp)
			}
		}()
		spec := supervisor.Spec{Name: "simulation", Restart: supervisor.RestartTransient}
		if err := sup.Start(ctx, spec, func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	return srv.ListenAndServe(ctx)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, "-")
}

func parameterCount(record model.NetworkRecord) int {
	n := 0
	for _, level := range record.Levels {
		n += len(level.Biases)
		for _, row := range level.Weights {
			n += len(row)
		}
	}
	return n
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: neuraldrivectl <run|runs|export|brain show|export|import|clear|history list|sync|delete|serve> [flags]", msg)
}
