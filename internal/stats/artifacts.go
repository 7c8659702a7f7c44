// Package stats writes per-run artifacts for headless training runs and keeps
// an index of them.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"neuraldrive/internal/model"
	"neuraldrive/internal/sim"
)

const runIndexFile = "run_index.json"

var artifactFiles = []string{"config.json", "generations.json", "summary.json", "distance_series.csv"}

type RunConfig struct {
	RunID       string     `json:"run_id"`
	Seed        int64      `json:"seed"`
	Generations int        `json:"generations"`
	MaxTicks    int        `json:"max_ticks"`
	TickMS      int        `json:"tick_ms"`
	SaveBest    bool       `json:"save_best"`
	Seeded      bool       `json:"seeded"`
	Simulation  sim.Config `json:"simulation"`
}

type RunSummary struct {
	Generations  int     `json:"generations"`
	Ticks        int     `json:"ticks"`
	BestDistance float64 `json:"best_distance"`
	Saves        int     `json:"saves"`
}

// RunArtifacts is everything recorded for one run. Reports are kept in the
// order the generations ended.
type RunArtifacts struct {
	Config  RunConfig
	Reports []model.GenerationReport
	Summary RunSummary
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Seed         int64   `json:"seed"`
	Generations  int     `json:"generations"`
	BestDistance float64 `json:"best_distance"`
}

// SeriesPoint is one row of distance_series.csv.
type SeriesPoint struct {
	Generation     int
	BestDistance   float64
	AverageFitness float64
	AlivePeak      int
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if strings.TrimSpace(artifacts.Config.RunID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	reports := artifacts.Reports
	if reports == nil {
		reports = []model.GenerationReport{}
	}
	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generations.json"), reports); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeDistanceSeries(filepath.Join(runDir, "distance_series.csv"), reports); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs newest first. Entries created at the same
// instant list the later appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

// ExportRunArtifacts copies a run's artifact files into outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func writeDistanceSeries(path string, reports []model.GenerationReport) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_distance", "average_fitness", "alive_peak"}); err != nil {
		return err
	}
	for _, r := range reports {
		if err := writer.Write([]string{
			strconv.Itoa(r.Generation),
			strconv.FormatFloat(r.BestDistance, 'f', -1, 64),
			strconv.FormatFloat(r.AverageFitness, 'f', -1, 64),
			strconv.Itoa(r.AlivePeak),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadDistanceSeries(baseDir, runID string) ([]SeriesPoint, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "distance_series.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []SeriesPoint{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("distance series header must have 4 columns")
	}

	series := make([]SeriesPoint, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		point, err := parseSeriesRow(record)
		if err != nil {
			return nil, false, err
		}
		series = append(series, point)
	}
	return series, true, nil
}

func parseSeriesRow(record []string) (SeriesPoint, error) {
	if len(record) < 4 {
		return SeriesPoint{}, fmt.Errorf("distance series row must have 4 columns")
	}
	generation, err := strconv.Atoi(record[0])
	if err != nil {
		return SeriesPoint{}, err
	}
	best, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return SeriesPoint{}, err
	}
	avg, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return SeriesPoint{}, err
	}
	peak, err := strconv.Atoi(record[3])
	if err != nil {
		return SeriesPoint{}, err
	}
	return SeriesPoint{Generation: generation, BestDistance: best, AverageFitness: avg, AlivePeak: peak}, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
