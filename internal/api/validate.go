package api

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"neuraldrive/internal/model"
)

const maxRunIDLength = 80

// ParseRun validates a decoded run payload and builds the report to store.
// Numbers may arrive as JSON numbers or numeric strings. Every problem is
// reported; the report is only meaningful when the slice is empty.
func ParseRun(payload any, now time.Time) (model.GenerationReport, []string) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return model.GenerationReport{}, []string{"payload must be an object"}
	}

	var (
		errs   []string
		report model.GenerationReport
	)
	fail := func(msg string) { errs = append(errs, msg) }

	if v, ok := number(fields["generation"]); ok && isInteger(v) && inRange(v, 1, 1000000) {
		report.Generation = int(v)
	} else {
		fail("generation must be an integer between 1 and 1000000")
	}
	if v, ok := number(fields["bestDistance"]); ok && inRange(v, 0, 1e9) {
		report.BestDistance = v
	} else {
		fail("bestDistance must be between 0 and 1000000000")
	}
	if v, ok := number(fields["averageFitness"]); ok && inRange(v, -1e9, 1e9) {
		report.AverageFitness = v
	} else {
		fail("averageFitness must be a finite number")
	}
	if v, ok := number(fields["alivePeak"]); ok && isInteger(v) && inRange(v, 0, 10000) {
		report.AlivePeak = int(v)
	} else {
		fail("alivePeak must be an integer between 0 and 10000")
	}
	if v, ok := number(fields["durationMs"]); ok && inRange(v, 0, 86400000) {
		report.DurationMS = int64(math.Round(v))
	} else {
		fail("durationMs must be between 0 and 86400000")
	}

	report.Reason = model.ReasonManual
	if s, ok := fields["reason"].(string); ok {
		report.Reason = model.ResetReason(s)
	}
	if !report.Reason.Valid() {
		fail("reason is invalid")
	}

	report.EndedAt = now.UTC()
	if s, ok := fields["endedAt"].(string); ok {
		t, err := parseTimestamp(s)
		if err != nil {
			fail("endedAt must be a valid ISO date")
		} else {
			report.EndedAt = t.UTC()
		}
	}

	cfg, ok := fields["config"].(map[string]any)
	if !ok {
		fail("config must be an object")
	}
	if v, ok := number(cfg["population"]); ok && isInteger(v) && inRange(v, 20, 300) {
		report.Config.Population = int(v)
	} else {
		fail("config.population must be between 20 and 300")
	}
	if v, ok := number(cfg["trafficCount"]); ok && isInteger(v) && inRange(v, 10, 200) {
		report.Config.TrafficCount = int(v)
	} else {
		fail("config.trafficCount must be between 10 and 200")
	}
	if v, ok := number(cfg["mutationRate"]); ok && inRange(v, 0.01, 0.5) {
		report.Config.MutationRate = v
	} else {
		fail("config.mutationRate must be between 0.01 and 0.5")
	}
	if v, ok := number(cfg["laneCount"]); ok && isInteger(v) && inRange(v, 2, 5) {
		report.Config.LaneCount = int(v)
	} else {
		fail("config.laneCount must be between 2 and 5")
	}

	if len(errs) > 0 {
		return model.GenerationReport{}, errs
	}
	report.ID = runID(fields["id"])
	return report, nil
}

func runID(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.NewString()
	}
	if r := []rune(s); len(r) > maxRunIDLength {
		s = string(r[:maxRunIDLength])
	}
	return s
}

// number reads a finite float from a JSON number or a numeric string.
// Indexing a nil map yields nil, so a missing config object fails here too.
func number(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isInteger(v float64) bool {
	return v == math.Trunc(v)
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	if d, dateErr := time.Parse(time.DateOnly, s); dateErr == nil {
		return d, nil
	}
	return time.Time{}, err
}
