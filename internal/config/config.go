// Package config loads simulation and service settings from YAML, INI or JSON
// files and overlays the service environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"neuraldrive/internal/api"
	"neuraldrive/internal/sim"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// File is the on-disk configuration. Keys missing from a file keep their
// defaults.
type File struct {
	Simulation sim.Config `json:"simulation" yaml:"simulation"`
	Service    api.Config `json:"service" yaml:"service"`
}

func Default() File {
	return File{
		Simulation: sim.DefaultConfig(),
		Service:    api.DefaultConfig(),
	}
}

// Load reads path, choosing the decoder by extension (.yaml, .yml, .ini or
// .json), and validates the simulation section. An empty path returns the
// defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = loadYAML(path, &cfg)
	case ".ini":
		err = loadINI(path, &cfg)
	case ".json":
		err = loadJSON(path, &cfg)
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return File{}, err
	}
	if err := cfg.Simulation.Validate(); err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func loadINI(path string, cfg *File) error {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", path, err)
	}
	if err := file.Section("simulation").MapTo(&cfg.Simulation); err != nil {
		return fmt.Errorf("failed to map [simulation] section: %w", err)
	}
	if err := file.Section("service").MapTo(&cfg.Service); err != nil {
		return fmt.Errorf("failed to map [service] section: %w", err)
	}
	return nil
}

func loadJSON(path string, cfg *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the service environment variables read through lookup.
// Numeric values that do not parse, or that are negative where a count is
// expected, are ignored.
func ApplyEnv(svc *api.Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, nonNegative bool) (int64, bool) {
		v, ok := lookup(key)
		if !ok {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || (nonNegative && n < 0) {
			return 0, false
		}
		return n, true
	}

	str("HOST", &svc.Host)
	str("DATA_FILE", &svc.DataFile)
	str("API_KEY", &svc.APIKey)
	str("ADMIN_KEY", &svc.AdminKey)
	str("ALLOWED_ORIGIN", &svc.AllowedOrigin)
	if n, ok := integer("PORT", false); ok {
		svc.Port = int(n)
	}
	if n, ok := integer("RATE_LIMIT_WINDOW_MS", true); ok {
		svc.RateLimitWindowMS = int(n)
	}
	if n, ok := integer("RATE_LIMIT_MAX", true); ok {
		svc.RateLimitMax = int(n)
	}
	if n, ok := integer("MAX_BODY_BYTES", true); ok {
		svc.MaxBodyBytes = n
	}
	if n, ok := integer("MAX_RUNS", true); ok {
		svc.MaxRuns = int(n)
	}
}
