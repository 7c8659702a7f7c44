package api

import "time"

// Config holds the run-history service settings. Zero rate-limit, body and
// retention values are honoured as given; use DefaultConfig for the usual
// starting point.
type Config struct {
	Host          string `json:"host" yaml:"host" ini:"host"`
	Port          int    `json:"port" yaml:"port" ini:"port"`
	DataFile      string `json:"data_file" yaml:"data_file" ini:"data_file"`
	APIKey        string `json:"api_key" yaml:"api_key" ini:"api_key"`
	AdminKey      string `json:"admin_key" yaml:"admin_key" ini:"admin_key"`
	AllowedOrigin string `json:"allowed_origin" yaml:"allowed_origin" ini:"allowed_origin"`
	// RateLimitWindowMS and RateLimitMax configure the per-client fixed window.
	RateLimitWindowMS int   `json:"rate_limit_window_ms" yaml:"rate_limit_window_ms" ini:"rate_limit_window_ms"`
	RateLimitMax      int   `json:"rate_limit_max" yaml:"rate_limit_max" ini:"rate_limit_max"`
	MaxBodyBytes      int64 `json:"max_body_bytes" yaml:"max_body_bytes" ini:"max_body_bytes"`
	// MaxRuns caps stored runs; zero keeps every run.
	MaxRuns int `json:"max_runs" yaml:"max_runs" ini:"max_runs"`
}

func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8787,
		DataFile:          "data/runs.json",
		AllowedOrigin:     "*",
		RateLimitWindowMS: 60000,
		RateLimitMax:      120,
		MaxBodyBytes:      65536,
		MaxRuns:           1000,
	}
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}
