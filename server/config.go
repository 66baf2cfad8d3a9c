// Package server is the exploration dashboard: a JSON API over the feature
// table, the wave statistics and an optional evaluation run, plus on-demand
// PNG chart rendering. It replaces flipping through saved plot files.
package server

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/fluCast/waves"
)

// Config holds the dashboard settings. Values come from an optional YAML
// file, overridden by FLUCAST_* environment variables.
type Config struct {
	Addr string `yaml:"addr" envconfig:"ADDR"`

	// DataGlob selects the feature CSVs to load on startup.
	DataGlob string `yaml:"data_glob" envconfig:"DATA_GLOB"`

	// ResultsPath points at a saved evaluation artifact. Empty means the
	// forecast endpoints report not found.
	ResultsPath string `yaml:"results_path" envconfig:"RESULTS_PATH"`

	// DatabaseDSN enables the run history endpoints. Empty means the store
	// is not wired at all.
	DatabaseDSN string `yaml:"database_dsn" envconfig:"DATABASE_DSN"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`

	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// Wave thresholds used by the waves endpoints and the charts.
	OnsetThreshold    float64 `yaml:"onset_threshold" envconfig:"ONSET_THRESHOLD"`
	BoundaryThreshold float64 `yaml:"boundary_threshold" envconfig:"BOUNDARY_THRESHOLD"`
	SevereThreshold   float64 `yaml:"severe_threshold" envconfig:"SEVERE_THRESHOLD"`
}

// LoadConfig reads the YAML file if a path is given, applies FLUCAST_*
// environment overrides, fills defaults and validates.
func LoadConfig(yamlPath string) (Config, error) {
	var cfg Config

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", yamlPath, err)
		}
	}

	if err := envconfig.Process("FLUCAST", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefaults returns a copy with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataGlob == "" {
		cfg.DataGlob = "data/*.csv"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Chart rendering can take a moment on cold caches.
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	def := waves.DefaultThresholds()
	if cfg.OnsetThreshold == 0 {
		cfg.OnsetThreshold = def.Onset
	}
	if cfg.BoundaryThreshold == 0 {
		cfg.BoundaryThreshold = def.Boundary
	}
	if cfg.SevereThreshold == 0 {
		cfg.SevereThreshold = def.Severe
	}
	return cfg
}

// Validate rejects configurations the server cannot run with.
func (cfg Config) Validate() error {
	if cfg.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.DataGlob == "" {
		return fmt.Errorf("data_glob is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}
	if err := cfg.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

// Thresholds bundles the configured wave thresholds.
func (cfg Config) Thresholds() waves.Thresholds {
	return waves.Thresholds{
		Boundary: cfg.BoundaryThreshold,
		Onset:    cfg.OnsetThreshold,
		Severe:   cfg.SevereThreshold,
	}
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
