// Package forecast trains and evaluates the wave classifiers: one model per
// forecast horizon, trained on rolling windows of the feature table and scored
// season by season.
package forecast

import (
	"fmt"
	"hash/fnv"
	"runtime"

	"github.com/Noofbiz/fluCast/neural"
)

// Config collects the experiment tunables. The zero value is unusable; call
// WithDefaults or unmarshal one of the JSON presets first.
type Config struct {
	// Horizons lists the forecast horizons (in weeks) to train models for.
	Horizons []int `json:"horizons"`

	// Window is the number of consecutive weeks of signals per example.
	Window int `json:"window"`

	// Threshold is the rate (per 100k) the classifier predicts crossings of.
	Threshold float64 `json:"threshold"`

	// Cutoff turns predicted probabilities into yes/no calls.
	Cutoff float64 `json:"cutoff"`

	// States restricts training and evaluation; empty means all states.
	States []string `json:"states,omitempty"`

	// Model hyperparameters, shared by every horizon's model.
	Hidden       []int   `json:"hidden"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	Optimizer    string  `json:"optimizer"`
	ClipNorm     float64 `json:"clip_norm"`

	// PerHorizon overrides the shared hyperparameters for individual horizons,
	// so a far horizon can train a different pipeline than a near one. Zero
	// fields keep the shared value.
	PerHorizon map[int]ModelParams `json:"per_horizon,omitempty"`

	// Workers caps the worker pool for cross-validation, grid search and the
	// full evaluation. Zero means one worker per CPU.
	Workers int `json:"workers"`

	// Seed makes runs reproducible. Zero seeds from the clock, as the model
	// does.
	Seed int64 `json:"seed"`
}

// ModelParams is one horizon's partial override of the shared model
// hyperparameters.
type ModelParams struct {
	Hidden       []int   `json:"hidden,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Epochs       int     `json:"epochs,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	Optimizer    string  `json:"optimizer,omitempty"`
	ClipNorm     float64 `json:"clip_norm,omitempty"`
}

// WithDefaults returns a copy with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{1, 2, 3, 4}
	}
	if cfg.Window == 0 {
		cfg.Window = 4
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.8
	}
	if cfg.Cutoff == 0 {
		cfg.Cutoff = 0.5
	}
	if len(cfg.Hidden) == 0 {
		cfg.Hidden = []int{32, 16}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.005
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 80
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = "adam"
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5.0
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg
}

// Validate rejects configurations no experiment can run with.
func (cfg Config) Validate() error {
	if len(cfg.Horizons) == 0 {
		return fmt.Errorf("at least one horizon is required")
	}
	for _, h := range cfg.Horizons {
		if h < 1 {
			return fmt.Errorf("horizons must be positive, got %v", cfg.Horizons)
		}
	}
	if cfg.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", cfg.Window)
	}
	if cfg.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", cfg.Threshold)
	}
	if cfg.Cutoff <= 0 || cfg.Cutoff >= 1 {
		return fmt.Errorf("cutoff must be in (0, 1), got %v", cfg.Cutoff)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	for h := range cfg.PerHorizon {
		if h < 1 {
			return fmt.Errorf("per-horizon overrides need positive horizons, got %d", h)
		}
	}
	return nil
}

// modelConfig builds the model configuration for one horizon's pipeline,
// applying that horizon's overrides over the shared hyperparameters.
func (cfg Config) modelConfig(horizon, inputDim int, seed int64) neural.Config {
	mc := neural.Config{
		HiddenSizes:  cfg.Hidden,
		InputDim:     inputDim,
		LearningRate: cfg.LearningRate,
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		Seed:         seed,
		Optimizer:    cfg.Optimizer,
		ClipNorm:     cfg.ClipNorm,
	}
	over, ok := cfg.PerHorizon[horizon]
	if !ok {
		return mc
	}
	if len(over.Hidden) > 0 {
		mc.HiddenSizes = over.Hidden
	}
	if over.LearningRate != 0 {
		mc.LearningRate = over.LearningRate
	}
	if over.Epochs != 0 {
		mc.Epochs = over.Epochs
	}
	if over.BatchSize != 0 {
		mc.BatchSize = over.BatchSize
	}
	if over.Optimizer != "" {
		mc.Optimizer = over.Optimizer
	}
	if over.ClipNorm != 0 {
		mc.ClipNorm = over.ClipNorm
	}
	return mc
}

// deriveSeed mixes the base seed with a job's horizon and season so parallel
// jobs stay reproducible regardless of scheduling. A zero base stays zero,
// deferring to the model's clock seeding.
func deriveSeed(base int64, horizon int, season string) int64 {
	if base == 0 {
		return 0
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s", base, horizon, season)
	seed := int64(h.Sum64() >> 1)
	if seed == 0 {
		seed = base
	}
	return seed
}
