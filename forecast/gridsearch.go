package forecast

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Noofbiz/fluCast/features"
)

// Grid spans the hyperparameter combinations a grid search walks. An empty
// dimension falls back to the base configuration's value.
type Grid struct {
	Windows       []int     `json:"windows,omitempty"`
	Hidden        [][]int   `json:"hidden,omitempty"`
	LearningRates []float64 `json:"learning_rates,omitempty"`
	BatchSizes    []int     `json:"batch_sizes,omitempty"`
	Epochs        []int     `json:"epochs,omitempty"`
}

// Params is one point of the grid.
type Params struct {
	Window       int     `json:"window"`
	Hidden       []int   `json:"hidden"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	Epochs       int     `json:"epochs"`
}

func (p Params) String() string {
	return fmt.Sprintf("w=%d hidden=%v lr=%g batch=%d epochs=%d",
		p.Window, p.Hidden, p.LearningRate, p.BatchSize, p.Epochs)
}

// apply overlays the point onto a base configuration.
func (p Params) apply(cfg Config) Config {
	cfg.Window = p.Window
	cfg.Hidden = p.Hidden
	cfg.LearningRate = p.LearningRate
	cfg.BatchSize = p.BatchSize
	cfg.Epochs = p.Epochs
	return cfg
}

// GridEntry pairs one parameter point with its cross-validation outcome.
type GridEntry struct {
	Params Params    `json:"params"`
	CV     *CVResult `json:"cv"`
}

// GridResult lists all evaluated points, best first.
type GridResult struct {
	Horizon int `json:"horizon"`

	// Entries is sorted by mean F1 descending, ties broken by AUC then by
	// Brier. Entries[0] is the winner.
	Entries []GridEntry `json:"entries"`

	// Failed lists points whose cross-validation could not run.
	Failed []string `json:"failed,omitempty"`
}

// Best returns the winning entry.
func (r *GridResult) Best() GridEntry { return r.Entries[0] }

// enumerate expands the grid into concrete parameter points, in a stable
// order.
func (g Grid) enumerate(cfg Config) []Params {
	windows := g.Windows
	if len(windows) == 0 {
		windows = []int{cfg.Window}
	}
	hidden := g.Hidden
	if len(hidden) == 0 {
		hidden = [][]int{cfg.Hidden}
	}
	rates := g.LearningRates
	if len(rates) == 0 {
		rates = []float64{cfg.LearningRate}
	}
	batches := g.BatchSizes
	if len(batches) == 0 {
		batches = []int{cfg.BatchSize}
	}
	epochs := g.Epochs
	if len(epochs) == 0 {
		epochs = []int{cfg.Epochs}
	}

	var out []Params
	for _, w := range windows {
		for _, h := range hidden {
			for _, lr := range rates {
				for _, b := range batches {
					for _, e := range epochs {
						out = append(out, Params{
							Window:       w,
							Hidden:       h,
							LearningRate: lr,
							BatchSize:    b,
							Epochs:       e,
						})
					}
				}
			}
		}
	}
	return out
}

// GridSearch cross-validates every grid point for a fixed horizon and ranks
// them. Points run concurrently; each point's folds run serially so the pool
// does not nest. Every point sees the same folds and the same seeds, so the
// comparison is fair.
func GridSearch(table *features.Table, cfg Config, horizon int, grid Grid) (*GridResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	points := grid.enumerate(cfg)
	if len(points) == 0 {
		return nil, fmt.Errorf("grid is empty")
	}

	// The outer pool carries the parallelism; fold-level workers would
	// multiply it.
	inner := cfg
	inner.Workers = 1

	// The grid owns the model knobs for the searched horizon; an override
	// there would pin what the points are supposed to vary.
	if _, ok := inner.PerHorizon[horizon]; ok {
		trimmed := make(map[int]ModelParams, len(inner.PerHorizon))
		for h, p := range inner.PerHorizon {
			if h != horizon {
				trimmed[h] = p
			}
		}
		inner.PerHorizon = trimmed
	}

	cvs := make([]*CVResult, len(points))
	errs := make([]error, len(points))

	workerCount := cfg.Workers
	if workerCount > len(points) {
		workerCount = len(points)
	}
	jobs := make(chan int, len(points))
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				cvs[i], errs[i] = CrossValidate(table, points[i].apply(inner), horizon)
			}
		}()
	}
	for i := range points {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := &GridResult{Horizon: horizon}
	for i, cv := range cvs {
		if errs[i] != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", points[i], errs[i]))
			continue
		}
		result.Entries = append(result.Entries, GridEntry{Params: points[i], CV: cv})
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("no grid point could be cross-validated: %v", result.Failed)
	}

	sort.SliceStable(result.Entries, func(a, b int) bool {
		ea, eb := result.Entries[a].CV, result.Entries[b].CV
		if ea.F1.Mean != eb.F1.Mean {
			return ea.F1.Mean > eb.F1.Mean
		}
		if ea.AUC.Mean != eb.AUC.Mean {
			return ea.AUC.Mean > eb.AUC.Mean
		}
		return ea.Brier.Mean < eb.Brier.Mean
	})
	return result, nil
}
