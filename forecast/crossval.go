package forecast

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/neural"
)

// Summary is the mean and spread of one metric across folds.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// CVResult aggregates leave-one-season-out folds for one horizon.
type CVResult struct {
	Horizon   int     `json:"horizon"`
	Threshold float64 `json:"threshold"`

	// Folds holds one result per evaluated season, in season order. Seasons
	// that could not form both a training and a test split are listed in
	// Skipped.
	Folds   []*SeasonResult `json:"folds"`
	Skipped []string        `json:"skipped,omitempty"`

	Accuracy  Summary `json:"accuracy"`
	Precision Summary `json:"precision"`
	Recall    Summary `json:"recall"`
	F1        Summary `json:"f1"`
	AUC       Summary `json:"auc"`
	Brier     Summary `json:"brier"`
}

// CrossValidate runs leave-one-season-out validation for a fixed horizon:
// every season in the table becomes the held-out fold once, with folds
// trained concurrently.
func CrossValidate(table *features.Table, cfg Config, horizon int) (*CVResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seasons := table.Seasons()
	if len(seasons) < 2 {
		return nil, fmt.Errorf("cross-validation needs at least 2 seasons, table has %d", len(seasons))
	}

	folds := make([]*SeasonResult, len(seasons))
	errs := make([]error, len(seasons))

	workerCount := cfg.Workers
	if workerCount > len(seasons) {
		workerCount = len(seasons)
	}
	jobs := make(chan int, len(seasons))
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				folds[i], errs[i] = TrainSeason(table, cfg, seasons[i], horizon)
			}
		}()
	}
	for i := range seasons {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := &CVResult{Horizon: horizon, Threshold: cfg.Threshold}
	for i, fold := range folds {
		if errs[i] != nil {
			// A season too short to window is skipped, not fatal.
			result.Skipped = append(result.Skipped, seasons[i])
			continue
		}
		result.Folds = append(result.Folds, fold)
	}
	if len(result.Folds) < 2 {
		return nil, fmt.Errorf("only %d of %d seasons could be cross-validated", len(result.Folds), len(seasons))
	}

	result.Accuracy = summarize(result.Folds, func(m neural.Metrics) float64 { return m.Accuracy })
	result.Precision = summarize(result.Folds, func(m neural.Metrics) float64 { return m.Precision })
	result.Recall = summarize(result.Folds, func(m neural.Metrics) float64 { return m.Recall })
	result.F1 = summarize(result.Folds, func(m neural.Metrics) float64 { return m.F1 })
	result.AUC = summarize(result.Folds, func(m neural.Metrics) float64 { return m.AUC })
	result.Brier = summarize(result.Folds, func(m neural.Metrics) float64 { return m.Brier })
	return result, nil
}

// summarize reduces one metric over all folds.
func summarize(folds []*SeasonResult, pick func(neural.Metrics) float64) Summary {
	vals := make([]float64, len(folds))
	for i, f := range folds {
		vals[i] = pick(f.Metrics)
	}
	return Summary{
		Mean: stat.Mean(vals, nil),
		Std:  stat.StdDev(vals, nil),
	}
}
