package forecast

import (
	"fmt"
	"sync"

	"github.com/Noofbiz/fluCast/features"
)

// Evaluation is the full result matrix: one SeasonResult per (horizon,
// season) pair that could be trained and scored.
type Evaluation struct {
	Horizons  []int    `json:"horizons"`
	Seasons   []string `json:"seasons"`
	Threshold float64  `json:"threshold"`

	// Results is ordered by horizon, then season. Skipped lists pairs
	// without enough data.
	Results []*SeasonResult `json:"results"`
	Skipped []string        `json:"skipped,omitempty"`

	index map[string]*SeasonResult
}

func evalKey(horizon int, season string) string {
	return fmt.Sprintf("%d|%s", horizon, season)
}

// At returns the result for one horizon and season, if it was produced.
// Decoded evaluations have no index and fall back to a scan.
func (e *Evaluation) At(horizon int, season string) (*SeasonResult, bool) {
	if e.index != nil {
		r, ok := e.index[evalKey(horizon, season)]
		return r, ok
	}
	for _, r := range e.Results {
		if r.Horizon == horizon && r.Season == season {
			return r, true
		}
	}
	return nil, false
}

// ForHorizon returns all season results of one horizon, in season order.
func (e *Evaluation) ForHorizon(horizon int) []*SeasonResult {
	var out []*SeasonResult
	for _, r := range e.Results {
		if r.Horizon == horizon {
			out = append(out, r)
		}
	}
	return out
}

// ForSeason returns all horizon results of one season, in horizon order.
func (e *Evaluation) ForSeason(season string) []*SeasonResult {
	var out []*SeasonResult
	for _, r := range e.Results {
		if r.Season == season {
			out = append(out, r)
		}
	}
	return out
}

// Predictions flattens every result's predictions, in result order.
func (e *Evaluation) Predictions() []Prediction {
	var out []Prediction
	for _, r := range e.Results {
		out = append(out, r.Predictions...)
	}
	return out
}

// EvaluateAll trains and scores every configured horizon against every season
// in the table, concurrently. The result matrix feeds the reports, the
// exports and the dashboard.
func EvaluateAll(table *features.Table, cfg Config) (*Evaluation, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seasons := table.Seasons()
	if len(seasons) < 2 {
		return nil, fmt.Errorf("evaluation needs at least 2 seasons, table has %d", len(seasons))
	}

	type job struct {
		horizon int
		season  string
	}
	var pairs []job
	for _, h := range cfg.Horizons {
		for _, s := range seasons {
			pairs = append(pairs, job{horizon: h, season: s})
		}
	}

	results := make([]*SeasonResult, len(pairs))
	errs := make([]error, len(pairs))

	workerCount := cfg.Workers
	if workerCount > len(pairs) {
		workerCount = len(pairs)
	}
	jobs := make(chan int, len(pairs))
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = TrainSeason(table, cfg, pairs[i].season, pairs[i].horizon)
			}
		}()
	}
	for i := range pairs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	eval := &Evaluation{
		Horizons:  cfg.Horizons,
		Seasons:   seasons,
		Threshold: cfg.Threshold,
		index:     make(map[string]*SeasonResult),
	}
	for i, r := range results {
		if errs[i] != nil {
			eval.Skipped = append(eval.Skipped, fmt.Sprintf("h=%d %s: %v", pairs[i].horizon, pairs[i].season, errs[i]))
			continue
		}
		eval.Results = append(eval.Results, r)
		eval.index[evalKey(r.Horizon, r.Season)] = r
	}
	if len(eval.Results) == 0 {
		return nil, fmt.Errorf("no horizon-season pair could be evaluated: %v", eval.Skipped)
	}
	return eval, nil
}
