package forecast

import (
	"fmt"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/neural"
)

// Prediction is one scored state-week of a held-out season.
type Prediction struct {
	State  string `json:"state"`
	Year   int    `json:"year"`
	Week   int    `json:"week"`
	Season string `json:"season"`

	// BaseYear and BaseWeek are the window's last week, the point the
	// forecast was issued from.
	BaseYear int `json:"base_year"`
	BaseWeek int `json:"base_week"`

	Horizon int `json:"horizon"`

	// Probability is the model's crossing score; Predicted thresholds it at
	// the configured cutoff.
	Probability float64 `json:"probability"`
	Predicted   bool    `json:"predicted"`

	// Actual says whether the reported rate crossed the threshold; Rate is
	// that reported rate.
	Actual bool    `json:"actual"`
	Rate   float64 `json:"rate"`
}

// SeasonResult holds one held-out season's evaluation for one horizon.
type SeasonResult struct {
	Season    string  `json:"season"`
	Horizon   int     `json:"horizon"`
	Threshold float64 `json:"threshold"`

	TrainExamples int `json:"train_examples"`
	TestExamples  int `json:"test_examples"`

	Metrics     neural.Metrics `json:"metrics"`
	Predictions []Prediction   `json:"predictions"`
}

// TrainSeason trains a horizon-h classifier on every season except the given
// one and evaluates it on that season's windows. This is the leave-one-season
// -out building block the cross-validation and the full evaluation are made
// of.
func TrainSeason(table *features.Table, cfg Config, season string, horizon int) (*SeasonResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	if !containsString(table.Seasons(), season) {
		return nil, fmt.Errorf("season %s not present in table (have %v)", season, table.Seasons())
	}

	train, err := features.NewWindowedSet(table, features.WindowSpec{
		Window:         cfg.Window,
		Horizon:        horizon,
		Threshold:      cfg.Threshold,
		States:         cfg.States,
		ExcludeSeasons: []string{season},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build training windows: %w", err)
	}
	test, err := features.NewWindowedSet(table, features.WindowSpec{
		Window:      cfg.Window,
		Horizon:     horizon,
		Threshold:   cfg.Threshold,
		States:      cfg.States,
		OnlySeasons: []string{season},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build test windows: %w", err)
	}
	if train.Len() == 0 {
		return nil, fmt.Errorf("no training windows outside season %s", season)
	}
	if test.Len() == 0 {
		return nil, fmt.Errorf("no test windows in season %s", season)
	}

	pipe, err := TrainPipeline(train, cfg, horizon, deriveSeed(cfg.Seed, horizon, season))
	if err != nil {
		return nil, err
	}

	metrics, err := pipe.Evaluate(test, cfg.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate season %s: %w", season, err)
	}
	preds, err := PredictSet(pipe, test, cfg.Cutoff)
	if err != nil {
		return nil, err
	}

	return &SeasonResult{
		Season:        season,
		Horizon:       horizon,
		Threshold:     cfg.Threshold,
		TrainExamples: train.Len(),
		TestExamples:  test.Len(),
		Metrics:       metrics,
		Predictions:   preds,
	}, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// PredictSet scores every window of a set and pairs the probabilities with
// their target-week metadata.
func PredictSet(pipe *Pipeline, set *features.WindowedSet, cutoff float64) ([]Prediction, error) {
	targets := set.Targets()
	out := make([]Prediction, set.Len())
	for i := 0; i < set.Len(); i++ {
		in, label, err := set.Example(i)
		if err != nil {
			return nil, err
		}
		prob, err := pipe.Probability(in)
		if err != nil {
			return nil, err
		}
		tw := targets[i]
		out[i] = Prediction{
			State:       tw.State,
			Year:        tw.Year,
			Week:        tw.Week,
			Season:      tw.Season(),
			BaseYear:    tw.BaseYear,
			BaseWeek:    tw.BaseWeek,
			Horizon:     pipe.Horizon,
			Probability: prob,
			Predicted:   prob >= cutoff,
			Actual:      label[0] >= 0.5,
			Rate:        tw.Rate,
		}
	}
	return out, nil
}
