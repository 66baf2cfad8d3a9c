package forecast

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/fluCast/features"
)

// seasonRate is a triangular wave profile peaking mid-season. amp scales the
// peak so seasons differ.
func seasonRate(offset int, amp float64) float64 {
	r := amp - 0.35*math.Abs(float64(offset-18))
	if r < 0.2 {
		r = 0.2
	}
	return r
}

// testTable writes a synthetic two-state table spanning the given number of
// seasons, 33 weeks each from week 40. A search signal leads the rate by two
// weeks, so crossings are learnable.
func testTable(t *testing.T, seasons int) *features.Table {
	t.Helper()
	tmp := t.TempDir()
	f, err := os.Create(filepath.Join(tmp, "table.csv"))
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	fmt.Fprintln(f, "state,year,week,influenza_rate,temp_mean,search_flu")
	for s := 0; s < seasons; s++ {
		amp := 4.0 + 0.3*float64(s)
		for si, state := range []string{"BW", "BY"} {
			stateAmp := amp + 0.2*float64(si)
			year, week := 2014+s, features.SeasonStartWeek
			for offset := 0; offset < 33; offset++ {
				rate := seasonRate(offset, stateAmp)
				lead := seasonRate(offset+2, stateAmp)
				fmt.Fprintf(f, "%s,%d,%d,%.3f,%.3f,%.3f\n",
					state, year, week, rate, 20.0-rate, 10*lead)
				year, week = features.AddWeeks(year, week, 1)
			}
		}
	}
	f.Close()

	table, err := features.Load(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return table
}

// testConfig keeps training runs short.
func testConfig() Config {
	return Config{
		Horizons:     []int{1, 2},
		Window:       3,
		Threshold:    0.8,
		Cutoff:       0.5,
		Hidden:       []int{8},
		LearningRate: 0.01,
		Epochs:       15,
		BatchSize:    16,
		Workers:      2,
		Seed:         42,
	}
}

// TestTrainSeason holds out one season and checks the result's shape and
// alignment invariants.
func TestTrainSeason(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	res, err := TrainSeason(table, cfg, "2015/16", 2)
	if err != nil {
		t.Fatalf("TrainSeason failed: %v", err)
	}
	if res.Season != "2015/16" || res.Horizon != 2 || res.Threshold != 0.8 {
		t.Fatalf("unexpected result labeling: %+v", res)
	}
	if res.TrainExamples == 0 || res.TestExamples == 0 {
		t.Fatalf("empty splits: %+v", res)
	}
	if len(res.Predictions) != res.TestExamples {
		t.Fatalf("predictions (%d) don't cover the test set (%d)", len(res.Predictions), res.TestExamples)
	}
	if res.Metrics.Examples != res.TestExamples {
		t.Fatalf("metrics scored %d examples, test set has %d", res.Metrics.Examples, res.TestExamples)
	}

	for _, p := range res.Predictions {
		if p.Season != "2015/16" {
			t.Fatalf("prediction leaked out of the held-out season: %+v", p)
		}
		if p.Horizon != 2 {
			t.Fatalf("unexpected prediction horizon: %+v", p)
		}
		// The target week sits exactly horizon weeks past the base week.
		if features.WeekDiff(p.BaseYear, p.BaseWeek, p.Year, p.Week) != 2 {
			t.Fatalf("base and target weeks misaligned: %+v", p)
		}
		if p.Probability < 0 || p.Probability > 1 {
			t.Fatalf("probability out of range: %+v", p)
		}
		if p.Predicted != (p.Probability >= cfg.Cutoff) {
			t.Fatalf("predicted flag disagrees with cutoff: %+v", p)
		}
		if p.Actual != (p.Rate >= cfg.Threshold) {
			t.Fatalf("actual flag disagrees with the reported rate: %+v", p)
		}
	}

	if res.Metrics.AUC < 0 || res.Metrics.AUC > 1 {
		t.Fatalf("AUC out of range: %+v", res.Metrics)
	}
	t.Logf("held-out 2015/16: %s", res.Metrics)
}

// TestTrainSeasonDeterminism repeats a run with the same seed.
func TestTrainSeasonDeterminism(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	a, err := TrainSeason(table, cfg, "2014/15", 1)
	if err != nil {
		t.Fatalf("TrainSeason failed: %v", err)
	}
	b, err := TrainSeason(table, cfg, "2014/15", 1)
	if err != nil {
		t.Fatalf("TrainSeason (repeat) failed: %v", err)
	}
	if a.Metrics != b.Metrics {
		t.Fatalf("same seed produced different metrics:\n%+v\n%+v", a.Metrics, b.Metrics)
	}
	for i := range a.Predictions {
		if a.Predictions[i] != b.Predictions[i] {
			t.Fatalf("same seed diverged at prediction %d: %+v != %+v", i, a.Predictions[i], b.Predictions[i])
		}
	}
}

// TestTrainSeasonErrors exercises the argument checks and impossible splits.
func TestTrainSeasonErrors(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	if _, err := TrainSeason(table, cfg, "1999/00", 1); err == nil {
		t.Fatalf("expected error for absent season")
	}
	if _, err := TrainSeason(table, cfg, "2014/15", 0); err == nil {
		t.Fatalf("expected error for zero horizon")
	}

	bad := cfg
	bad.Cutoff = 2
	if _, err := TrainSeason(table, bad, "2014/15", 1); err == nil {
		t.Fatalf("expected error for invalid cutoff")
	}

	// A single-season table leaves nothing to train on.
	single := testTable(t, 1)
	if _, err := TrainSeason(single, cfg, "2014/15", 1); err == nil {
		t.Fatalf("expected error when every row is held out")
	}

	unknown := cfg
	unknown.States = []string{"Atlantis"}
	if _, err := TrainSeason(table, unknown, "2014/15", 1); err == nil {
		t.Fatalf("expected error for unknown state filter")
	}
}

// TestModelConfigPerHorizon applies overrides only for their horizon and only
// for fields the override actually sets.
func TestModelConfigPerHorizon(t *testing.T) {
	cfg := testConfig().WithDefaults()
	cfg.PerHorizon = map[int]ModelParams{
		2: {Hidden: []int{4}, LearningRate: 0.1},
	}

	shared := cfg.modelConfig(1, 9, 5)
	if shared.LearningRate != cfg.LearningRate || len(shared.HiddenSizes) != len(cfg.Hidden) {
		t.Fatalf("horizon 1 should keep the shared hyperparameters: %+v", shared)
	}
	over := cfg.modelConfig(2, 9, 5)
	if over.LearningRate != 0.1 || len(over.HiddenSizes) != 1 || over.HiddenSizes[0] != 4 {
		t.Fatalf("horizon 2 should apply its overrides: %+v", over)
	}
	if over.Epochs != cfg.Epochs || over.BatchSize != cfg.BatchSize || over.Optimizer != cfg.Optimizer {
		t.Fatalf("unset override fields should keep the shared values: %+v", over)
	}
	if shared.InputDim != 9 || over.Seed != 5 {
		t.Fatalf("input dimension or seed lost: %+v %+v", shared, over)
	}

	bad := cfg
	bad.PerHorizon = map[int]ModelParams{0: {Epochs: 5}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for a zero-horizon override")
	}
}

// TestTrainSeasonPerHorizonOverride checks the override reaches training.
func TestTrainSeasonPerHorizonOverride(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	plain, err := TrainSeason(table, cfg, "2014/15", 2)
	if err != nil {
		t.Fatalf("TrainSeason failed: %v", err)
	}

	tuned := cfg
	tuned.PerHorizon = map[int]ModelParams{2: {Hidden: []int{3}, Epochs: 2}}
	small, err := TrainSeason(table, tuned, "2014/15", 2)
	if err != nil {
		t.Fatalf("TrainSeason with override failed: %v", err)
	}
	if plain.Metrics == small.Metrics {
		t.Fatalf("override did not change the trained model: %+v", small.Metrics)
	}

	// An override for a different horizon leaves this one untouched.
	other := cfg
	other.PerHorizon = map[int]ModelParams{1: {Hidden: []int{3}}}
	same, err := TrainSeason(table, other, "2014/15", 2)
	if err != nil {
		t.Fatalf("TrainSeason with unrelated override failed: %v", err)
	}
	if plain.Metrics != same.Metrics {
		t.Fatalf("unrelated override changed the model:\n%+v\n%+v", plain.Metrics, same.Metrics)
	}
}

// TestDeriveSeed keeps parallel jobs reproducible and distinct.
func TestDeriveSeed(t *testing.T) {
	if deriveSeed(0, 1, "2014/15") != 0 {
		t.Fatalf("zero base should stay zero")
	}
	a := deriveSeed(42, 1, "2014/15")
	if a != deriveSeed(42, 1, "2014/15") {
		t.Fatalf("deriveSeed is not deterministic")
	}
	if a == deriveSeed(42, 2, "2014/15") {
		t.Fatalf("horizons should not share seeds")
	}
	if a == deriveSeed(42, 1, "2015/16") {
		t.Fatalf("seasons should not share seeds")
	}
	if a == deriveSeed(43, 1, "2014/15") {
		t.Fatalf("bases should not share seeds")
	}
	if a < 0 {
		t.Fatalf("derived seed should be non-negative, got %d", a)
	}
}
