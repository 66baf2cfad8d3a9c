package forecast

import "testing"

// TestEvaluateAll produces the full horizon-by-season matrix.
func TestEvaluateAll(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig() // horizons 1 and 2

	eval, err := EvaluateAll(table, cfg)
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if len(eval.Horizons) != 2 || len(eval.Seasons) != 3 {
		t.Fatalf("unexpected matrix shape: %+v", eval)
	}
	if len(eval.Results) != 6 || len(eval.Skipped) != 0 {
		t.Fatalf("expected 6 results and no skips, got %d results, skipped %v",
			len(eval.Results), eval.Skipped)
	}

	// Results are ordered horizon-major, season-minor.
	idx := 0
	for _, h := range eval.Horizons {
		for _, s := range eval.Seasons {
			r := eval.Results[idx]
			if r.Horizon != h || r.Season != s {
				t.Fatalf("result %d out of order: got h=%d %s, expected h=%d %s",
					idx, r.Horizon, r.Season, h, s)
			}
			idx++
		}
	}

	r, ok := eval.At(2, "2015/16")
	if !ok || r.Horizon != 2 || r.Season != "2015/16" {
		t.Fatalf("At(2, 2015/16) = %+v, %v", r, ok)
	}
	if _, ok := eval.At(9, "2015/16"); ok {
		t.Fatalf("expected miss for unknown horizon")
	}

	if got := eval.ForHorizon(1); len(got) != 3 {
		t.Fatalf("ForHorizon(1) returned %d results", len(got))
	}
	if got := eval.ForSeason("2014/15"); len(got) != 2 {
		t.Fatalf("ForSeason(2014/15) returned %d results", len(got))
	}

	total := 0
	for _, res := range eval.Results {
		total += len(res.Predictions)
	}
	if got := len(eval.Predictions()); got != total {
		t.Fatalf("Predictions() flattened %d, expected %d", got, total)
	}
}

// TestEvaluateAllDeterminism repeats a seeded evaluation and compares one
// cell.
func TestEvaluateAllDeterminism(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()
	cfg.Horizons = []int{1}

	a, err := EvaluateAll(table, cfg)
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	b, err := EvaluateAll(table, cfg)
	if err != nil {
		t.Fatalf("EvaluateAll (repeat) failed: %v", err)
	}
	ra, _ := a.At(1, "2016/17")
	rb, _ := b.At(1, "2016/17")
	if ra == nil || rb == nil {
		t.Fatalf("missing cell in evaluation")
	}
	if ra.Metrics != rb.Metrics {
		t.Fatalf("same seed produced different metrics:\n%+v\n%+v", ra.Metrics, rb.Metrics)
	}
}

// TestEvaluateAllErrors rejects unusable tables and configurations.
func TestEvaluateAllErrors(t *testing.T) {
	cfg := testConfig()

	single := testTable(t, 1)
	if _, err := EvaluateAll(single, cfg); err == nil {
		t.Fatalf("expected error for a single-season table")
	}

	table := testTable(t, 3)
	bad := cfg
	bad.States = []string{"Atlantis"}
	if _, err := EvaluateAll(table, bad); err == nil {
		t.Fatalf("expected error when no pair can be evaluated")
	}

	invalid := cfg
	invalid.Horizons = []int{0}
	if _, err := EvaluateAll(table, invalid); err == nil {
		t.Fatalf("expected error for invalid horizon")
	}
}
