package forecast

import (
	"math"
	"testing"
)

// TestCrossValidate runs leave-one-season-out over three seasons and checks
// fold coverage and summary aggregation.
func TestCrossValidate(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	cv, err := CrossValidate(table, cfg, 1)
	if err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}
	if cv.Horizon != 1 || cv.Threshold != cfg.Threshold {
		t.Fatalf("unexpected labeling: %+v", cv)
	}
	if len(cv.Folds) != 3 || len(cv.Skipped) != 0 {
		t.Fatalf("expected 3 folds and no skips, got %d folds, skipped %v", len(cv.Folds), cv.Skipped)
	}

	seasons := table.Seasons()
	for i, fold := range cv.Folds {
		if fold.Season != seasons[i] {
			t.Fatalf("folds out of season order: %v", cv.Folds)
		}
		if fold.Horizon != 1 {
			t.Fatalf("fold %d has horizon %d", i, fold.Horizon)
		}
	}

	for name, s := range map[string]Summary{
		"accuracy": cv.Accuracy, "precision": cv.Precision, "recall": cv.Recall,
		"f1": cv.F1, "auc": cv.AUC, "brier": cv.Brier,
	} {
		if math.IsNaN(s.Mean) || math.IsNaN(s.Std) {
			t.Fatalf("%s summary is NaN: %+v", name, s)
		}
	}
	if cv.Accuracy.Mean < 0 || cv.Accuracy.Mean > 1 {
		t.Fatalf("accuracy mean out of range: %+v", cv.Accuracy)
	}
	t.Logf("cv h=1: acc=%.3f±%.3f f1=%.3f±%.3f auc=%.3f±%.3f",
		cv.Accuracy.Mean, cv.Accuracy.Std, cv.F1.Mean, cv.F1.Std, cv.AUC.Mean, cv.AUC.Std)
}

// TestCrossValidateDeterminism repeats a seeded run.
func TestCrossValidateDeterminism(t *testing.T) {
	table := testTable(t, 3)
	cfg := testConfig()

	a, err := CrossValidate(table, cfg, 2)
	if err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}
	b, err := CrossValidate(table, cfg, 2)
	if err != nil {
		t.Fatalf("CrossValidate (repeat) failed: %v", err)
	}
	if a.F1 != b.F1 || a.AUC != b.AUC || a.Brier != b.Brier {
		t.Fatalf("same seed produced different summaries:\n%+v\n%+v", a, b)
	}
	for i := range a.Folds {
		if a.Folds[i].Metrics != b.Folds[i].Metrics {
			t.Fatalf("fold %d diverged:\n%+v\n%+v", i, a.Folds[i].Metrics, b.Folds[i].Metrics)
		}
	}
}

// TestCrossValidateTooFewSeasons rejects tables that cannot fold.
func TestCrossValidateTooFewSeasons(t *testing.T) {
	table := testTable(t, 1)
	if _, err := CrossValidate(table, testConfig(), 1); err == nil {
		t.Fatalf("expected error for a single-season table")
	}
}
