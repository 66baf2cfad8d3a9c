package neural

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestComputeMetricsPerfect scores a perfectly ranked prediction set.
func TestComputeMetricsPerfect(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.3, 0.2}
	labels := []float64{1, 1, 0, 0}

	m, err := ComputeMetrics(probs, labels, 0.5)
	if err != nil {
		t.Fatalf("ComputeMetrics error: %v", err)
	}
	if m.Examples != 4 || m.Positives != 2 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.TP != 2 || m.TN != 2 || m.FP != 0 || m.FN != 0 {
		t.Fatalf("unexpected confusion: %+v", m)
	}
	if !almost(m.Accuracy, 1) || !almost(m.Precision, 1) || !almost(m.Recall, 1) || !almost(m.F1, 1) {
		t.Fatalf("expected perfect scores: %+v", m)
	}
	if !almost(m.AUC, 1) {
		t.Fatalf("expected AUC 1, got %v", m.AUC)
	}
	// Brier: mean of (0.1^2, 0.2^2, 0.3^2, 0.2^2).
	if !almost(m.Brier, 0.045) {
		t.Fatalf("expected Brier 0.045, got %v", m.Brier)
	}
}

// TestComputeMetricsMixed checks a half-wrong prediction set by hand.
func TestComputeMetricsMixed(t *testing.T) {
	probs := []float64{0.9, 0.4, 0.6, 0.2}
	labels := []float64{1, 1, 0, 0}

	m, err := ComputeMetrics(probs, labels, 0.5)
	if err != nil {
		t.Fatalf("ComputeMetrics error: %v", err)
	}
	if m.TP != 1 || m.FN != 1 || m.FP != 1 || m.TN != 1 {
		t.Fatalf("unexpected confusion: %+v", m)
	}
	if !almost(m.Accuracy, 0.5) || !almost(m.Precision, 0.5) || !almost(m.Recall, 0.5) || !almost(m.F1, 0.5) {
		t.Fatalf("unexpected scores: %+v", m)
	}
	// Three of four positive-negative pairs ranked correctly.
	if !almost(m.AUC, 0.75) {
		t.Fatalf("expected AUC 0.75, got %v", m.AUC)
	}
}

// TestRankAUCTies averages ranks across tied scores.
func TestRankAUCTies(t *testing.T) {
	if got := rankAUC([]float64{0.5, 0.5}, []float64{1, 0}); !almost(got, 0.5) {
		t.Fatalf("tied scores should give AUC 0.5, got %v", got)
	}
	// All positives tied above all negatives.
	if got := rankAUC([]float64{0.7, 0.7, 0.2, 0.2}, []float64{1, 1, 0, 0}); !almost(got, 1) {
		t.Fatalf("expected AUC 1, got %v", got)
	}
	// One class only is uninformative.
	if got := rankAUC([]float64{0.7, 0.2}, []float64{1, 1}); !almost(got, 0.5) {
		t.Fatalf("single-class set should give AUC 0.5, got %v", got)
	}
}

// TestComputeMetricsErrors exercises the argument checks.
func TestComputeMetricsErrors(t *testing.T) {
	if _, err := ComputeMetrics([]float64{0.5}, []float64{1, 0}, 0.5); err == nil {
		t.Fatalf("expected error for mismatched lengths")
	}
	if _, err := ComputeMetrics(nil, nil, 0.5); err == nil {
		t.Fatalf("expected error for empty inputs")
	}
	if _, err := ComputeMetrics([]float64{0.5}, []float64{1}, 0); err == nil {
		t.Fatalf("expected error for cutoff 0")
	}
	if _, err := ComputeMetrics([]float64{0.5}, []float64{1}, 1); err == nil {
		t.Fatalf("expected error for cutoff 1")
	}
}

// TestEvaluateModel runs the full model-over-dataset scoring path.
func TestEvaluateModel(t *testing.T) {
	ds := separableDataset(100)
	model, err := NewModel(Config{InputDim: 4, HiddenSizes: []int{8}, Seed: 3, Epochs: 20, LearningRate: 0.01, BatchSize: 10})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	if err := model.TrainWithDataset(ds); err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}

	m, err := EvaluateModel(model, ds, 0.5)
	if err != nil {
		t.Fatalf("EvaluateModel error: %v", err)
	}
	if m.Examples != ds.Len() {
		t.Fatalf("expected %d examples, got %d", ds.Len(), m.Examples)
	}
	wantPos := 0
	for _, l := range ds.labels {
		if l[0] >= 0.5 {
			wantPos++
		}
	}
	if m.Positives != wantPos {
		t.Fatalf("expected %d positives, got %d", wantPos, m.Positives)
	}
	if m.TP+m.FP+m.TN+m.FN != m.Examples {
		t.Fatalf("confusion counts don't add up: %+v", m)
	}
	t.Logf("evaluation: %s", m)

	empty := &mockDataset{}
	if _, err := EvaluateModel(model, empty, 0.5); err == nil {
		t.Fatalf("expected error for empty dataset")
	}
}
