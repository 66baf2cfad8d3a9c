package neural

import (
	"math"
	"testing"
)

// mockDataset implements the minimal Dataset interface required by the trainer.
type mockDataset struct {
	inputs [][]float32
	labels [][]float32
}

func (m *mockDataset) Len() int { return len(m.inputs) }

func (m *mockDataset) Batch(indices []int) ([][]float32, [][]float32, error) {
	in := make([][]float32, len(indices))
	la := make([][]float32, len(indices))
	for i, idx := range indices {
		in[i] = m.inputs[idx]
		la[i] = m.labels[idx]
	}
	return in, la, nil
}

// separableDataset builds a cleanly separable binary problem: label 1 when
// the first two inputs sum above 1, with a margin around the boundary.
func separableDataset(n int) *mockDataset {
	ds := &mockDataset{}
	for i := 0; len(ds.inputs) < n; i++ {
		a := float32(i%17) / 17.0
		b := float32((i*7)%13) / 13.0
		sum := a + b
		if sum > 0.8 && sum < 1.2 {
			continue
		}
		label := float32(0)
		if sum > 1 {
			label = 1
		}
		ds.inputs = append(ds.inputs, []float32{a, b, a * b, a - b})
		ds.labels = append(ds.labels, []float32{label})
	}
	return ds
}

// TestModelTrainBinary verifies Adam training reduces cross-entropy on a
// separable dataset and yields usable probabilities.
func TestModelTrainBinary(t *testing.T) {
	ds := separableDataset(200)

	cfg := Config{
		HiddenSizes:  []int{16, 8},
		InputDim:     4,
		LearningRate: 0.01,
		Epochs:       60,
		BatchSize:    16,
		Seed:         42,
	}
	model, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}

	lossBefore, err := model.DatasetLoss(ds)
	if err != nil {
		t.Fatalf("DatasetLoss(before) error: %v", err)
	}

	if err := model.TrainWithDataset(ds); err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}

	lossAfter, err := model.DatasetLoss(ds)
	if err != nil {
		t.Fatalf("DatasetLoss(after) error: %v", err)
	}
	t.Logf("cross-entropy before=%.4f after=%.4f", lossBefore, lossAfter)
	if !(lossAfter < lossBefore) {
		t.Fatalf("expected loss to decrease: before=%.4f after=%.4f", lossBefore, lossAfter)
	}

	preds, err := model.PredictBatch(ds.inputs)
	if err != nil {
		t.Fatalf("PredictBatch error: %v", err)
	}
	correct := 0
	for i, p := range preds {
		v := float64(p[0])
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			t.Fatalf("probability out of range at %d: %v", i, v)
		}
		if (v >= 0.5) == (ds.labels[i][0] >= 0.5) {
			correct++
		}
	}
	acc := float64(correct) / float64(len(preds))
	t.Logf("train accuracy=%.3f", acc)
	if acc < 0.75 {
		t.Fatalf("expected accuracy above 0.75 on separable data, got %.3f", acc)
	}
}

// TestModelTrainSGD runs the plain SGD optimizer path.
func TestModelTrainSGD(t *testing.T) {
	ds := separableDataset(120)

	cfg := Config{
		HiddenSizes:  []int{16},
		InputDim:     4,
		LearningRate: 0.05,
		Epochs:       40,
		BatchSize:    8,
		Seed:         7,
		Optimizer:    "sgd",
	}
	model, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}

	lossBefore, err := model.DatasetLoss(ds)
	if err != nil {
		t.Fatalf("DatasetLoss(before) error: %v", err)
	}
	if err := model.TrainWithDataset(ds); err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}
	lossAfter, err := model.DatasetLoss(ds)
	if err != nil {
		t.Fatalf("DatasetLoss(after) error: %v", err)
	}
	t.Logf("sgd cross-entropy before=%.4f after=%.4f", lossBefore, lossAfter)
	if !(lossAfter < lossBefore) {
		t.Fatalf("expected loss to decrease: before=%.4f after=%.4f", lossBefore, lossAfter)
	}
}

// TestNewModelValidation rejects impossible configurations.
func TestNewModelValidation(t *testing.T) {
	if _, err := NewModel(Config{}); err == nil {
		t.Fatalf("expected error for zero InputDim")
	}
	if _, err := NewModel(Config{InputDim: 4, Optimizer: "rmsprop"}); err == nil {
		t.Fatalf("expected error for unknown optimizer")
	}
	if _, err := NewModel(Config{InputDim: 4, HiddenSizes: []int{0}}); err == nil {
		t.Fatalf("expected error for zero hidden size")
	}

	model, err := NewModel(Config{InputDim: 4, Seed: 1})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	if model.Config.Optimizer != "adam" || model.Config.Epochs != 30 {
		t.Fatalf("defaults not applied: %+v", model.Config)
	}
	if model.InputDim() != 4 {
		t.Fatalf("InputDim() = %d, expected 4", model.InputDim())
	}

	if _, err := model.Probability([]float32{1, 2}); err == nil {
		t.Fatalf("expected error for wrong input dimension")
	}
}

// TestModelDeterminism trains two identically seeded models and expects
// identical predictions.
func TestModelDeterminism(t *testing.T) {
	ds := separableDataset(80)
	cfg := Config{
		HiddenSizes:  []int{8},
		InputDim:     4,
		LearningRate: 0.01,
		Epochs:       10,
		BatchSize:    8,
		Seed:         99,
	}

	train := func() []float32 {
		model, err := NewModel(cfg)
		if err != nil {
			t.Fatalf("NewModel error: %v", err)
		}
		if err := model.TrainWithDataset(ds); err != nil {
			t.Fatalf("TrainWithDataset error: %v", err)
		}
		preds, err := model.PredictBatch(ds.inputs)
		if err != nil {
			t.Fatalf("PredictBatch error: %v", err)
		}
		out := make([]float32, len(preds))
		for i, p := range preds {
			out[i] = p[0]
		}
		return out
	}

	a := train()
	b := train()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d: %v != %v", i, a[i], b[i])
		}
	}
}
