package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/fluCast/neural"
)

// Scaler standardizes input columns to zero mean and unit variance using
// statistics from the training set only.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column statistics over a training batch.
func FitScaler(inputs [][]float32) (*Scaler, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty batch")
	}
	dim := len(inputs[0])
	col := make([]float64, len(inputs))
	s := &Scaler{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}
	for j := 0; j < dim; j++ {
		for i, in := range inputs {
			if len(in) != dim {
				return nil, fmt.Errorf("ragged input at example %d: %d != %d", i, len(in), dim)
			}
			col[i] = float64(in[j])
		}
		s.Mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		// Constant columns pass through unscaled.
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Std[j] = sd
	}
	return s, nil
}

// Transform standardizes one input vector into a fresh slice.
func (s *Scaler) Transform(in []float32) ([]float32, error) {
	if len(in) != len(s.Mean) {
		return nil, fmt.Errorf("input has dimension %d, scaler expects %d", len(in), len(s.Mean))
	}
	out := make([]float32, len(in))
	for j, v := range in {
		out[j] = float32((float64(v) - s.Mean[j]) / s.Std[j])
	}
	return out, nil
}

// scaledSet presents a dataset with the scaler applied to every input.
type scaledSet struct {
	base   neural.Dataset
	scaler *Scaler
}

func (d *scaledSet) Len() int { return d.base.Len() }

func (d *scaledSet) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs, labels, err := d.base.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		scaled, err := d.scaler.Transform(in)
		if err != nil {
			return nil, nil, err
		}
		out[i] = scaled
	}
	return out, labels, nil
}

// Pipeline is one trained classifier for one horizon: the scaler fitted on
// the training windows and the model behind it.
type Pipeline struct {
	Horizon   int
	Threshold float64
	Scaler    *Scaler
	Model     *neural.Model
}

// TrainPipeline fits the scaler and trains a model on the given set.
func TrainPipeline(train neural.Dataset, cfg Config, horizon int, seed int64) (*Pipeline, error) {
	n := train.Len()
	if n == 0 {
		return nil, fmt.Errorf("training set is empty")
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	inputs, _, err := train.Batch(indices)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch training batch: %w", err)
	}

	scaler, err := FitScaler(inputs)
	if err != nil {
		return nil, err
	}

	model, err := neural.NewModel(cfg.modelConfig(horizon, len(inputs[0]), seed))
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	if err := model.TrainWithDataset(&scaledSet{base: train, scaler: scaler}); err != nil {
		return nil, fmt.Errorf("failed to train horizon-%d model: %w", horizon, err)
	}
	return &Pipeline{
		Horizon:   horizon,
		Threshold: cfg.Threshold,
		Scaler:    scaler,
		Model:     model,
	}, nil
}

// Probability scores one raw (unscaled) input vector.
func (p *Pipeline) Probability(in []float32) (float64, error) {
	scaled, err := p.Scaler.Transform(in)
	if err != nil {
		return 0, err
	}
	prob, err := p.Model.Probability(scaled)
	if err != nil {
		return 0, err
	}
	return float64(prob), nil
}

// Evaluate scores the pipeline on a raw dataset at the given cutoff.
func (p *Pipeline) Evaluate(ds neural.Dataset, cutoff float64) (neural.Metrics, error) {
	return neural.EvaluateModel(p.Model, &scaledSet{base: ds, scaler: p.Scaler}, cutoff)
}
