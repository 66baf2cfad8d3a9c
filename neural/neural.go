// Package neural implements the binary classifier behind the wave forecasts:
// a small multi-layer perceptron with a sigmoid output trained on binary
// cross-entropy, in pure Go so experiments stay fast and deterministic.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds configurable hyperparameters for the MLP model and training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputDim is the dimensionality of the input feature vector. It must be
	// set; the window width decides it.
	InputDim int

	// LearningRate used by the optimizer (SGD or Adam).
	LearningRate float64

	// Epochs to train for (default 30).
	Epochs int

	// BatchSize for mini-batch updates (default 16).
	BatchSize int

	// Seed controls RNG for weight init and shuffling. If zero, a time-based
	// seed is used.
	Seed int64

	// Optimizer selects the optimizer to use: "adam" or "sgd". Default: "adam".
	Optimizer string

	// Adam hyperparameters (used when Optimizer == "adam"; defaults below if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm caps the global gradient norm per update. If zero a sensible
	// default is used; negative disables clipping.
	ClipNorm float64
}

// withDefaults fills zero fields in place of NewModel's scattered defaults.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.InputDim <= 0 {
		return cfg, fmt.Errorf("InputDim must be positive, got %d", cfg.InputDim)
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	for _, h := range cfg.HiddenSizes {
		if h < 1 {
			return cfg, fmt.Errorf("hidden sizes must be positive, got %v", cfg.HiddenSizes)
		}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 30
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 16
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	switch cfg.Optimizer {
	case "":
		cfg.Optimizer = "adam"
	case "adam", "sgd":
	default:
		return cfg, fmt.Errorf("unknown optimizer %q (want adam or sgd)", cfg.Optimizer)
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5.0
	}
	return cfg, nil
}

// Dataset is the minimal interface the trainer requires. The features
// package's WindowedSet satisfies it.
type Dataset interface {
	Len() int
	// Batch returns inputs and labels for the provided indices. Labels are
	// length-1 vectors holding 0 or 1.
	Batch(indices []int) ([][]float32, [][]float32, error)
}

// Model is a small configurable MLP scoring the probability that the
// infection rate crosses the configured threshold at the forecast horizon.
// Hidden layers use ReLU, the single output unit a sigmoid.
type Model struct {
	// Config used for training / initialization, with defaults applied.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	// Adam moment estimates, allocated lazily on first update.
	adamM [][][]float32
	adamV [][][]float32
	adamB [][]float32
	adamC [][]float32
	steps int

	// rng used for weight initialization and shuffling
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	const outputDim = 1
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				// Xavier/Glorot uniform initialization heuristic
				limit := float32(math.Sqrt(6.0 / float64(in+out)))
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// InputDim returns the width of input vectors the model accepts.
func (m *Model) InputDim() int { return m.layerSizes[0] }

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// activationReLUDeriv returns elementwise derivative of ReLU applied to preact.
func activationReLUDeriv(preact []float32) []float32 {
	d := make([]float32, len(preact))
	for i := range preact {
		if preact[i] > 0 {
			d[i] = 1.0
		}
	}
	return d
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has dimension %d, model expects %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = make([]float32, len(input))
	copy(acts[0], input)

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		outDim := len(m.biases[l])
		inDim := len(inVec)
		pre := make([]float32, outDim)
		W := m.weights[l]
		b := m.biases[l]
		for j := 0; j < outDim; j++ {
			sum := float32(0.0)
			row := W[j]
			for i := 0; i < inDim; i++ {
				sum += row[i] * inVec[i]
			}
			sum += b[j]
			pre[j] = sum
		}
		preActs[l] = pre

		// Activation: ReLU for hidden, sigmoid for the output layer
		act := make([]float32, outDim)
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		} else {
			for j := range act {
				act[j] = sigmoid(act[j])
			}
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// Probability returns the model's crossing probability for one input.
func (m *Model) Probability(input []float32) (float32, error) {
	_, acts, err := m.forwardSingle(input)
	if err != nil {
		return 0, err
	}
	return acts[len(acts)-1][0], nil
}

// PredictBatch returns crossing probabilities for a batch of inputs. The
// returned [][]float32 has shape [batch][1].
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		last := acts[len(acts)-1]
		pred := make([]float32, len(last))
		copy(pred, last)
		out[i] = pred
	}
	return out, nil
}

// TrainWithDataset trains the model with mini-batch gradient descent on
// binary cross-entropy. Gradients are accumulated over each mini-batch,
// averaged, clipped to Config.ClipNorm and applied by the configured
// optimizer.
func (m *Model) TrainWithDataset(ds Dataset) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}

	cfg := m.Config
	lr := float32(cfg.LearningRate)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	for ep := 0; ep < cfg.Epochs; ep++ {
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for bstart := 0; bstart < n; bstart += cfg.BatchSize {
			bend := bstart + cfg.BatchSize
			if bend > n {
				bend = n
			}
			batchIdx := indices[bstart:bend]

			inputs, labels, err := ds.Batch(batchIdx)
			if err != nil {
				return err
			}
			batchN := len(inputs)
			if batchN == 0 {
				continue
			}

			gradW, gradB := m.zeroGrads()

			for ex := 0; ex < batchN; ex++ {
				in := inputs[ex]
				la := labels[ex]
				if len(la) != 1 {
					return fmt.Errorf("label at example %d has dimension %d, want 1", ex, len(la))
				}

				preacts, acts, err := m.forwardSingle(in)
				if err != nil {
					return err
				}

				// Sigmoid with cross-entropy: dLoss/dPreact = p - y.
				outAct := acts[len(acts)-1]
				delta := []float32{outAct[0] - la[0]}

				for l := len(m.weights) - 1; l >= 0; l-- {
					inAct := acts[l]
					outDim := len(delta)
					inDim := len(inAct)

					for j := 0; j < outDim; j++ {
						gradB[l][j] += delta[j]
						for i := 0; i < inDim; i++ {
							gradW[l][j][i] += delta[j] * inAct[i]
						}
					}

					if l > 0 {
						prevLen := len(m.weights[l][0])
						newDelta := make([]float32, prevLen)
						for i := 0; i < prevLen; i++ {
							sum := float32(0.0)
							for j := 0; j < outDim; j++ {
								sum += m.weights[l][j][i] * delta[j]
							}
							newDelta[i] = sum
						}
						deriv := activationReLUDeriv(preacts[l-1])
						for i := 0; i < prevLen; i++ {
							newDelta[i] *= deriv[i]
						}
						delta = newDelta
					}
				}
			}

			m.averageGrads(gradW, gradB, batchN)
			m.clipGrads(gradW, gradB)
			if cfg.Optimizer == "adam" {
				m.applyAdam(gradW, gradB)
			} else {
				m.applySGD(gradW, gradB, lr)
			}
		}
	}

	return nil
}

// zeroGrads allocates gradient accumulators shaped like the parameters.
func (m *Model) zeroGrads() ([][][]float32, [][]float32) {
	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := 0; l < L; l++ {
		outDim := len(m.biases[l])
		inDim := len(m.weights[l][0])
		gradW[l] = make([][]float32, outDim)
		for j := 0; j < outDim; j++ {
			gradW[l][j] = make([]float32, inDim)
		}
		gradB[l] = make([]float32, outDim)
	}
	return gradW, gradB
}

func (m *Model) averageGrads(gradW [][][]float32, gradB [][]float32, batchN int) {
	bInv := float32(1.0 / float64(batchN))
	for l := range gradW {
		for j := range gradW[l] {
			gradB[l][j] *= bInv
			for i := range gradW[l][j] {
				gradW[l][j][i] *= bInv
			}
		}
	}
}

// clipGrads rescales all gradients when their global norm exceeds ClipNorm.
func (m *Model) clipGrads(gradW [][][]float32, gradB [][]float32) {
	clip := m.Config.ClipNorm
	if clip <= 0 {
		return
	}
	var sq float64
	for l := range gradW {
		for j := range gradW[l] {
			sq += float64(gradB[l][j]) * float64(gradB[l][j])
			for i := range gradW[l][j] {
				sq += float64(gradW[l][j][i]) * float64(gradW[l][j][i])
			}
		}
	}
	norm := math.Sqrt(sq)
	if norm <= clip {
		return
	}
	scale := float32(clip / norm)
	for l := range gradW {
		for j := range gradW[l] {
			gradB[l][j] *= scale
			for i := range gradW[l][j] {
				gradW[l][j][i] *= scale
			}
		}
	}
}

func (m *Model) applySGD(gradW [][][]float32, gradB [][]float32, lr float32) {
	for l := range m.weights {
		for j := range m.weights[l] {
			m.biases[l][j] -= lr * gradB[l][j]
			for i := range m.weights[l][j] {
				m.weights[l][j][i] -= lr * gradW[l][j][i]
			}
		}
	}
}

// applyAdam performs one bias-corrected Adam step.
func (m *Model) applyAdam(gradW [][][]float32, gradB [][]float32) {
	if m.adamM == nil {
		m.adamM, m.adamB = m.zeroGrads()
		m.adamV, m.adamC = m.zeroGrads()
	}
	m.steps++
	cfg := m.Config
	b1 := float32(cfg.Beta1)
	b2 := float32(cfg.Beta2)
	lr := cfg.LearningRate
	// Bias-corrected step size.
	corr := lr * math.Sqrt(1.0-math.Pow(cfg.Beta2, float64(m.steps))) /
		(1.0 - math.Pow(cfg.Beta1, float64(m.steps)))
	step := float32(corr)
	eps := float32(cfg.Epsilon)

	for l := range m.weights {
		for j := range m.weights[l] {
			g := gradB[l][j]
			m.adamB[l][j] = b1*m.adamB[l][j] + (1-b1)*g
			m.adamC[l][j] = b2*m.adamC[l][j] + (1-b2)*g*g
			m.biases[l][j] -= step * m.adamB[l][j] /
				(float32(math.Sqrt(float64(m.adamC[l][j]))) + eps)

			for i := range m.weights[l][j] {
				g := gradW[l][j][i]
				m.adamM[l][j][i] = b1*m.adamM[l][j][i] + (1-b1)*g
				m.adamV[l][j][i] = b2*m.adamV[l][j][i] + (1-b2)*g*g
				m.weights[l][j][i] -= step * m.adamM[l][j][i] /
					(float32(math.Sqrt(float64(m.adamV[l][j][i]))) + eps)
			}
		}
	}
}

// DatasetLoss returns the mean binary cross-entropy over a dataset.
func (m *Model) DatasetLoss(ds Dataset) (float64, error) {
	n := ds.Len()
	if n == 0 {
		return 0, errors.New("dataset has no examples")
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		return 0, err
	}
	var total float64
	for i := range inputs {
		p, err := m.Probability(inputs[i])
		if err != nil {
			return 0, err
		}
		total += crossEntropy(float64(p), float64(labels[i][0]))
	}
	return total / float64(n), nil
}

// crossEntropy is the per-example binary cross-entropy with probability
// clamping for numerical safety.
func crossEntropy(p, y float64) float64 {
	const eps = 1e-7
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
