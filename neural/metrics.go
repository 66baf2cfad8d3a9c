package neural

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes binary classification quality on one evaluation set.
type Metrics struct {
	Examples  int `json:"examples"`
	Positives int `json:"positives"`

	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// Brier is the mean squared difference between predicted probability and
	// outcome; lower is better.
	Brier float64 `json:"brier"`

	// AUC is the area under the ROC curve via the rank statistic. A set with
	// only one class present scores an uninformative 0.5.
	AUC float64 `json:"auc"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("n=%d pos=%d acc=%.3f prec=%.3f rec=%.3f f1=%.3f brier=%.4f auc=%.3f",
		m.Examples, m.Positives, m.Accuracy, m.Precision, m.Recall, m.F1, m.Brier, m.AUC)
}

// ComputeMetrics scores predicted probabilities against 0/1 outcomes,
// thresholding at cutoff for the confusion counts.
func ComputeMetrics(probs, labels []float64, cutoff float64) (Metrics, error) {
	if len(probs) != len(labels) {
		return Metrics{}, fmt.Errorf("probs and labels lengths don't match: %d != %d", len(probs), len(labels))
	}
	if len(probs) == 0 {
		return Metrics{}, fmt.Errorf("no examples to score")
	}
	if cutoff <= 0 || cutoff >= 1 {
		return Metrics{}, fmt.Errorf("cutoff must be in (0, 1), got %v", cutoff)
	}

	m := Metrics{Examples: len(probs)}
	sq := make([]float64, len(probs))
	for i, p := range probs {
		y := labels[i] >= 0.5
		if y {
			m.Positives++
		}
		pred := p >= cutoff
		switch {
		case pred && y:
			m.TP++
		case pred && !y:
			m.FP++
		case !pred && !y:
			m.TN++
		default:
			m.FN++
		}
		d := p - labels[i]
		sq[i] = d * d
	}

	m.Accuracy = float64(m.TP+m.TN) / float64(m.Examples)
	if m.TP+m.FP > 0 {
		m.Precision = float64(m.TP) / float64(m.TP+m.FP)
	}
	if m.TP+m.FN > 0 {
		m.Recall = float64(m.TP) / float64(m.TP+m.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.Brier = stat.Mean(sq, nil)
	m.AUC = rankAUC(probs, labels)
	return m, nil
}

// rankAUC computes the area under the ROC curve as the Mann-Whitney rank
// statistic, averaging ranks across tied scores.
func rankAUC(probs, labels []float64) float64 {
	n := len(probs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] < probs[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[order[j]] == probs[order[i]] {
			j++
		}
		// Ranks are 1-based; ties share the average rank of their run.
		avg := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var posRankSum float64
	pos := 0
	for i, y := range labels {
		if y >= 0.5 {
			pos++
			posRankSum += ranks[i]
		}
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	u := posRankSum - float64(pos)*float64(pos+1)/2.0
	return u / (float64(pos) * float64(neg))
}

// EvaluateModel scores a trained model over every example of a dataset.
func EvaluateModel(m *Model, ds Dataset, cutoff float64) (Metrics, error) {
	n := ds.Len()
	if n == 0 {
		return Metrics{}, fmt.Errorf("dataset has no examples")
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to fetch evaluation batch: %w", err)
	}
	preds, err := m.PredictBatch(inputs)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to predict evaluation batch: %w", err)
	}

	probs := make([]float64, n)
	ys := make([]float64, n)
	for i := range preds {
		probs[i] = float64(preds[i][0])
		ys[i] = float64(labels[i][0])
	}
	return ComputeMetrics(probs, ys, cutoff)
}
