// Package export writes the analysis artifacts as report files: CSV for
// downstream tooling and an XLSX workbook for hand inspection. CSV files are
// BOM-prefixed so Excel decodes the umlauts in state names.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/waves"
)

// writeCSV writes one report CSV with a UTF-8 BOM prefix.
func writeCSV(path string, headers []string, records [][]string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	// BOM helps Excel recognize UTF-8.
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, record := range records {
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

func itoa(v int) string     { return strconv.Itoa(v) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
func btoa(v bool) string    { return strconv.FormatBool(v) }

// WaveCSV writes the per-state season wave summaries.
func WaveCSV(path string, sums []waves.SeasonSummary) error {
	if len(sums) == 0 {
		return fmt.Errorf("no wave summaries to export")
	}
	headers := []string{
		"state", "season", "has_wave",
		"start_year", "start_week", "end_year", "end_week", "length_weeks",
		"peak_year", "peak_week", "peak_rate", "mean_rate", "severe",
	}
	records := make([][]string, 0, len(sums))
	for _, s := range sums {
		records = append(records, []string{
			s.State, s.Season, btoa(s.HasWave),
			itoa(s.StartYear), itoa(s.StartWeek), itoa(s.EndYear), itoa(s.EndWeek), itoa(s.Length),
			itoa(s.PeakYear), itoa(s.PeakWeek), ftoa(s.PeakRate), ftoa(s.MeanRate), btoa(s.Severe),
		})
	}
	return writeCSV(path, headers, records)
}

// MetricsCSV writes one row of evaluation metrics per horizon and season.
func MetricsCSV(path string, ev *forecast.Evaluation) error {
	if ev == nil || len(ev.Results) == 0 {
		return fmt.Errorf("evaluation has no results")
	}
	headers := []string{
		"horizon", "season", "threshold", "train_examples", "test_examples",
		"examples", "positives", "tp", "fp", "tn", "fn",
		"accuracy", "precision", "recall", "f1", "brier", "auc",
	}
	records := make([][]string, 0, len(ev.Results))
	for _, r := range ev.Results {
		m := r.Metrics
		records = append(records, []string{
			itoa(r.Horizon), r.Season, ftoa(r.Threshold), itoa(r.TrainExamples), itoa(r.TestExamples),
			itoa(m.Examples), itoa(m.Positives), itoa(m.TP), itoa(m.FP), itoa(m.TN), itoa(m.FN),
			ftoa(m.Accuracy), ftoa(m.Precision), ftoa(m.Recall), ftoa(m.F1), ftoa(m.Brier), ftoa(m.AUC),
		})
	}
	return writeCSV(path, headers, records)
}

// PredictionsCSV writes every scored state-week of an evaluation.
func PredictionsCSV(path string, preds []forecast.Prediction) error {
	if len(preds) == 0 {
		return fmt.Errorf("no predictions to export")
	}
	headers := []string{
		"season", "horizon", "state", "year", "week",
		"base_year", "base_week", "probability", "predicted", "actual", "rate",
	}
	records := make([][]string, 0, len(preds))
	for _, p := range preds {
		records = append(records, []string{
			p.Season, itoa(p.Horizon), p.State, itoa(p.Year), itoa(p.Week),
			itoa(p.BaseYear), itoa(p.BaseWeek), ftoa(p.Probability), btoa(p.Predicted), btoa(p.Actual), ftoa(p.Rate),
		})
	}
	return writeCSV(path, headers, records)
}
