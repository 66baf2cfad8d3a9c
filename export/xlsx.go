package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/waves"
)

// RunInfo labels a workbook with where its numbers came from.
type RunInfo struct {
	CreatedAt time.Time
	DataGlob  string
	Note      string
	Config    forecast.Config
}

// Workbook writes a full evaluation report as an XLSX file: an Overview sheet
// with the run configuration, one metrics sheet per horizon and a Waves sheet
// with the season summaries.
func Workbook(path string, info RunInfo, ev *forecast.Evaluation, sums []waves.SeasonSummary) error {
	if ev == nil || len(ev.Results) == 0 {
		return fmt.Errorf("evaluation has no results")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), "Overview"); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeOverview(f, info, ev); err != nil {
		return err
	}
	for _, h := range ev.Horizons {
		if err := writeHorizonSheet(f, ev, h); err != nil {
			return err
		}
	}
	if err := writeWaveSheet(f, sums); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// setRow fills one sheet row from column A.
func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to name column %d: %w", i+1, err)
		}
		if err := f.SetCellValue(sheet, col+strconv.Itoa(row), v); err != nil {
			return fmt.Errorf("failed to set cell %s%d: %w", col, row, err)
		}
	}
	return nil
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func writeOverview(f *excelize.File, info RunInfo, ev *forecast.Evaluation) error {
	cfg := info.Config
	states := "all"
	if len(cfg.States) > 0 {
		states = strings.Join(cfg.States, ", ")
	}
	rows := [][]interface{}{
		{"created_at", info.CreatedAt.Format(time.RFC3339)},
		{"data_glob", info.DataGlob},
		{"note", info.Note},
		{"seasons", strings.Join(ev.Seasons, ", ")},
		{"horizons", joinInts(ev.Horizons)},
		{"window", cfg.Window},
		{"threshold", ev.Threshold},
		{"cutoff", cfg.Cutoff},
		{"states", states},
		{"hidden_layers", joinInts(cfg.Hidden)},
		{"learning_rate", cfg.LearningRate},
		{"epochs", cfg.Epochs},
		{"batch_size", cfg.BatchSize},
		{"optimizer", cfg.Optimizer},
		{"clip_norm", cfg.ClipNorm},
		{"seed", cfg.Seed},
		{"results", len(ev.Results)},
	}
	if len(cfg.PerHorizon) > 0 {
		b, err := json.Marshal(cfg.PerHorizon)
		if err != nil {
			return fmt.Errorf("failed to encode per-horizon overrides: %w", err)
		}
		rows = append(rows, []interface{}{"per_horizon", string(b)})
	}
	if len(ev.Skipped) > 0 {
		rows = append(rows, []interface{}{"skipped", strings.Join(ev.Skipped, ", ")})
	}
	for i, row := range rows {
		if err := setRow(f, "Overview", i+1, row); err != nil {
			return err
		}
	}
	return nil
}

var metricsHeader = []interface{}{
	"season", "train_examples", "test_examples", "examples", "positives",
	"tp", "fp", "tn", "fn", "accuracy", "precision", "recall", "f1", "brier", "auc",
}

func writeHorizonSheet(f *excelize.File, ev *forecast.Evaluation, horizon int) error {
	sheet := fmt.Sprintf("Horizon %d", horizon)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
	}
	if err := setRow(f, sheet, 1, metricsHeader); err != nil {
		return err
	}
	for i, r := range ev.ForHorizon(horizon) {
		m := r.Metrics
		row := []interface{}{
			r.Season, r.TrainExamples, r.TestExamples, m.Examples, m.Positives,
			m.TP, m.FP, m.TN, m.FN, m.Accuracy, m.Precision, m.Recall, m.F1, m.Brier, m.AUC,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeWaveSheet(f *excelize.File, sums []waves.SeasonSummary) error {
	const sheet = "Waves"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
	}
	header := []interface{}{
		"state", "season", "has_wave",
		"start_year", "start_week", "end_year", "end_week", "length_weeks",
		"peak_year", "peak_week", "peak_rate", "mean_rate", "severe",
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, s := range sums {
		row := []interface{}{
			s.State, s.Season, s.HasWave,
			s.StartYear, s.StartWeek, s.EndYear, s.EndWeek, s.Length,
			s.PeakYear, s.PeakWeek, s.PeakRate, s.MeanRate, s.Severe,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}
