package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/neural"
)

// Run is one persisted evaluation run. DataGlob and Note come from the
// caller; the rest is filled from the evaluation on save.
type Run struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	DataGlob  string    `db:"data_glob" json:"data_glob"`
	Note      string    `db:"note" json:"note"`
	Window    int       `db:"window_weeks" json:"window_weeks"`
	Threshold float64   `db:"threshold" json:"threshold"`
	Seed      int64     `db:"seed" json:"seed"`
	Horizons  string    `db:"horizons" json:"horizons"`
	Seasons   string    `db:"seasons" json:"seasons"`

	// Config is the run's forecast configuration as JSON.
	Config string `db:"config" json:"-"`

	// Results is the run's result count, filled on reads.
	Results int `db:"results" json:"results"`
}

// ForecastConfig decodes the stored configuration.
func (r Run) ForecastConfig() (forecast.Config, error) {
	var cfg forecast.Config
	if err := json.Unmarshal([]byte(r.Config), &cfg); err != nil {
		return forecast.Config{}, fmt.Errorf("failed to decode run config: %w", err)
	}
	return cfg, nil
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// normalized fills the generated and derived run fields before insert.
func (r Run) normalized(cfg forecast.Config, ev *forecast.Evaluation) Run {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Window = cfg.Window
	r.Seed = cfg.Seed
	r.Threshold = ev.Threshold
	r.Horizons = joinInts(ev.Horizons)
	r.Seasons = strings.Join(ev.Seasons, ", ")
	r.Results = len(ev.Results)
	if data, err := json.Marshal(cfg); err == nil {
		r.Config = string(data)
	} else {
		r.Config = "{}"
	}
	return r
}

// SaveEvaluation stores a run with all its results and predictions in one
// transaction. It returns the run ID.
func (s *Store) SaveEvaluation(ctx context.Context, run Run, cfg forecast.Config, ev *forecast.Evaluation) (string, error) {
	if ev == nil || len(ev.Results) == 0 {
		return "", fmt.Errorf("evaluation has no results")
	}
	run = run.normalized(cfg, ev)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO forecast_runs (
			id, created_at, data_glob, note,
			window_weeks, threshold, seed, horizons, seasons, config
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.ExecContext(ctx, insertRun,
		run.ID, run.CreatedAt, run.DataGlob, run.Note,
		run.Window, run.Threshold, run.Seed, run.Horizons, run.Seasons, run.Config,
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	resultStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_results (
			run_id, horizon, season, threshold, train_examples, test_examples,
			examples, positives, tp, fp, tn, fn,
			accuracy, precision, recall, f1, brier, auc
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare result statement: %w", err)
	}
	defer resultStmt.Close()

	predStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_predictions (
			run_id, horizon, season, state, year, week,
			base_year, base_week, probability, predicted, actual, rate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare prediction statement: %w", err)
	}
	defer predStmt.Close()

	for _, r := range ev.Results {
		m := r.Metrics
		if _, err := resultStmt.ExecContext(ctx,
			run.ID, r.Horizon, r.Season, r.Threshold, r.TrainExamples, r.TestExamples,
			m.Examples, m.Positives, m.TP, m.FP, m.TN, m.FN,
			m.Accuracy, m.Precision, m.Recall, m.F1, m.Brier, m.AUC,
		); err != nil {
			return "", fmt.Errorf("failed to insert result h=%d %s: %w", r.Horizon, r.Season, err)
		}
		for _, p := range r.Predictions {
			if _, err := predStmt.ExecContext(ctx,
				run.ID, p.Horizon, p.Season, p.State, p.Year, p.Week,
				p.BaseYear, p.BaseWeek, p.Probability, p.Predicted, p.Actual, p.Rate,
			); err != nil {
				return "", fmt.Errorf("failed to insert prediction %s %d-W%02d: %w", p.State, p.Year, p.Week, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return run.ID, nil
}

const runColumns = `
	id, created_at, data_glob, note,
	window_weeks, threshold, seed, horizons, seasons, config,
	(SELECT COUNT(*) FROM forecast_results r WHERE r.run_id = forecast_runs.id) AS results
`

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM forecast_runs WHERE id = $1`
	var run Run
	err := s.db.GetContext(ctx, &run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM forecast_runs ORDER BY created_at DESC LIMIT $1`
	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

type resultRow struct {
	Horizon       int     `db:"horizon"`
	Season        string  `db:"season"`
	Threshold     float64 `db:"threshold"`
	TrainExamples int     `db:"train_examples"`
	TestExamples  int     `db:"test_examples"`
	Examples      int     `db:"examples"`
	Positives     int     `db:"positives"`
	TP            int     `db:"tp"`
	FP            int     `db:"fp"`
	TN            int     `db:"tn"`
	FN            int     `db:"fn"`
	Accuracy      float64 `db:"accuracy"`
	Precision     float64 `db:"precision"`
	Recall        float64 `db:"recall"`
	F1            float64 `db:"f1"`
	Brier         float64 `db:"brier"`
	AUC           float64 `db:"auc"`
}

func (row resultRow) seasonResult() *forecast.SeasonResult {
	return &forecast.SeasonResult{
		Season:        row.Season,
		Horizon:       row.Horizon,
		Threshold:     row.Threshold,
		TrainExamples: row.TrainExamples,
		TestExamples:  row.TestExamples,
		Metrics: neural.Metrics{
			Examples:  row.Examples,
			Positives: row.Positives,
			TP:        row.TP,
			FP:        row.FP,
			TN:        row.TN,
			FN:        row.FN,
			Accuracy:  row.Accuracy,
			Precision: row.Precision,
			Recall:    row.Recall,
			F1:        row.F1,
			Brier:     row.Brier,
			AUC:       row.AUC,
		},
	}
}

// Results returns a run's season results, without predictions, ordered by
// horizon then season.
func (s *Store) Results(ctx context.Context, runID string) ([]*forecast.SeasonResult, error) {
	const query = `
		SELECT horizon, season, threshold, train_examples, test_examples,
		       examples, positives, tp, fp, tn, fn,
		       accuracy, precision, recall, f1, brier, auc
		FROM forecast_results
		WHERE run_id = $1
		ORDER BY horizon, season
	`
	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	if len(rows) == 0 {
		// Every stored run has results, so none means no such run.
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	out := make([]*forecast.SeasonResult, len(rows))
	for i, row := range rows {
		out[i] = row.seasonResult()
	}
	return out, nil
}

// PredictionFilter narrows a run's predictions. Nil fields match everything.
type PredictionFilter struct {
	Season  *string
	Horizon *int
	State   *string
	Limit   int
}

func buildPredictionsQuery(runID string, f PredictionFilter) (string, []interface{}) {
	query := `
		SELECT horizon, season, state, year, week,
		       base_year, base_week, probability, predicted, actual, rate
		FROM forecast_predictions
		WHERE run_id = $1
	`
	args := []interface{}{runID}
	argNum := 2

	if f.Season != nil {
		query += fmt.Sprintf(" AND season = $%d", argNum)
		args = append(args, *f.Season)
		argNum++
	}
	if f.Horizon != nil {
		query += fmt.Sprintf(" AND horizon = $%d", argNum)
		args = append(args, *f.Horizon)
		argNum++
	}
	if f.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argNum)
		args = append(args, *f.State)
		argNum++
	}

	query += " ORDER BY horizon, season, state, year, week"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, f.Limit)
	}
	return query, args
}

type predictionRow struct {
	Horizon     int     `db:"horizon"`
	Season      string  `db:"season"`
	State       string  `db:"state"`
	Year        int     `db:"year"`
	Week        int     `db:"week"`
	BaseYear    int     `db:"base_year"`
	BaseWeek    int     `db:"base_week"`
	Probability float64 `db:"probability"`
	Predicted   bool    `db:"predicted"`
	Actual      bool    `db:"actual"`
	Rate        float64 `db:"rate"`
}

// Predictions returns a run's predictions, optionally filtered.
func (s *Store) Predictions(ctx context.Context, runID string, f PredictionFilter) ([]forecast.Prediction, error) {
	query, args := buildPredictionsQuery(runID, f)
	var rows []predictionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	out := make([]forecast.Prediction, len(rows))
	for i, row := range rows {
		out[i] = forecast.Prediction{
			State:       row.State,
			Year:        row.Year,
			Week:        row.Week,
			Season:      row.Season,
			BaseYear:    row.BaseYear,
			BaseWeek:    row.BaseWeek,
			Horizon:     row.Horizon,
			Probability: row.Probability,
			Predicted:   row.Predicted,
			Actual:      row.Actual,
			Rate:        row.Rate,
		}
	}
	return out, nil
}
