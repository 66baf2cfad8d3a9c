package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Noofbiz/fluCast/waves"
)

// ReplaceSeasonWaves replaces the stored wave summaries with the given set,
// in one transaction. The summaries are global, not tied to a run; a fresh
// analysis overwrites the previous one.
func (s *Store) ReplaceSeasonWaves(ctx context.Context, sums []waves.SeasonSummary) error {
	if len(sums) == 0 {
		return fmt.Errorf("no wave summaries to store")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM season_waves`); err != nil {
		return fmt.Errorf("failed to clear season waves: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO season_waves (
			state, season, has_wave,
			start_year, start_week, end_year, end_week, length_weeks,
			peak_year, peak_week, peak_rate, mean_rate, severe, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare wave statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, sum := range sums {
		if _, err := stmt.ExecContext(ctx,
			sum.State, sum.Season, sum.HasWave,
			sum.StartYear, sum.StartWeek, sum.EndYear, sum.EndWeek, sum.Length,
			sum.PeakYear, sum.PeakWeek, sum.PeakRate, sum.MeanRate, sum.Severe, now,
		); err != nil {
			return fmt.Errorf("failed to insert wave %s %s: %w", sum.State, sum.Season, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type waveRow struct {
	State     string  `db:"state"`
	Season    string  `db:"season"`
	HasWave   bool    `db:"has_wave"`
	StartYear int     `db:"start_year"`
	StartWeek int     `db:"start_week"`
	EndYear   int     `db:"end_year"`
	EndWeek   int     `db:"end_week"`
	Length    int     `db:"length_weeks"`
	PeakYear  int     `db:"peak_year"`
	PeakWeek  int     `db:"peak_week"`
	PeakRate  float64 `db:"peak_rate"`
	MeanRate  float64 `db:"mean_rate"`
	Severe    bool    `db:"severe"`
}

// SeasonWaves returns the stored summaries, for every state or one state.
func (s *Store) SeasonWaves(ctx context.Context, state string) ([]waves.SeasonSummary, error) {
	query := `
		SELECT state, season, has_wave,
		       start_year, start_week, end_year, end_week, length_weeks,
		       peak_year, peak_week, peak_rate, mean_rate, severe
		FROM season_waves
	`
	var args []interface{}
	if state != "" {
		query += ` WHERE state = $1`
		args = append(args, state)
	}
	query += ` ORDER BY state, season`

	var rows []waveRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query season waves: %w", err)
	}
	out := make([]waves.SeasonSummary, len(rows))
	for i, row := range rows {
		out[i] = waves.SeasonSummary{
			State:     row.State,
			Season:    row.Season,
			HasWave:   row.HasWave,
			StartYear: row.StartYear,
			StartWeek: row.StartWeek,
			EndYear:   row.EndYear,
			EndWeek:   row.EndWeek,
			Length:    row.Length,
			PeakYear:  row.PeakYear,
			PeakWeek:  row.PeakWeek,
			PeakRate:  row.PeakRate,
			MeanRate:  row.MeanRate,
			Severe:    row.Severe,
		}
	}
	return out, nil
}
