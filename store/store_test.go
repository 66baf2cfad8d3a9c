package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/fluCast/forecast"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{DSN: "postgres://localhost/flucast"}.withDefaults()
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)

	custom := Config{DSN: "x", MaxOpenConns: 3}.withDefaults()
	assert.Equal(t, 3, custom.MaxOpenConns)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestRunNormalized(t *testing.T) {
	cfg := forecast.Config{}.WithDefaults()
	cfg.Seed = 42
	ev := &forecast.Evaluation{
		Horizons:  []int{1, 2},
		Seasons:   []string{"2014/15", "2015/16"},
		Threshold: 0.8,
		Results: []*forecast.SeasonResult{
			{Season: "2014/15", Horizon: 1},
			{Season: "2015/16", Horizon: 1},
			{Season: "2014/15", Horizon: 2},
		},
	}

	run := Run{DataGlob: "data/*.csv", Note: "nightly"}.normalized(cfg, ev)

	_, err := uuid.Parse(run.ID)
	require.NoError(t, err, "normalized run should get a UUID")
	assert.False(t, run.CreatedAt.IsZero())

	type runSummary struct {
		DataGlob  string
		Window    int
		Seed      int64
		Threshold float64
		Horizons  string
		Seasons   string
		Results   int
	}
	expected := runSummary{
		DataGlob:  "data/*.csv",
		Window:    cfg.Window,
		Seed:      42,
		Threshold: 0.8,
		Horizons:  "1, 2",
		Seasons:   "2014/15, 2015/16",
		Results:   3,
	}
	actual := runSummary{
		DataGlob:  run.DataGlob,
		Window:    run.Window,
		Seed:      run.Seed,
		Threshold: run.Threshold,
		Horizons:  run.Horizons,
		Seasons:   run.Seasons,
		Results:   run.Results,
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Fatalf("normalized run mismatch (-want +got):\n%s", diff)
	}

	decoded, err := run.ForecastConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func TestRunNormalizedKeepsExplicitID(t *testing.T) {
	id := uuid.New().String()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := &forecast.Evaluation{Results: []*forecast.SeasonResult{{}}}

	run := Run{ID: id, CreatedAt: at}.normalized(forecast.Config{}, ev)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, at, run.CreatedAt)
}

func TestForecastConfigRejectsGarbage(t *testing.T) {
	_, err := Run{Config: "not json"}.ForecastConfig()
	require.Error(t, err)
}

func TestBuildPredictionsQuery(t *testing.T) {
	season := "2014/15"
	horizon := 2
	state := "BW"

	t.Run("no filters", func(t *testing.T) {
		query, args := buildPredictionsQuery("run-1", PredictionFilter{})
		assert.Contains(t, query, "WHERE run_id = $1")
		assert.NotContains(t, query, "AND")
		assert.NotContains(t, query, "LIMIT")
		assert.Equal(t, []interface{}{"run-1"}, args)
	})

	t.Run("all filters", func(t *testing.T) {
		query, args := buildPredictionsQuery("run-1", PredictionFilter{
			Season:  &season,
			Horizon: &horizon,
			State:   &state,
			Limit:   50,
		})
		assert.Contains(t, query, "AND season = $2")
		assert.Contains(t, query, "AND horizon = $3")
		assert.Contains(t, query, "AND state = $4")
		assert.Contains(t, query, "LIMIT $5")
		assert.Equal(t, []interface{}{"run-1", season, horizon, state, 50}, args)
	})

	t.Run("state only", func(t *testing.T) {
		query, args := buildPredictionsQuery("run-1", PredictionFilter{State: &state})
		assert.Contains(t, query, "AND state = $2")
		assert.NotContains(t, query, "season =")
		assert.Equal(t, []interface{}{"run-1", state}, args)
	})
}

func TestSaveEvaluationRejectsEmpty(t *testing.T) {
	s := &Store{}
	_, err := s.SaveEvaluation(context.Background(), Run{}, forecast.Config{}, nil)
	require.Error(t, err)
	_, err = s.SaveEvaluation(context.Background(), Run{}, forecast.Config{}, &forecast.Evaluation{})
	require.Error(t, err)
}

func TestReplaceSeasonWavesRejectsEmpty(t *testing.T) {
	s := &Store{}
	require.Error(t, s.ReplaceSeasonWaves(context.Background(), nil))
}
