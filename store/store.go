// Package store persists evaluation runs, their predictions and the season
// wave summaries to PostgreSQL. It backs the dashboard's run history; the
// plain file workflow works without it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Config holds the database connection settings.
type Config struct {
	// DSN is a lib/pq connection string, either key=value or a postgres:// URL.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	return cfg
}

// Store wraps the pooled database handle.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL, configures the pool and verifies the
// connection with a ping.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS forecast_runs (
    id           UUID PRIMARY KEY,
    created_at   TIMESTAMPTZ NOT NULL,
    data_glob    TEXT NOT NULL DEFAULT '',
    note         TEXT NOT NULL DEFAULT '',
    window_weeks INTEGER NOT NULL,
    threshold    DOUBLE PRECISION NOT NULL,
    seed         BIGINT NOT NULL,
    horizons     TEXT NOT NULL,
    seasons      TEXT NOT NULL,
    config       JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS forecast_results (
    run_id         UUID NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
    horizon        INTEGER NOT NULL,
    season         TEXT NOT NULL,
    threshold      DOUBLE PRECISION NOT NULL,
    train_examples INTEGER NOT NULL,
    test_examples  INTEGER NOT NULL,
    examples       INTEGER NOT NULL,
    positives      INTEGER NOT NULL,
    tp             INTEGER NOT NULL,
    fp             INTEGER NOT NULL,
    tn             INTEGER NOT NULL,
    fn             INTEGER NOT NULL,
    accuracy       DOUBLE PRECISION NOT NULL,
    precision      DOUBLE PRECISION NOT NULL,
    recall         DOUBLE PRECISION NOT NULL,
    f1             DOUBLE PRECISION NOT NULL,
    brier          DOUBLE PRECISION NOT NULL,
    auc            DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, horizon, season)
);

CREATE TABLE IF NOT EXISTS forecast_predictions (
    run_id      UUID NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
    horizon     INTEGER NOT NULL,
    season      TEXT NOT NULL,
    state       TEXT NOT NULL,
    year        INTEGER NOT NULL,
    week        INTEGER NOT NULL,
    base_year   INTEGER NOT NULL,
    base_week   INTEGER NOT NULL,
    probability DOUBLE PRECISION NOT NULL,
    predicted   BOOLEAN NOT NULL,
    actual      BOOLEAN NOT NULL,
    rate        DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, horizon, state, year, week)
);

CREATE INDEX IF NOT EXISTS idx_predictions_run_state
    ON forecast_predictions (run_id, state);

CREATE TABLE IF NOT EXISTS season_waves (
    state        TEXT NOT NULL,
    season       TEXT NOT NULL,
    has_wave     BOOLEAN NOT NULL,
    start_year   INTEGER NOT NULL,
    start_week   INTEGER NOT NULL,
    end_year     INTEGER NOT NULL,
    end_week     INTEGER NOT NULL,
    length_weeks INTEGER NOT NULL,
    peak_year    INTEGER NOT NULL,
    peak_week    INTEGER NOT NULL,
    peak_rate    DOUBLE PRECISION NOT NULL,
    mean_rate    DOUBLE PRECISION NOT NULL,
    severe       BOOLEAN NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (state, season)
);
`

// Migrate creates the schema. Statements are idempotent, so running it on
// every startup is fine.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
