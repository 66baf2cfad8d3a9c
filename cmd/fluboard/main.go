package main

import (
	"context"
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/server"
	"github.com/Noofbiz/fluCast/store"
)

// resultsVersion must match the version flucast writes into its artifact.
const resultsVersion = 1

// resultsFile matches the artifact written by flucast -mode evaluate. Gob
// matches struct fields by name, so only the fields the dashboard reads are
// declared here.
type resultsFile struct {
	Version    int
	DataGlob   string
	Evaluation *forecast.Evaluation
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// A .env file is optional; real FLUCAST_* variables win either way.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := server.NewLogger(cfg)
	slog.SetDefault(logger)

	table, err := features.Load(cfg.DataGlob)
	if err != nil {
		logger.Error("failed to load feature table", "error", err, "pattern", cfg.DataGlob)
		os.Exit(1)
	}
	logger.Info("feature table loaded",
		"rows", table.NumRows(),
		"states", len(table.States()),
		"seasons", len(table.Seasons()))

	// Evaluation results are optional (feature-flagged via results_path).
	var eval *forecast.Evaluation
	if cfg.ResultsPath != "" {
		results, resultsGlob, err := loadResults(cfg.ResultsPath)
		if err != nil {
			logger.Error("failed to load evaluation results", "error", err, "path", cfg.ResultsPath)
			os.Exit(1)
		}
		eval = results
		logger.Info("evaluation results loaded", "path", cfg.ResultsPath, "results", len(eval.Results))
		if resultsGlob != cfg.DataGlob {
			logger.Warn("results were built from a different data pattern",
				"results", resultsGlob, "serving", cfg.DataGlob)
		}
	} else {
		logger.Info("no results path configured, forecast endpoints disabled")
	}

	// The run history store is optional (feature-flagged via database_dsn).
	var runs *store.Store
	if cfg.DatabaseDSN != "" {
		runs, err = store.Open(store.Config{DSN: cfg.DatabaseDSN})
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		if err := runs.Migrate(context.Background()); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		logger.Info("run history store connected")
	} else {
		logger.Info("no database configured, run history disabled")
	}

	srv := server.New(cfg, server.Options{
		Table:      table,
		Evaluation: eval,
		Store:      runs,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if runs != nil {
		if err := runs.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func loadResults(path string) (*forecast.Evaluation, string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open results file: %w", err)
	}
	defer fh.Close()

	var art resultsFile
	if err := gob.NewDecoder(fh).Decode(&art); err != nil {
		return nil, "", fmt.Errorf("failed to decode results file: %w", err)
	}
	if art.Version != resultsVersion {
		return nil, "", fmt.Errorf("results version mismatch: file=%d expected=%d", art.Version, resultsVersion)
	}
	if art.Evaluation == nil || len(art.Evaluation.Results) == 0 {
		return nil, "", fmt.Errorf("results file holds no results")
	}
	return art.Evaluation, art.DataGlob, nil
}
