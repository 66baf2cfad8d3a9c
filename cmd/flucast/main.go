package main

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"

	"github.com/Noofbiz/fluCast/export"
	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/store"
	"github.com/Noofbiz/fluCast/visualize"
	"github.com/Noofbiz/fluCast/waves"
)

// cacheVersion is incremented when the on-disk results format changes.
var cacheVersion = 1

// defaultTunablesJSON is the embedded JSON used to create flucast.json when the
// user did not provide a -config path. We write this file as a convenience so
// the default configuration is available on disk; explicit CLI flags always
// override values read from it.
const defaultTunablesJSON = `{
  "forecast": {
    "horizons": [1, 2, 3, 4],
    "window": 4,
    "threshold": 0.8,
    "cutoff": 0.5,
    "states": [],
    "hidden": [32, 16],
    "learning_rate": 0.005,
    "epochs": 80,
    "batch_size": 32,
    "optimizer": "adam",
    "clip_norm": 5.0,
    "per_horizon": {},
    "workers": 0
  },
  "thresholds": {
    "onset": 0.8,
    "boundary": 2.0,
    "severe": 7.0
  },
  "paths": {
    "results": "output/results.gob",
    "reports": "reports",
    "plots": "plots"
  }
}
`

// tunables mirrors the JSON file. Pointer fields distinguish "absent" from
// zero so only values the file actually sets are applied.
type tunables struct {
	Forecast *struct {
		Horizons     []int                        `json:"horizons"`
		Window       *int                         `json:"window"`
		Threshold    *float64                     `json:"threshold"`
		Cutoff       *float64                     `json:"cutoff"`
		States       []string                     `json:"states"`
		Hidden       []int                        `json:"hidden"`
		LearningRate *float64                     `json:"learning_rate"`
		Epochs       *int                         `json:"epochs"`
		BatchSize    *int                         `json:"batch_size"`
		Optimizer    *string                      `json:"optimizer"`
		ClipNorm     *float64                     `json:"clip_norm"`
		PerHorizon   map[int]forecast.ModelParams `json:"per_horizon"`
		Workers      *int                         `json:"workers"`
	} `json:"forecast"`
	Thresholds *struct {
		Onset    *float64 `json:"onset"`
		Boundary *float64 `json:"boundary"`
		Severe   *float64 `json:"severe"`
	} `json:"thresholds"`
	Paths *struct {
		Results string `json:"results"`
		Reports string `json:"reports"`
		Plots   string `json:"plots"`
	} `json:"paths"`
}

// resultsArtifact is the on-disk representation of a full evaluation run,
// written by -mode evaluate and read back by -mode export and the dashboard.
type resultsArtifact struct {
	Version    int
	CreatedAt  int64
	DataGlob   string
	Config     forecast.Config
	Evaluation *forecast.Evaluation
}

func main() {
	// CLI flags
	mode := flag.String("mode", "plot", "what to run: plot, train, cv, grid, evaluate, export or frames")
	dataGlob := flag.String("data", "data/*.csv", "glob pattern for feature table CSV files")
	outDir := flag.String("out", "plots", "output directory for generated charts")
	configPath := flag.String("config", "", "path to JSON tunables file (optional). When empty, flucast.json is created from embedded defaults and loaded.")
	resultsPath := flag.String("results", "output/results.gob", "path of the gob results artifact written by evaluate and read by export")
	force := flag.Bool("force", false, "if true, recompute evaluation results even if the artifact exists")
	reportDir := flag.String("reports", "reports", "output directory for CSV and XLSX reports")
	note := flag.String("note", "", "free-form note stored with a persisted run")
	dbDSN := flag.String("db", "", "Postgres DSN. If set, evaluate persists the run and the wave statistics.")

	// Chart selection
	seasonFlag := flag.String("season", "", "season label, 2014/15 or 2014-15 (train, frames, heatmap, forecast chart)")
	stateFlag := flag.String("state", "", "state code or name for the per-state charts")
	statesFlag := flag.String("states", "", "comma-separated state selection for the rates chart (empty = all states)")
	signalFlag := flag.String("signal", "", "signal column for the trend and scatter charts")
	horizonFlag := flag.Int("horizon", 1, "forecast horizon in weeks for cv and grid")

	// Wave thresholds (weekly rate per 100k inhabitants)
	onset := flag.Float64("onset", 0.8, "rate threshold for notable weekly activity")
	boundary := flag.Float64("boundary", 2.0, "rate threshold delimiting wave spans")
	severe := flag.Float64("severe", 7.0, "rate threshold marking a severe season peak")

	// Training tunables for the forecast models
	horizonsFlag := flag.String("horizons", "1,2,3,4", "comma-separated horizons for train and evaluate")
	window := flag.Int("window", 4, "number of trailing weeks per input window")
	threshold := flag.Float64("threshold", 0.8, "rate threshold whose crossing the classifier predicts")
	cutoff := flag.Float64("cutoff", 0.5, "probability cutoff for the positive class")
	hiddenFlag := flag.String("hidden", "32,16", "comma-separated hidden layer sizes")
	learningRate := flag.Float64("learning-rate", 0.005, "learning rate for training (overrides JSON if provided)")
	epochs := flag.Int("epochs", 80, "number of training epochs (overrides JSON if provided)")
	batchSize := flag.Int("batch-size", 32, "training batch size (overrides JSON if provided)")
	optimizer := flag.String("optimizer", "adam", "optimizer to use for training: 'adam' or 'sgd'")
	clipNorm := flag.Float64("clip-norm", 5.0, "gradient clipping norm")
	workers := flag.Int("workers", 0, "worker pool size for evaluate and grid (0 = NumCPU)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")

	// Grid dimensions; empty dimensions keep the base configuration's value
	gridWindows := flag.String("grid-windows", "", "comma-separated window sizes to search, e.g. '2,4,6'")
	gridHidden := flag.String("grid-hidden", "", "comma-separated hidden layouts with sizes joined by x, e.g. '32x16,64x32'")
	gridRates := flag.String("grid-learning-rates", "", "comma-separated learning rates to search")
	gridBatches := flag.String("grid-batch-sizes", "", "comma-separated batch sizes to search")
	gridEpochs := flag.String("grid-epochs", "", "comma-separated epoch counts to search")

	flag.Parse()

	tn := loadTunables(*configPath)

	// Merge JSON tunables into runtime values. JSON applies only where the
	// corresponding CLI flag was left at its default, so explicit flags win.
	horizons, err := parseIntList(*horizonsFlag)
	if err != nil {
		log.Fatalf("invalid -horizons: %v", err)
	}
	hidden, err := parseIntList(*hiddenFlag)
	if err != nil {
		log.Fatalf("invalid -hidden: %v", err)
	}
	var cfgStates []string
	var cfgPerHorizon map[int]forecast.ModelParams
	if tn != nil && tn.Forecast != nil {
		f := tn.Forecast
		if len(f.Horizons) > 0 && *horizonsFlag == "1,2,3,4" {
			horizons = f.Horizons
		}
		if len(f.Hidden) > 0 && *hiddenFlag == "32,16" {
			hidden = f.Hidden
		}
		if f.Window != nil && *window == 4 {
			*window = *f.Window
		}
		if f.Threshold != nil && *threshold == 0.8 {
			*threshold = *f.Threshold
		}
		if f.Cutoff != nil && *cutoff == 0.5 {
			*cutoff = *f.Cutoff
		}
		if f.LearningRate != nil && *learningRate == 0.005 {
			*learningRate = *f.LearningRate
		}
		if f.Epochs != nil && *epochs == 80 {
			*epochs = *f.Epochs
		}
		if f.BatchSize != nil && *batchSize == 32 {
			*batchSize = *f.BatchSize
		}
		if f.Optimizer != nil && *optimizer == "adam" {
			*optimizer = *f.Optimizer
		}
		if f.ClipNorm != nil && *clipNorm == 5.0 {
			*clipNorm = *f.ClipNorm
		}
		if f.Workers != nil && *workers == 0 {
			*workers = *f.Workers
		}
		cfgStates = f.States
		cfgPerHorizon = f.PerHorizon
	}
	if tn != nil && tn.Thresholds != nil {
		t := tn.Thresholds
		if t.Onset != nil && *onset == 0.8 {
			*onset = *t.Onset
		}
		if t.Boundary != nil && *boundary == 2.0 {
			*boundary = *t.Boundary
		}
		if t.Severe != nil && *severe == 7.0 {
			*severe = *t.Severe
		}
	}
	if tn != nil && tn.Paths != nil {
		p := tn.Paths
		if p.Results != "" && *resultsPath == "output/results.gob" {
			*resultsPath = p.Results
		}
		if p.Reports != "" && *reportDir == "reports" {
			*reportDir = p.Reports
		}
		if p.Plots != "" && *outDir == "plots" {
			*outDir = p.Plots
		}
	}

	cfg := forecast.Config{
		Horizons:     horizons,
		Window:       *window,
		Threshold:    *threshold,
		Cutoff:       *cutoff,
		States:       cfgStates,
		Hidden:       hidden,
		LearningRate: *learningRate,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		Optimizer:    *optimizer,
		ClipNorm:     *clipNorm,
		PerHorizon:   cfgPerHorizon,
		Workers:      *workers,
		Seed:         *seed,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid forecast configuration: %v", err)
	}

	th := waves.Thresholds{Boundary: *boundary, Onset: *onset, Severe: *severe}
	if err := th.Validate(); err != nil {
		log.Fatalf("invalid wave thresholds: %v", err)
	}

	// -data may name a directory instead of a glob.
	if fi, err := os.Stat(*dataGlob); err == nil && fi.IsDir() {
		pattern, err := features.FindCSVInAssets(*dataGlob)
		if err != nil {
			log.Fatalf("no usable CSV files: %v", err)
		}
		*dataGlob = pattern
	}

	globPaths, _ := filepath.Glob(*dataGlob)
	log.Printf("Using CSV pattern: %s (found %d files)", *dataGlob, len(globPaths))
	table, err := features.Load(*dataGlob)
	if err != nil {
		log.Fatalf("failed to load feature table: %v", err)
	}
	log.Printf("Feature table loaded: rows=%d states=%d seasons=%d signals=%d",
		table.NumRows(), len(table.States()), len(table.Seasons()), len(table.Signals()))

	season := normalizeSeason(*seasonFlag)

	switch *mode {
	case "plot":
		runPlot(table, *outDir, *statesFlag, *stateFlag, season, *signalFlag, th)
	case "train":
		if season == "" {
			log.Fatalf("-season is required for train mode")
		}
		runTrain(table, cfg, season, *stateFlag, *outDir)
	case "cv":
		runCV(table, cfg, *horizonFlag)
	case "grid":
		grid := forecast.Grid{
			Windows:       mustIntList("grid-windows", *gridWindows),
			Hidden:        mustHiddenList("grid-hidden", *gridHidden),
			LearningRates: mustFloatList("grid-learning-rates", *gridRates),
			BatchSizes:    mustIntList("grid-batch-sizes", *gridBatches),
			Epochs:        mustIntList("grid-epochs", *gridEpochs),
		}
		runGrid(table, cfg, *horizonFlag, grid)
	case "evaluate":
		art := loadOrComputeResults(table, cfg, *resultsPath, *dataGlob, *force)
		printEvaluation(art.Evaluation)
		if *dbDSN != "" {
			persistRun(table, art, th, *dbDSN, *note)
		}
	case "export":
		art := loadOrComputeResults(table, cfg, *resultsPath, *dataGlob, *force)
		runExport(table, art, th, *reportDir, *note)
	case "frames":
		if season == "" {
			log.Fatalf("-season is required for frames mode")
		}
		runFrames(table, season, *outDir, th)
	default:
		log.Fatalf("unknown mode %q: want plot, train, cv, grid, evaluate, export or frames", *mode)
	}
}

// runPlot renders the exploratory charts. The state-independent charts are
// always written; per-state and per-season charts need their flags.
func runPlot(table *features.Table, outDir, statesSel, state, season, signal string, th waves.Thresholds) {
	states := splitList(statesSel)
	if len(states) == 0 {
		states = table.States()
	}
	p, err := visualize.RateSeries(table, states, th)
	if err != nil {
		if errors.Is(err, visualize.ErrNoStates) {
			log.Printf("rates chart skipped: %v", err)
		} else {
			log.Fatalf("failed to build rates chart: %v", err)
		}
	} else {
		savePlot(p, filepath.Join(outDir, "rates.png"))
	}

	p, err = visualize.RateHistogram(table, th)
	if err != nil {
		log.Fatalf("failed to build histogram chart: %v", err)
	}
	savePlot(p, filepath.Join(outDir, "histogram.png"))

	if season != "" {
		p, err = visualize.Heatmap(table, season)
		if err != nil {
			log.Fatalf("failed to build heatmap for %s: %v", season, err)
		}
		savePlot(p, filepath.Join(outDir, "heatmap_"+fileSeason(season)+".png"))
	}

	if state == "" {
		log.Printf("No -state given: skipping the per-state charts")
		return
	}
	st, err := features.LookupState(state)
	if err != nil {
		log.Fatalf("failed to resolve state: %v", err)
	}

	p, err = visualize.SeasonCurves(table, st.Code)
	if err != nil {
		log.Fatalf("failed to build season curves for %s: %v", st.Code, err)
	}
	savePlot(p, filepath.Join(outDir, "seasons_"+st.Code+".png"))

	p, err = visualize.PeakBySeason(table, st.Code, th)
	if err != nil {
		log.Fatalf("failed to build peak chart for %s: %v", st.Code, err)
	}
	savePlot(p, filepath.Join(outDir, "peaks_"+st.Code+".png"))

	p, err = visualize.WaveSpans(table, st.Code, th)
	if err != nil {
		log.Fatalf("failed to build wave span chart for %s: %v", st.Code, err)
	}
	savePlot(p, filepath.Join(outDir, "waves_"+st.Code+".png"))

	if signal == "" {
		log.Printf("No -signal given: skipping the trend and scatter charts")
		return
	}
	p, err = visualize.TrendOverlay(table, st.Code, signal)
	if err != nil {
		log.Fatalf("failed to build trend overlay for %s/%s: %v", st.Code, signal, err)
	}
	savePlot(p, filepath.Join(outDir, "trend_"+st.Code+"_"+signal+".png"))

	p, err = visualize.SignalScatter(table, signal, st.Code)
	if err != nil {
		log.Fatalf("failed to build scatter for %s/%s: %v", st.Code, signal, err)
	}
	savePlot(p, filepath.Join(outDir, "scatter_"+st.Code+"_"+signal+".png"))
}

// runTrain trains and evaluates one season at every configured horizon.
func runTrain(table *features.Table, cfg forecast.Config, season, state, outDir string) {
	stCode := ""
	if state != "" {
		st, err := features.LookupState(state)
		if err != nil {
			log.Fatalf("failed to resolve state: %v", err)
		}
		stCode = st.Code
	}

	for _, h := range cfg.Horizons {
		start := time.Now()
		res, err := forecast.TrainSeason(table, cfg, season, h)
		if err != nil {
			log.Fatalf("failed to train season %s at horizon %d: %v", season, h, err)
		}
		m := res.Metrics
		log.Printf("horizon %d: trained on %d examples, tested on %d in %v",
			h, res.TrainExamples, res.TestExamples, time.Since(start))
		fmt.Printf("  accuracy=%.3f precision=%.3f recall=%.3f f1=%.3f brier=%.3f auc=%.3f\n",
			m.Accuracy, m.Precision, m.Recall, m.F1, m.Brier, m.AUC)

		if stCode != "" {
			p, err := visualize.ForecastSeries(res, stCode)
			if err != nil {
				log.Printf("warning: no forecast chart for horizon %d: %v", h, err)
				continue
			}
			name := fmt.Sprintf("forecast_%s_h%d_%s.png", fileSeason(season), h, stCode)
			savePlot(p, filepath.Join(outDir, name))
		}
	}
}

// runCV cross-validates one horizon with one fold per season.
func runCV(table *features.Table, cfg forecast.Config, horizon int) {
	start := time.Now()
	cv, err := forecast.CrossValidate(table, cfg, horizon)
	if err != nil {
		log.Fatalf("cross-validation failed: %v", err)
	}
	log.Printf("Cross-validation at horizon %d completed in %v: %d folds, %d skipped",
		cv.Horizon, time.Since(start), len(cv.Folds), len(cv.Skipped))
	for _, f := range cv.Folds {
		fmt.Printf("  %s: accuracy=%.3f f1=%.3f auc=%.3f brier=%.3f (test=%d)\n",
			f.Season, f.Metrics.Accuracy, f.Metrics.F1, f.Metrics.AUC, f.Metrics.Brier, f.TestExamples)
	}
	fmt.Printf("accuracy %.3f+/-%.3f  precision %.3f+/-%.3f  recall %.3f+/-%.3f\n",
		cv.Accuracy.Mean, cv.Accuracy.Std, cv.Precision.Mean, cv.Precision.Std, cv.Recall.Mean, cv.Recall.Std)
	fmt.Printf("f1 %.3f+/-%.3f  auc %.3f+/-%.3f  brier %.3f+/-%.3f\n",
		cv.F1.Mean, cv.F1.Std, cv.AUC.Mean, cv.AUC.Std, cv.Brier.Mean, cv.Brier.Std)
	for _, s := range cv.Skipped {
		log.Printf("skipped fold: %s", s)
	}
}

// runGrid searches the hyperparameter grid at one horizon and prints the
// ranking.
func runGrid(table *features.Table, cfg forecast.Config, horizon int, grid forecast.Grid) {
	start := time.Now()
	gr, err := forecast.GridSearch(table, cfg, horizon, grid)
	if err != nil {
		log.Fatalf("grid search failed: %v", err)
	}
	log.Printf("Grid search at horizon %d completed in %v: %d points evaluated, %d failed",
		gr.Horizon, time.Since(start), len(gr.Entries), len(gr.Failed))

	limit := len(gr.Entries)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		e := gr.Entries[i]
		fmt.Printf("  %2d. %s  f1=%.3f+/-%.3f auc=%.3f brier=%.3f\n",
			i+1, e.Params, e.CV.F1.Mean, e.CV.F1.Std, e.CV.AUC.Mean, e.CV.Brier.Mean)
	}
	best := gr.Best()
	fmt.Printf("Best: %s (mean F1 %.3f)\n", best.Params, best.CV.F1.Mean)
	for _, f := range gr.Failed {
		log.Printf("failed point: %s", f)
	}
}

// printEvaluation summarizes the full season x horizon matrix per horizon.
func printEvaluation(ev *forecast.Evaluation) {
	fmt.Printf("Evaluation over %d seasons x %d horizons (threshold %.1f):\n",
		len(ev.Seasons), len(ev.Horizons), ev.Threshold)
	for _, h := range ev.Horizons {
		results := ev.ForHorizon(h)
		if len(results) == 0 {
			continue
		}
		var acc, f1, auc, brier float64
		for _, r := range results {
			acc += r.Metrics.Accuracy
			f1 += r.Metrics.F1
			auc += r.Metrics.AUC
			brier += r.Metrics.Brier
		}
		n := float64(len(results))
		fmt.Printf("  horizon %d: accuracy=%.3f f1=%.3f auc=%.3f brier=%.3f over %d seasons\n",
			h, acc/n, f1/n, auc/n, brier/n, len(results))
	}
	for _, s := range ev.Skipped {
		log.Printf("skipped: %s", s)
	}
}

// persistRun stores the evaluation and the current wave statistics.
func persistRun(table *features.Table, art *resultsArtifact, th waves.Thresholds, dsn, note string) {
	st, err := store.Open(store.Config{DSN: dsn})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	id, err := st.SaveEvaluation(ctx, store.Run{DataGlob: art.DataGlob, Note: note}, art.Config, art.Evaluation)
	if err != nil {
		log.Fatalf("failed to save run: %v", err)
	}
	log.Printf("Saved run %s to the database", id)

	sums, err := waves.AllSeasonStats(table, th)
	if err != nil {
		log.Printf("warning: wave statistics not stored: %v", err)
		return
	}
	if err := st.ReplaceSeasonWaves(ctx, sums); err != nil {
		log.Printf("warning: wave statistics not stored: %v", err)
		return
	}
	log.Printf("Stored %d season wave summaries", len(sums))
}

// runExport writes the CSV reports and the XLSX workbook from an evaluation.
func runExport(table *features.Table, art *resultsArtifact, th waves.Thresholds, reportDir, note string) {
	sums, err := waves.AllSeasonStats(table, th)
	if err != nil {
		log.Fatalf("failed to compute wave statistics: %v", err)
	}
	ev := art.Evaluation

	path := filepath.Join(reportDir, "waves.csv")
	if err := export.WaveCSV(path, sums); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)

	path = filepath.Join(reportDir, "metrics.csv")
	if err := export.MetricsCSV(path, ev); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)

	path = filepath.Join(reportDir, "predictions.csv")
	if err := export.PredictionsCSV(path, ev.Predictions()); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)

	path = filepath.Join(reportDir, "report.xlsx")
	info := export.RunInfo{
		CreatedAt: time.Unix(art.CreatedAt, 0).UTC(),
		DataGlob:  art.DataGlob,
		Note:      note,
		Config:    art.Config,
	}
	if err := export.Workbook(path, info, ev, sums); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)
}

// runFrames renders one PNG per week of the season.
func runFrames(table *features.Table, season, outDir string, th waves.Thresholds) {
	dir := filepath.Join(outDir, "frames", fileSeason(season))
	written, err := visualize.WeekFrames(table, season, dir, th)
	if err != nil {
		log.Fatalf("failed to render week frames for %s: %v", season, err)
	}
	log.Printf("Wrote %d frames to %s", len(written), dir)
}

// loadOrComputeResults loads the gob artifact if it is usable, otherwise runs
// the full evaluation and attempts to save it back. The force flag skips the
// load.
func loadOrComputeResults(table *features.Table, cfg forecast.Config, path, dataGlob string, force bool) *resultsArtifact {
	if path != "" && !force {
		art, err := loadResults(path, dataGlob)
		if err == nil {
			log.Printf("Loaded evaluation results from %s (results=%d)", path, len(art.Evaluation.Results))
			return art
		}
		log.Printf("Results load failed (%v). Computing and will attempt to save to %s", err, path)
	}

	start := time.Now()
	log.Printf("Evaluating %d seasons x %d horizons...", len(table.Seasons()), len(cfg.Horizons))
	ev, err := forecast.EvaluateAll(table, cfg)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	log.Printf("Evaluation completed in %v (results=%d, skipped=%d)",
		time.Since(start), len(ev.Results), len(ev.Skipped))

	art := &resultsArtifact{
		Version:    cacheVersion,
		CreatedAt:  time.Now().Unix(),
		DataGlob:   dataGlob,
		Config:     cfg,
		Evaluation: ev,
	}
	if path != "" {
		if err := saveResults(path, art); err != nil {
			log.Printf("warning: failed to save results to %s: %v", path, err)
		} else {
			log.Printf("Saved evaluation results to %s", path)
		}
	}
	return art
}

// saveResults writes the artifact with an atomic rename so a crashed run
// cannot leave a truncated file behind.
func saveResults(path string, art *resultsArtifact) error {
	if path == "" {
		return fmt.Errorf("empty results path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp results file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if err := gob.NewEncoder(tmpFile).Encode(art); err != nil {
		return fmt.Errorf("encode results to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		log.Printf("warning: sync temp results file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp results file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp results to target: %w", err)
	}
	return nil
}

// loadResults reads an artifact and validates it against the current version
// and data selection.
func loadResults(path, dataGlob string) (*resultsArtifact, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file %s: %w", path, err)
	}
	defer fh.Close()

	var art resultsArtifact
	if err := gob.NewDecoder(fh).Decode(&art); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	if art.Version != cacheVersion {
		return nil, fmt.Errorf("results version mismatch: file=%d expected=%d", art.Version, cacheVersion)
	}
	if art.DataGlob != dataGlob {
		return nil, fmt.Errorf("results built from %q, current data pattern is %q", art.DataGlob, dataGlob)
	}
	if art.Evaluation == nil || len(art.Evaluation.Results) == 0 {
		return nil, fmt.Errorf("results file %s holds no results", path)
	}
	return &art, nil
}

// loadTunables reads the JSON tunables. An explicit -config path must load;
// the implicit flucast.json is created from the embedded defaults when absent
// and failures only warn.
func loadTunables(configPath string) *tunables {
	path := strings.TrimSpace(configPath)
	explicit := path != ""
	if !explicit {
		path = "flucast.json"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if werr := os.WriteFile(path, []byte(defaultTunablesJSON), 0644); werr != nil {
				log.Printf("warning: failed to write default tunables to %s: %v", path, werr)
				return nil
			}
			log.Printf("Wrote default tunables to %s", path)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			log.Fatalf("failed to read tunables %s: %v", path, err)
		}
		log.Printf("warning: failed to read tunables %s: %v", path, err)
		return nil
	}
	var tn tunables
	if err := json.Unmarshal(data, &tn); err != nil {
		if explicit {
			log.Fatalf("failed to parse tunables %s: %v", path, err)
		}
		log.Printf("warning: failed to parse tunables %s: %v", path, err)
		return nil
	}
	log.Printf("Loaded tunables from %s", path)
	return &tn
}

func savePlot(p *plot.Plot, path string) {
	if err := visualize.Save(p, path); err != nil {
		log.Fatalf("failed to save %s: %v", path, err)
	}
	log.Printf("Saved %s", path)
}

// normalizeSeason accepts the dashed spelling ("2014-15") for convenience.
func normalizeSeason(s string) string {
	if s == "" || strings.Contains(s, "/") {
		return s
	}
	return strings.Replace(s, "-", "/", 1)
}

// fileSeason makes a season label safe for file names.
func fileSeason(season string) string {
	return strings.ReplaceAll(season, "/", "-")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, tok := range splitList(s) {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", tok)
		}
		out = append(out, v)
	}
	return out, nil
}

func mustIntList(name, s string) []int {
	vs, err := parseIntList(s)
	if err != nil {
		log.Fatalf("invalid -%s: %v", name, err)
	}
	return vs
}

func mustFloatList(name, s string) []float64 {
	var out []float64
	for _, tok := range splitList(s) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			log.Fatalf("invalid -%s: invalid number %q", name, tok)
		}
		out = append(out, v)
	}
	return out
}

// mustHiddenList parses layouts like "32x16,64x32" into size lists.
func mustHiddenList(name, s string) [][]int {
	var out [][]int
	for _, tok := range splitList(s) {
		var sizes []int
		for _, dim := range strings.Split(tok, "x") {
			v, err := strconv.Atoi(strings.TrimSpace(dim))
			if err != nil {
				log.Fatalf("invalid -%s: invalid layout %q", name, tok)
			}
			sizes = append(sizes, v)
		}
		out = append(out, sizes)
	}
	return out
}
