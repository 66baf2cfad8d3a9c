package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/neural"
	"github.com/Noofbiz/fluCast/store"
	"github.com/Noofbiz/fluCast/waves"
)

// seasonParam converts the URL spelling of a season ("2014-15") back to the
// label form ("2014/15").
func seasonParam(s string) string {
	if !strings.Contains(s, "/") && strings.Contains(s, "-") {
		s = strings.Replace(s, "-", "/", 1)
	}
	return s
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

type stateView struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Population int    `json:"population"`
	HasData    bool   `json:"has_data"`
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	all, err := features.States()
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	present := make(map[string]bool)
	for _, code := range s.table.States() {
		present[code] = true
	}
	views := make([]stateView, len(all))
	for i, st := range all {
		views[i] = stateView{
			Code:       st.Code,
			Name:       st.Name,
			Population: st.Population,
			HasData:    present[st.Code],
		}
	}
	render.JSON(w, r, views)
}

func (s *Server) handleSeasons(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.table.Seasons())
}

type ratePoint struct {
	Year int     `json:"year"`
	Week int     `json:"week"`
	Rate float64 `json:"rate"`
}

type ratesResponse struct {
	State  string      `json:"state"`
	Name   string      `json:"name"`
	Season string      `json:"season,omitempty"`
	Points []ratePoint `json:"points"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		s.renderError(w, r, http.StatusBadRequest, "state parameter is required")
		return
	}
	st, err := features.LookupState(state)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	series, err := s.table.Series(st.Code)
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, err.Error())
		return
	}

	resp := ratesResponse{State: st.Code, Name: st.Name}
	season := seasonParam(r.URL.Query().Get("season"))
	for _, p := range series {
		if season != "" && features.SeasonOf(p.Year, p.Week) != season {
			continue
		}
		resp.Points = append(resp.Points, ratePoint{Year: p.Year, Week: p.Week, Rate: p.Rate})
	}
	if season != "" {
		resp.Season = season
		if len(resp.Points) == 0 {
			s.renderError(w, r, http.StatusNotFound,
				fmt.Sprintf("no data for state %s in season %s", st.Code, season))
			return
		}
	}
	render.JSON(w, r, resp)
}

type thresholdsView struct {
	Onset    float64 `json:"onset"`
	Boundary float64 `json:"boundary"`
	Severe   float64 `json:"severe"`
}

type waveView struct {
	State     string  `json:"state"`
	Season    string  `json:"season"`
	HasWave   bool    `json:"has_wave"`
	StartYear int     `json:"start_year,omitempty"`
	StartWeek int     `json:"start_week,omitempty"`
	EndYear   int     `json:"end_year,omitempty"`
	EndWeek   int     `json:"end_week,omitempty"`
	Length    int     `json:"length_weeks,omitempty"`
	PeakYear  int     `json:"peak_year"`
	PeakWeek  int     `json:"peak_week"`
	PeakRate  float64 `json:"peak_rate"`
	MeanRate  float64 `json:"mean_rate"`
	Severe    bool    `json:"severe"`
}

type wavesResponse struct {
	Thresholds thresholdsView `json:"thresholds"`
	Summaries  []waveView     `json:"summaries"`
}

func (s *Server) handleWaves(w http.ResponseWriter, r *http.Request) {
	sums, err := waves.AllSeasonStats(s.table, s.thresholds)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if state := r.URL.Query().Get("state"); state != "" {
		st, err := features.LookupState(state)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var filtered []waves.SeasonSummary
		for _, sum := range sums {
			if sum.State == st.Code {
				filtered = append(filtered, sum)
			}
		}
		if len(filtered) == 0 {
			s.renderError(w, r, http.StatusNotFound,
				fmt.Sprintf("no data for state %s", st.Code))
			return
		}
		sums = filtered
	}

	resp := wavesResponse{
		Thresholds: thresholdsView{
			Onset:    s.thresholds.Onset,
			Boundary: s.thresholds.Boundary,
			Severe:   s.thresholds.Severe,
		},
		Summaries: make([]waveView, len(sums)),
	}
	for i, sum := range sums {
		resp.Summaries[i] = waveViewFrom(sum)
	}
	render.JSON(w, r, resp)
}

func waveViewFrom(sum waves.SeasonSummary) waveView {
	return waveView{
		State:     sum.State,
		Season:    sum.Season,
		HasWave:   sum.HasWave,
		StartYear: sum.StartYear,
		StartWeek: sum.StartWeek,
		EndYear:   sum.EndYear,
		EndWeek:   sum.EndWeek,
		Length:    sum.Length,
		PeakYear:  sum.PeakYear,
		PeakWeek:  sum.PeakWeek,
		PeakRate:  sum.PeakRate,
		MeanRate:  sum.MeanRate,
		Severe:    sum.Severe,
	}
}

// handleStoredWaves serves the summaries persisted by the last analysis run,
// which may trail the live table.
func (s *Server) handleStoredWaves(w http.ResponseWriter, r *http.Request) {
	state := ""
	if v := r.URL.Query().Get("state"); v != "" {
		st, err := features.LookupState(v)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		state = st.Code
	}
	sums, err := s.runs.SeasonWaves(r.Context(), state)
	if err != nil {
		s.logger.Error("failed to query stored waves", "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to query stored waves")
		return
	}
	if len(sums) == 0 {
		s.renderError(w, r, http.StatusNotFound, "no stored wave summaries")
		return
	}
	views := make([]waveView, len(sums))
	for i, sum := range sums {
		views[i] = waveViewFrom(sum)
	}
	render.JSON(w, r, views)
}

type resultView struct {
	Season        string         `json:"season"`
	Horizon       int            `json:"horizon"`
	Threshold     float64        `json:"threshold"`
	TrainExamples int            `json:"train_examples"`
	TestExamples  int            `json:"test_examples"`
	Metrics       neural.Metrics `json:"metrics"`
}

type evaluationResponse struct {
	Horizons  []int        `json:"horizons"`
	Seasons   []string     `json:"seasons"`
	Threshold float64      `json:"threshold"`
	Results   []resultView `json:"results"`
	Skipped   []string     `json:"skipped,omitempty"`
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	if s.eval == nil {
		s.renderError(w, r, http.StatusNotFound, "no evaluation results loaded")
		return
	}
	resp := evaluationResponse{
		Horizons:  s.eval.Horizons,
		Seasons:   s.eval.Seasons,
		Threshold: s.eval.Threshold,
		Results:   make([]resultView, len(s.eval.Results)),
		Skipped:   s.eval.Skipped,
	}
	for i, res := range s.eval.Results {
		resp.Results[i] = resultView{
			Season:        res.Season,
			Horizon:       res.Horizon,
			Threshold:     res.Threshold,
			TrainExamples: res.TrainExamples,
			TestExamples:  res.TestExamples,
			Metrics:       res.Metrics,
		}
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.eval == nil || len(s.eval.Horizons) == 0 {
		s.renderError(w, r, http.StatusNotFound, "no evaluation results loaded")
		return
	}
	season := seasonParam(chi.URLParam(r, "season"))
	horizon, err := intParam(r, "horizon", s.eval.Horizons[0])
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := s.eval.At(horizon, season)
	if !ok {
		s.renderError(w, r, http.StatusNotFound,
			fmt.Sprintf("no result for season %s at horizon %d", season, horizon))
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		st, err := features.LookupState(state)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filtered := *res
		filtered.Predictions = nil
		for _, p := range res.Predictions {
			if p.State == st.Code {
				filtered.Predictions = append(filtered.Predictions, p)
			}
		}
		if len(filtered.Predictions) == 0 {
			s.renderError(w, r, http.StatusNotFound,
				fmt.Sprintf("no predictions for state %s in season %s", st.Code, season))
			return
		}
		render.JSON(w, r, &filtered)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to list runs")
		return
	}
	render.JSON(w, r, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to get run")
		return
	}
	render.JSON(w, r, run)
}

func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := s.runs.Results(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to query results", "run_id", id, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to query results")
		return
	}
	render.JSON(w, r, results)
}

func (s *Server) handleRunPredictions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.runs.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to get run")
		return
	}

	var filter store.PredictionFilter
	if v := r.URL.Query().Get("season"); v != "" {
		season := seasonParam(v)
		filter.Season = &season
	}
	if v := r.URL.Query().Get("horizon"); v != "" {
		horizon, err := strconv.Atoi(v)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, fmt.Sprintf("horizon must be an integer, got %q", v))
			return
		}
		filter.Horizon = &horizon
	}
	if v := r.URL.Query().Get("state"); v != "" {
		st, err := features.LookupState(v)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		code := st.Code
		filter.State = &code
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = limit

	preds, err := s.runs.Predictions(r.Context(), id, filter)
	if err != nil {
		s.logger.Error("failed to query predictions", "run_id", id, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to query predictions")
		return
	}
	render.JSON(w, r, preds)
}
