package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/plot"

	"github.com/Noofbiz/fluCast/visualize"
)

// chartError carries an HTTP status for chart building failures. Everything
// else maps to 400, since chart inputs come from the query string.
type chartError struct {
	status int
	msg    string
}

func (e *chartError) Error() string { return e.msg }

func badChart(format string, args ...interface{}) *chartError {
	return &chartError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	chart := chi.URLParam(r, "chart")
	start := time.Now()

	p, err := s.buildChart(r, chart)
	if err != nil {
		status := http.StatusBadRequest
		var ce *chartError
		if errors.As(err, &ce) {
			status = ce.status
		}
		s.renderError(w, r, status, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := visualize.WritePNG(p, &buf); err != nil {
		s.metrics.RenderErrors.WithLabelValues(chart).Inc()
		s.logger.Error("chart render failed", "chart", chart, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "failed to render chart")
		return
	}
	s.metrics.RenderDuration.WithLabelValues(chart).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes())
}

// statesParam reads the chart's state selection, either states=BW,BY or a
// single state=BW. Empty means every state in the table.
func (s *Server) statesParam(r *http.Request) []string {
	if v := r.URL.Query().Get("states"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	if v := r.URL.Query().Get("state"); v != "" {
		return []string{v}
	}
	return s.table.States()
}

func (s *Server) buildChart(r *http.Request, chart string) (*plot.Plot, error) {
	q := r.URL.Query()
	state := q.Get("state")
	signal := q.Get("signal")
	season := seasonParam(q.Get("season"))

	switch chart {
	case "rates":
		return visualize.RateSeries(s.table, s.statesParam(r), s.thresholds)
	case "seasons":
		if state == "" {
			return nil, badChart("state parameter is required for the seasons chart")
		}
		return visualize.SeasonCurves(s.table, state)
	case "trend":
		if state == "" || signal == "" {
			return nil, badChart("state and signal parameters are required for the trend chart")
		}
		return visualize.TrendOverlay(s.table, state, signal)
	case "peaks":
		if state == "" {
			return nil, badChart("state parameter is required for the peaks chart")
		}
		return visualize.PeakBySeason(s.table, state, s.thresholds)
	case "waves":
		if state == "" {
			return nil, badChart("state parameter is required for the waves chart")
		}
		return visualize.WaveSpans(s.table, state, s.thresholds)
	case "heatmap":
		if season == "" {
			return nil, badChart("season parameter is required for the heatmap chart")
		}
		return visualize.Heatmap(s.table, season)
	case "histogram":
		return visualize.RateHistogram(s.table, s.thresholds)
	case "scatter":
		if state == "" || signal == "" {
			return nil, badChart("state and signal parameters are required for the scatter chart")
		}
		return visualize.SignalScatter(s.table, signal, state)
	case "forecast":
		if s.eval == nil || len(s.eval.Horizons) == 0 {
			return nil, &chartError{status: http.StatusNotFound, msg: "no evaluation results loaded"}
		}
		if season == "" || state == "" {
			return nil, badChart("season and state parameters are required for the forecast chart")
		}
		horizon, err := intParam(r, "horizon", s.eval.Horizons[0])
		if err != nil {
			return nil, err
		}
		res, ok := s.eval.At(horizon, season)
		if !ok {
			return nil, &chartError{
				status: http.StatusNotFound,
				msg:    fmt.Sprintf("no result for season %s at horizon %d", season, horizon),
			}
		}
		return visualize.ForecastSeries(res, state)
	default:
		return nil, &chartError{status: http.StatusNotFound, msg: fmt.Sprintf("unknown chart %q", chart)}
	}
}
