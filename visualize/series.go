package visualize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/waves"
)

// RateSeries plots the weekly infection rate of the selected states over the
// full reporting range, with the three threshold rule lines. Lines break at
// reporting gaps instead of bridging them.
func RateSeries(t *features.Table, states []string, th waves.Thresholds) (*plot.Plot, error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}

	type stateSeries struct {
		code   string
		series []features.WeekRate
	}
	resolved := make([]stateSeries, 0, len(states))
	for _, s := range states {
		st, err := features.LookupState(s)
		if err != nil {
			return nil, err
		}
		series, err := t.Series(st.Code)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, stateSeries{code: st.Code, series: series})
	}

	// Week indices count from the earliest week across the selection.
	origin := resolved[0].series[0]
	for _, ss := range resolved[1:] {
		first := ss.series[0]
		if features.WeekDiff(origin.Year, origin.Week, first.Year, first.Week) < 0 {
			origin = first
		}
	}

	p := plot.New()
	p.Title.Text = "Weekly influenza rates"
	p.X.Label.Text = "week"
	p.Y.Label.Text = "rate per 100k"
	p.X.Tick.Marker = weekTicks{year: origin.Year, week: origin.Week}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var all plotter.XYs
	for i, ss := range resolved {
		col := lineColor(i)
		for segIdx, seg := range splitSegments(ss.series) {
			xys := make(plotter.XYs, len(seg))
			for j, pt := range seg {
				xys[j] = plotter.XY{
					X: float64(features.WeekDiff(origin.Year, origin.Week, pt.Year, pt.Week)),
					Y: pt.Rate,
				}
			}
			all = append(all, xys...)
			if len(xys) == 1 {
				// A lone week draws no line; mark it with a glyph instead.
				sc, err := plotter.NewScatter(xys)
				if err != nil {
					return nil, err
				}
				sc.GlyphStyle.Color = col
				sc.GlyphStyle.Radius = vg.Points(1.5)
				p.Add(sc)
				if segIdx == 0 {
					p.Legend.Add(ss.code, sc)
				}
				continue
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, err
			}
			line.Color = col
			line.Width = vg.Points(1.2)
			p.Add(line)
			if segIdx == 0 {
				p.Legend.Add(ss.code, line)
			}
		}
	}

	applyRange(p, all)
	p.Y.Min = 0
	if p.Y.Max < th.Severe {
		p.Y.Max = th.Severe * 1.06
	}
	if err := addThresholdRules(p, th, p.X.Min, p.X.Max); err != nil {
		return nil, err
	}
	return p, nil
}

// SeasonCurves overlays one state's seasons on a shared season-week axis
// (offset 0 is ISO week 40), to compare season shapes directly.
func SeasonCurves(t *features.Table, state string) (*plot.Plot, error) {
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}
	series, err := t.Series(st.Code)
	if err != nil {
		return nil, err
	}

	bySeason := make(map[string]plotter.XYs)
	var order []string
	for _, pt := range series {
		season := features.SeasonOf(pt.Year, pt.Week)
		if _, ok := bySeason[season]; !ok {
			order = append(order, season)
		}
		bySeason[season] = append(bySeason[season], plotter.XY{
			X: float64(features.SeasonOffset(pt.Year, pt.Week)),
			Y: pt.Rate,
		})
	}
	sort.Strings(order)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Season rate curves: %s", st.Name)
	p.X.Label.Text = "season week (0 = W40)"
	p.Y.Label.Text = "rate per 100k"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var all plotter.XYs
	for i, season := range order {
		line, err := plotter.NewLine(bySeason[season])
		if err != nil {
			return nil, err
		}
		line.Color = lineColor(i)
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(season, line)
		all = append(all, bySeason[season]...)
	}
	applyRange(p, all)
	p.Y.Min = 0
	return p, nil
}

// TrendOverlay plots a state's rate series against one signal, both min-max
// normalized onto [0, 1], to eyeball lead-lag structure between a search
// trend or weather signal and the infection rate.
func TrendOverlay(t *features.Table, state, signal string) (*plot.Plot, error) {
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}
	rates, err := t.Series(st.Code)
	if err != nil {
		return nil, err
	}
	sig, err := t.SignalSeries(st.Code, signal)
	if err != nil {
		return nil, err
	}

	origin := rates[0]
	rateXY := make(plotter.XYs, len(rates))
	rateVals := make([]float64, len(rates))
	for i, pt := range rates {
		rateXY[i].X = float64(features.WeekDiff(origin.Year, origin.Week, pt.Year, pt.Week))
		rateVals[i] = pt.Rate
	}
	sigXY := make(plotter.XYs, len(sig))
	sigVals := make([]float64, len(sig))
	for i, pt := range sig {
		sigXY[i].X = float64(features.WeekDiff(origin.Year, origin.Week, pt.Year, pt.Week))
		sigVals[i] = pt.Value
	}
	for i, v := range minMaxNormalize(rateVals) {
		rateXY[i].Y = v
	}
	for i, v := range minMaxNormalize(sigVals) {
		sigXY[i].Y = v
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Normalized overlay: %s and %s (%s)", features.RateSignal, signal, st.Code)
	p.X.Label.Text = "week"
	p.Y.Label.Text = "min-max normalized"
	p.X.Tick.Marker = weekTicks{year: origin.Year, week: origin.Week}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	rateLine, err := plotter.NewLine(rateXY)
	if err != nil {
		return nil, err
	}
	rateLine.Color = lineColor(0)
	rateLine.Width = vg.Points(1.5)
	p.Add(rateLine)
	p.Legend.Add(features.RateSignal, rateLine)

	sigLine, err := plotter.NewLine(sigXY)
	if err != nil {
		return nil, err
	}
	sigLine.Color = lineColor(1)
	sigLine.Width = vg.Points(1.2)
	sigLine.Dashes = []vg.Length{vg.Points(5), vg.Points(2)}
	p.Add(sigLine)
	p.Legend.Add(signal, sigLine)

	applyRange(p, append(append(plotter.XYs{}, rateXY...), sigXY...))
	p.Y.Min = -0.05
	p.Y.Max = 1.05
	return p, nil
}

// minMaxNormalize maps values onto [0, 1]; a constant series maps to 0.5.
func minMaxNormalize(vals []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(vals))
	if hi == lo {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range vals {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// ForecastSeries plots the crossing probabilities a held-out season model
// produced for one state next to what actually happened. The reported rate
// is drawn scaled by its season maximum so everything shares the probability
// axis; weeks where the call went wrong are crossed out.
func ForecastSeries(res *forecast.SeasonResult, state string) (*plot.Plot, error) {
	if res == nil || len(res.Predictions) == 0 {
		return nil, fmt.Errorf("season result has no predictions")
	}
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}
	var preds []forecast.Prediction
	for _, pr := range res.Predictions {
		if pr.State == st.Code {
			preds = append(preds, pr)
		}
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("no predictions for state %s in season %s", st.Code, res.Season)
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Year != preds[j].Year {
			return preds[i].Year < preds[j].Year
		}
		return preds[i].Week < preds[j].Week
	})

	origin := preds[0]
	maxRate := res.Threshold
	for _, pr := range preds {
		if pr.Rate > maxRate {
			maxRate = pr.Rate
		}
	}

	probXY := make(plotter.XYs, len(preds))
	rateXY := make(plotter.XYs, len(preds))
	var hitXY, missXY plotter.XYs
	for i, pr := range preds {
		x := float64(features.WeekDiff(origin.Year, origin.Week, pr.Year, pr.Week))
		probXY[i] = plotter.XY{X: x, Y: pr.Probability}
		rateXY[i] = plotter.XY{X: x, Y: pr.Rate / maxRate}
		if pr.Actual {
			hitXY = append(hitXY, plotter.XY{X: x, Y: 1.0})
		}
		if pr.Predicted != pr.Actual {
			missXY = append(missXY, plotter.XY{X: x, Y: pr.Probability})
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Crossing forecast: %s, season %s, %d weeks ahead",
		st.Code, res.Season, res.Horizon)
	p.X.Label.Text = "target week"
	p.Y.Label.Text = "probability"
	p.X.Tick.Marker = weekTicks{year: origin.Year, week: origin.Week}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	probLine, err := plotter.NewLine(probXY)
	if err != nil {
		return nil, err
	}
	probLine.Color = lineColor(0)
	probLine.Width = vg.Points(1.5)
	p.Add(probLine)
	p.Legend.Add("P(crossing)", probLine)

	rateLine, err := plotter.NewLine(rateXY)
	if err != nil {
		return nil, err
	}
	rateLine.Color = lineColor(1)
	rateLine.Width = vg.Points(1)
	rateLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(rateLine)
	p.Legend.Add(fmt.Sprintf("rate / %.1f", maxRate), rateLine)

	thLine, err := plotter.NewLine(plotter.XYs{
		{X: probXY[0].X, Y: res.Threshold / maxRate},
		{X: probXY[len(probXY)-1].X, Y: res.Threshold / maxRate},
	})
	if err != nil {
		return nil, err
	}
	thLine.Color = activeColor
	thLine.Width = vg.Points(0.8)
	thLine.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(thLine)
	p.Legend.Add("threshold (scaled)", thLine)

	if len(hitXY) > 0 {
		hits, err := plotter.NewScatter(hitXY)
		if err != nil {
			return nil, err
		}
		hits.GlyphStyle.Color = lineColor(2)
		hits.GlyphStyle.Radius = vg.Points(2.5)
		hits.GlyphStyle.Shape = draw.TriangleGlyph{}
		p.Add(hits)
		p.Legend.Add("actual crossing", hits)
	}
	if len(missXY) > 0 {
		miss, err := plotter.NewScatter(missXY)
		if err != nil {
			return nil, err
		}
		miss.GlyphStyle.Color = severeColor
		miss.GlyphStyle.Radius = vg.Points(3)
		miss.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(miss)
		p.Legend.Add("missed call", miss)
	}

	p.X.Min = probXY[0].X - 1
	p.X.Max = probXY[len(probXY)-1].X + 1
	p.Y.Min = -0.05
	p.Y.Max = 1.1
	return p, nil
}
