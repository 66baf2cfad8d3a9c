package visualize

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/waves"
)

// addSeverityBars draws vals as overlapping bar charts, one per severity
// class, so every bar is colored by its own activity level. Positions whose
// value belongs to another class stay at zero and draw nothing.
func addSeverityBars(p *plot.Plot, vals []float64, th waves.Thresholds, width vg.Length) error {
	classes := []struct {
		name  string
		level waves.Level
	}{
		{"quiet", waves.LevelQuiet},
		{"active", waves.LevelActive},
		{"severe", waves.LevelSevere},
	}
	for _, cls := range classes {
		classVals := make(plotter.Values, len(vals))
		used := false
		for i, v := range vals {
			if waves.ClassifyWeek(v, th) != cls.level {
				continue
			}
			classVals[i] = v
			used = true
		}
		if !used {
			continue
		}
		bars, err := plotter.NewBarChart(classVals, width)
		if err != nil {
			return err
		}
		bars.Color = severityColor(cls.level)
		p.Add(bars)
		p.Legend.Add(cls.name, bars)
	}
	return nil
}

// PeakBySeason draws one state's season peak rates as bars colored by the
// season's severity class.
func PeakBySeason(t *features.Table, state string, th waves.Thresholds) (*plot.Plot, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}

	var (
		seasons []string
		peaks   []float64
	)
	maxPeak := th.Severe
	for _, season := range t.Seasons() {
		sum, err := waves.SeasonStats(t, st.Code, season, th)
		if err != nil {
			// The state may be absent from this season entirely.
			continue
		}
		seasons = append(seasons, season)
		peaks = append(peaks, sum.PeakRate)
		if sum.PeakRate > maxPeak {
			maxPeak = sum.PeakRate
		}
	}
	if len(seasons) == 0 {
		return nil, fmt.Errorf("no seasons with data for state %s", st.Code)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Season peaks: %s", st.Name)
	p.Y.Label.Text = "peak rate per 100k"
	if err := addSeverityBars(p, peaks, th, vg.Points(18)); err != nil {
		return nil, err
	}
	p.NominalX(seasons...)
	p.Legend.Top = true

	p.Y.Min = 0
	p.Y.Max = maxPeak * 1.06
	if err := addThresholdRules(p, th, -0.5, float64(len(seasons))-0.5); err != nil {
		return nil, err
	}
	return p, nil
}

// WaveSpans plots one state's full rate history with every detected wave
// marked by a thick span bar at the boundary level and its peak flagged.
func WaveSpans(t *features.Table, state string, th waves.Thresholds) (*plot.Plot, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}
	series, err := t.Series(st.Code)
	if err != nil {
		return nil, err
	}
	detected := waves.Detect(st.Code, series, th)

	origin := series[0]
	x := func(year, week int) float64 {
		return float64(features.WeekDiff(origin.Year, origin.Week, year, week))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Waves: %s (%d detected)", st.Name, len(detected))
	p.X.Label.Text = "week"
	p.Y.Label.Text = "rate per 100k"
	p.X.Tick.Marker = weekTicks{year: origin.Year, week: origin.Week}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var all plotter.XYs
	for segIdx, seg := range splitSegments(series) {
		xys := make(plotter.XYs, len(seg))
		for i, pt := range seg {
			xys[i] = plotter.XY{X: x(pt.Year, pt.Week), Y: pt.Rate}
		}
		all = append(all, xys...)
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		line.Color = quietColor
		line.Width = vg.Points(1)
		p.Add(line)
		if segIdx == 0 {
			p.Legend.Add("weekly rate", line)
		}
	}

	var peakXY plotter.XYs
	for i, w := range detected {
		// Widened by half a week on each side so one-week waves stay visible.
		span, err := plotter.NewLine(plotter.XYs{
			{X: x(w.StartYear, w.StartWeek) - 0.4, Y: th.Boundary},
			{X: x(w.EndYear, w.EndWeek) + 0.4, Y: th.Boundary},
		})
		if err != nil {
			return nil, err
		}
		span.Color = color.RGBA{R: 230, G: 159, B: 0, A: 160}
		span.Width = vg.Points(6)
		p.Add(span)
		if i == 0 {
			p.Legend.Add("wave span", span)
		}
		peakXY = append(peakXY, plotter.XY{X: x(w.PeakYear, w.PeakWeek), Y: w.PeakRate})
	}
	if len(peakXY) > 0 {
		peaks, err := plotter.NewScatter(peakXY)
		if err != nil {
			return nil, err
		}
		peaks.GlyphStyle.Color = severeColor
		peaks.GlyphStyle.Radius = vg.Points(3)
		peaks.GlyphStyle.Shape = draw.TriangleGlyph{}
		p.Add(peaks)
		p.Legend.Add("wave peak", peaks)
	}

	applyRange(p, all)
	p.Y.Min = 0
	if err := addThresholdRules(p, th, p.X.Min, p.X.Max); err != nil {
		return nil, err
	}
	return p, nil
}

// rateGrid is the state-by-week rate matrix behind the season heat map.
type rateGrid struct {
	states []string
	weeks  int
	z      []float64 // row-major, one row per state
}

func (g rateGrid) Dims() (c, r int)   { return g.weeks, len(g.states) }
func (g rateGrid) Z(c, r int) float64 { return g.z[r*g.weeks+c] }
func (g rateGrid) X(c int) float64    { return float64(c) }
func (g rateGrid) Y(r int) float64    { return float64(r) }

// Heatmap draws the state-by-week rate grid of one season. Missing weeks
// show as zero.
func Heatmap(t *features.Table, season string) (*plot.Plot, error) {
	sub, err := t.SeasonTable(season)
	if err != nil {
		return nil, err
	}
	states := sub.States()

	weeks := 0
	for _, r := range sub.Rows() {
		if off := features.SeasonOffset(r.Year, r.Week); off >= weeks {
			weeks = off + 1
		}
	}
	grid := rateGrid{states: states, weeks: weeks, z: make([]float64, len(states)*weeks)}
	rowIdx := make(map[string]int, len(states))
	for i, s := range states {
		rowIdx[s] = i
	}
	for _, r := range sub.Rows() {
		grid.z[rowIdx[r.State]*weeks+features.SeasonOffset(r.Year, r.Week)] = r.Rate
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Weekly rates by state: season %s", season)
	p.X.Label.Text = "season week (0 = W40)"
	p.Add(plotter.NewHeatMap(grid, palette.Heat(12, 1)))

	ticks := make([]plot.Tick, len(states))
	for i, s := range states {
		ticks[i] = plot.Tick{Value: float64(i), Label: s}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	return p, nil
}

// WeekFrames renders one bar-chart frame per reported week of a season into
// dir, named by season-week offset so the files sort chronologically.
// Flipping through the frames replaces a notebook-style week slider.
func WeekFrames(t *features.Table, season, dir string, th waves.Thresholds) ([]string, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	sub, err := t.SeasonTable(season)
	if err != nil {
		return nil, err
	}
	states := sub.States()
	rowIdx := make(map[string]int, len(states))
	for i, s := range states {
		rowIdx[s] = i
	}

	// Fixed Y range so the frame sequence does not rescale week to week.
	maxRate := th.Severe
	type weekCell struct {
		year  int
		week  int
		rates []float64
	}
	byOffset := make(map[int]*weekCell)
	var offsets []int
	for _, r := range sub.Rows() {
		if r.Rate > maxRate {
			maxRate = r.Rate
		}
		off := features.SeasonOffset(r.Year, r.Week)
		cell, ok := byOffset[off]
		if !ok {
			cell = &weekCell{year: r.Year, week: r.Week, rates: make([]float64, len(states))}
			byOffset[off] = cell
			offsets = append(offsets, off)
		}
		cell.rates[rowIdx[r.State]] = r.Rate
	}
	sort.Ints(offsets)

	paths := make([]string, 0, len(offsets))
	for _, off := range offsets {
		cell := byOffset[off]
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Season %s: %d-W%02d", season, cell.year, cell.week)
		p.Y.Label.Text = "rate per 100k"
		if err := addSeverityBars(p, cell.rates, th, vg.Points(10)); err != nil {
			return nil, err
		}
		p.NominalX(states...)
		p.Legend.Top = true
		p.Y.Min = 0
		p.Y.Max = maxRate * 1.06
		if err := addThresholdRules(p, th, -0.5, float64(len(states))-0.5); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", off))
		if err := Save(p, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
