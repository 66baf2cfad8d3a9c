package visualize

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/waves"
)

// RateHistogram draws the distribution of all weekly rates in the table with
// the three threshold levels marked.
func RateHistogram(t *features.Table, th waves.Thresholds) (*plot.Plot, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	rows := t.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty feature table")
	}
	vals := make(plotter.Values, len(rows))
	for i, r := range rows {
		vals[i] = r.Rate
	}

	const bins = 40
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Weekly rate distribution (%d state-weeks)", len(rows))
	p.X.Label.Text = "rate per 100k"
	p.Y.Label.Text = "weeks"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = color.RGBA{R: 31, G: 119, B: 180, A: 200}
	p.Add(h)

	// Vertical threshold markers, sized to the tallest bin.
	top := float64(maxBinCount(vals, bins)) * 1.06
	marks := []struct {
		name  string
		level float64
		col   color.RGBA
	}{
		{"onset", th.Onset, quietColor},
		{"wave boundary", th.Boundary, activeColor},
		{"severe", th.Severe, severeColor},
	}
	for _, m := range marks {
		line, err := plotter.NewLine(plotter.XYs{{X: m.level, Y: 0}, {X: m.level, Y: top}})
		if err != nil {
			return nil, err
		}
		line.Color = m.col
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(m.name, line)
	}
	p.Legend.Top = true
	p.Y.Min = 0
	return p, nil
}

// maxBinCount redoes the histogram's equal-width binning to learn how tall
// the tallest bin is, which sizes the threshold marker lines.
func maxBinCount(vals plotter.Values, bins int) int {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return len(vals)
	}
	counts := make([]int, bins)
	for _, v := range vals {
		i := int(float64(bins) * (v - lo) / (hi - lo))
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return max
}

// SignalScatter plots one signal against the infection rate for a state,
// with the least-squares fit line and the Pearson correlation in the title.
func SignalScatter(t *features.Table, signal, state string) (*plot.Plot, error) {
	st, err := features.LookupState(state)
	if err != nil {
		return nil, err
	}
	sig, err := t.SignalSeries(st.Code, signal)
	if err != nil {
		return nil, err
	}
	series, err := t.Series(st.Code)
	if err != nil {
		return nil, err
	}
	rates := make(map[[2]int]float64, len(series))
	for _, pt := range series {
		rates[[2]int{pt.Year, pt.Week}] = pt.Rate
	}

	xs := make([]float64, 0, len(sig))
	ys := make([]float64, 0, len(sig))
	pts := make(plotter.XYs, 0, len(sig))
	for _, pt := range sig {
		rate, ok := rates[[2]int{pt.Year, pt.Week}]
		if !ok {
			continue
		}
		xs = append(xs, pt.Value)
		ys = append(ys, rate)
		pts = append(pts, plotter.XY{X: pt.Value, Y: rate})
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("need at least 2 paired points for %s vs rate, got %d", signal, len(pts))
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	corr := stat.Correlation(xs, ys, nil)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s: %s (r=%.2f)", signal, features.RateSignal, st.Code, corr)
	p.X.Label.Text = signal
	p.Y.Label.Text = "rate per 100k"
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 180}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)
	p.Legend.Add("state-weeks", sc)

	applyRange(p, pts)
	fit, err := plotter.NewLine(plotter.XYs{
		{X: p.X.Min, Y: alpha + beta*p.X.Min},
		{X: p.X.Max, Y: alpha + beta*p.X.Max},
	})
	if err != nil {
		return nil, err
	}
	fit.Color = severeColor
	fit.Width = vg.Points(1.5)
	p.Add(fit)
	p.Legend.Add(fmt.Sprintf("fit y=%.2f%+.2fx", alpha, beta), fit)
	p.Legend.Top = true
	return p, nil
}
