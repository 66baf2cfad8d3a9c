// Package visualize renders the exploratory and forecast charts of the
// influenza toolkit as gonum plots. Chart constructors return a *plot.Plot
// so callers decide between writing PNG files (Save) and streaming to an
// HTTP response (WritePNG).
package visualize

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/waves"
)

// ErrNoStates is returned when a chart is requested with an empty state
// selection.
var ErrNoStates = errors.New("no states selected")

// Save writes the plot as a PNG file (8x6 inches), creating parent
// directories as needed.
func Save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plot directory %s: %w", dir, err)
		}
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// WritePNG streams the plot as a PNG image, sized like Save. This is the
// path the dashboard uses to serve charts.
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// linePalette cycles through distinguishable series colors; all sixteen
// states fit without a repeat.
var linePalette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
	{R: 188, G: 189, B: 34, A: 255},
	{R: 23, G: 190, B: 207, A: 255},
	{R: 174, G: 199, B: 232, A: 255},
	{R: 255, G: 187, B: 120, A: 255},
	{R: 152, G: 223, B: 138, A: 255},
	{R: 255, G: 152, B: 150, A: 255},
	{R: 197, G: 176, B: 213, A: 255},
	{R: 196, G: 156, B: 148, A: 255},
}

func lineColor(i int) color.RGBA { return linePalette[i%len(linePalette)] }

// Colors shared by every severity-aware chart.
var (
	quietColor  = color.RGBA{R: 120, G: 120, B: 120, A: 200}
	activeColor = color.RGBA{R: 230, G: 159, B: 0, A: 220}
	severeColor = color.RGBA{R: 200, G: 30, B: 30, A: 220}
)

func severityColor(l waves.Level) color.RGBA {
	switch l {
	case waves.LevelSevere:
		return severeColor
	case waves.LevelActive:
		return activeColor
	}
	return quietColor
}

// addThresholdRules draws dashed horizontal rule lines for the onset, wave
// boundary and severe levels across [xmin, xmax].
func addThresholdRules(p *plot.Plot, th waves.Thresholds, xmin, xmax float64) error {
	rules := []struct {
		name  string
		level float64
		col   color.RGBA
	}{
		{"onset", th.Onset, quietColor},
		{"wave boundary", th.Boundary, activeColor},
		{"severe", th.Severe, severeColor},
	}
	for _, r := range rules {
		line, err := plotter.NewLine(plotter.XYs{{X: xmin, Y: r.level}, {X: xmax, Y: r.level}})
		if err != nil {
			return err
		}
		line.Color = r.col
		line.Width = vg.Points(0.8)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(r.name, line)
	}
	return nil
}

// weekTicks labels a week-index axis whose origin is a fixed ISO week. Season
// starts get a labeled tick, every 13th ISO week a minor one.
type weekTicks struct {
	year int
	week int
}

func (t weekTicks) Ticks(min, max float64) []plot.Tick {
	var out []plot.Tick
	for i := int(math.Ceil(min)); i <= int(math.Floor(max)); i++ {
		y, w := features.AddWeeks(t.year, t.week, i)
		switch {
		case w == features.SeasonStartWeek:
			out = append(out, plot.Tick{Value: float64(i), Label: fmt.Sprintf("%d-W%02d", y, w)})
		case w%13 == 0:
			out = append(out, plot.Tick{Value: float64(i)})
		}
	}
	return out
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		if p.X < xmin {
			xmin = p.X
		}
		if p.X > xmax {
			xmax = p.X
		}
		if p.Y < ymin {
			ymin = p.Y
		}
		if p.Y > ymax {
			ymax = p.Y
		}
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

// applyRange sets the plot ranges from autoRange. Rate charts clamp the lower
// Y bound to zero afterwards.
func applyRange(p *plot.Plot, pts plotter.XYs) {
	xmin, xmax, ymin, ymax := autoRange(pts)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax
}

// splitSegments cuts a weekly series wherever a reporting gap interrupts it,
// so lines are not drawn across missing weeks.
func splitSegments(series []features.WeekRate) [][]features.WeekRate {
	var segs [][]features.WeekRate
	start := 0
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if features.WeekDiff(prev.Year, prev.Week, cur.Year, cur.Week) != 1 {
			segs = append(segs, series[start:i])
			start = i
		}
	}
	if start < len(series) {
		segs = append(segs, series[start:])
	}
	return segs
}
