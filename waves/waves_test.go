package waves

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/fluCast/features"
)

// TestThresholds checks the default levels and their validation.
func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	if th.Boundary != 2.0 || th.Onset != 0.8 || th.Severe != 7.0 {
		t.Fatalf("unexpected default thresholds: %+v", th)
	}
	if err := th.Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}

	bad := []Thresholds{
		{Boundary: 0, Onset: 0.8, Severe: 7},
		{Boundary: 2, Onset: -1, Severe: 7},
		{Boundary: 2, Onset: 3, Severe: 7},
		{Boundary: 8, Onset: 0.8, Severe: 7},
	}
	for _, th := range bad {
		if err := th.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", th)
		}
	}
}

// TestClassifyWeek covers the three activity levels and their boundaries.
func TestClassifyWeek(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		rate float64
		want Level
	}{
		{0, LevelQuiet},
		{0.79, LevelQuiet},
		{0.8, LevelActive},
		{3.5, LevelActive},
		{6.99, LevelActive},
		{7.0, LevelSevere},
		{25, LevelSevere},
	}
	for _, c := range cases {
		if got := ClassifyWeek(c.rate, th); got != c.want {
			t.Fatalf("ClassifyWeek(%v) = %v, expected %v", c.rate, got, c.want)
		}
	}
	if LevelSevere.String() != "severe" || LevelQuiet.String() != "quiet" {
		t.Fatalf("unexpected level names: %v %v", LevelSevere, LevelQuiet)
	}
}

// series builds a weekly rate series starting at 2014-W40.
func series(rates ...float64) []features.WeekRate {
	out := make([]features.WeekRate, len(rates))
	year, week := 2014, 40
	for i, r := range rates {
		out[i] = features.WeekRate{Year: year, Week: week, Rate: r}
		year, week = features.AddWeeks(year, week, 1)
	}
	return out
}

// TestDetect finds wave spans in a series with two separate waves.
func TestDetect(t *testing.T) {
	th := DefaultThresholds()
	// W40..W49: quiet, rising wave W42..W44, quiet, second wave W47..W48.
	s := series(0.5, 1.0, 2.5, 8.0, 3.0, 1.5, 0.5, 2.0, 2.2, 1.0)

	got := Detect("BW", s, th)
	if len(got) != 2 {
		t.Fatalf("expected 2 waves, got %d: %+v", len(got), got)
	}

	first := got[0]
	if first.StartWeek != 42 || first.EndWeek != 44 || first.Length != 3 {
		t.Fatalf("unexpected first wave span: %+v", first)
	}
	if first.PeakWeek != 43 || first.PeakRate != 8.0 {
		t.Fatalf("unexpected first wave peak: %+v", first)
	}
	if first.State != "BW" || first.Season() != "2014/15" {
		t.Fatalf("unexpected first wave attribution: %+v", first)
	}

	second := got[1]
	if second.StartWeek != 47 || second.EndWeek != 48 || second.Length != 2 {
		t.Fatalf("unexpected second wave span: %+v", second)
	}
	if second.PeakRate != 2.2 {
		t.Fatalf("unexpected second wave peak: %+v", second)
	}
}

// TestDetectGapSplitsWave verifies a reporting gap ends a run even when the
// rate stays above the boundary on both sides.
func TestDetectGapSplitsWave(t *testing.T) {
	th := DefaultThresholds()
	s := []features.WeekRate{
		{Year: 2014, Week: 40, Rate: 3.0},
		{Year: 2014, Week: 41, Rate: 3.0},
		// W42 missing.
		{Year: 2014, Week: 43, Rate: 3.0},
	}
	got := Detect("BW", s, th)
	if len(got) != 2 {
		t.Fatalf("expected gap to split the wave, got %d waves: %+v", len(got), got)
	}
	if got[0].EndWeek != 41 || got[1].StartWeek != 43 {
		t.Fatalf("unexpected spans around the gap: %+v", got)
	}
}

// TestDetectQuietSeries returns no waves for a series below the boundary.
func TestDetectQuietSeries(t *testing.T) {
	got := Detect("BW", series(0.1, 0.5, 1.9, 0.3), DefaultThresholds())
	if len(got) != 0 {
		t.Fatalf("expected no waves, got %+v", got)
	}
}

// waveTable writes a one-state table spanning 2014-W40 onward with the given
// weekly rates.
func waveTable(t *testing.T, rates []float64) *features.Table {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "rates.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	fmt.Fprintln(f, "state,year,week,influenza_rate")
	year, week := 2014, 40
	for _, r := range rates {
		fmt.Fprintf(f, "BW,%d,%d,%v\n", year, week, r)
		year, week = features.AddWeeks(year, week, 1)
	}
	f.Close()

	table, err := features.Load(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return table
}

// TestSeasonStats summarizes a season with a dip inside the wave span.
func TestSeasonStats(t *testing.T) {
	th := DefaultThresholds()
	// W40..W47: wave crosses at W42 and last crosses at W46, dipping at W44.
	table := waveTable(t, []float64{0.5, 1.0, 2.5, 9.0, 1.5, 4.0, 2.1, 0.4})

	sum, err := SeasonStats(table, "BW", "2014/15", th)
	if err != nil {
		t.Fatalf("SeasonStats failed: %v", err)
	}
	if !sum.HasWave {
		t.Fatalf("expected a wave: %+v", sum)
	}
	if sum.StartWeek != 42 || sum.EndWeek != 46 {
		t.Fatalf("unexpected span: %+v", sum)
	}
	if sum.Length != 5 {
		t.Fatalf("expected inclusive length 5, got %d", sum.Length)
	}
	if sum.PeakWeek != 43 || sum.PeakRate != 9.0 {
		t.Fatalf("unexpected peak: %+v", sum)
	}
	if !sum.Severe {
		t.Fatalf("peak 9.0 should be severe: %+v", sum)
	}
	wantMean := (0.5 + 1.0 + 2.5 + 9.0 + 1.5 + 4.0 + 2.1 + 0.4) / 8
	if diff := sum.MeanRate - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected mean rate: got %v, expected %v", sum.MeanRate, wantMean)
	}

	if _, err := SeasonStats(table, "BW", "2019/20", th); err == nil {
		t.Fatalf("expected error for season without rows")
	}
	if _, err := SeasonStats(table, "Atlantis", "2014/15", th); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

// TestSeasonStatsNoWave keeps the peak but reports no span for a quiet season.
func TestSeasonStatsNoWave(t *testing.T) {
	table := waveTable(t, []float64{0.1, 0.9, 1.8, 0.6})
	sum, err := SeasonStats(table, "BW", "2014/15", DefaultThresholds())
	if err != nil {
		t.Fatalf("SeasonStats failed: %v", err)
	}
	if sum.HasWave || sum.Length != 0 || sum.StartWeek != 0 {
		t.Fatalf("expected no wave: %+v", sum)
	}
	if sum.PeakRate != 1.8 || sum.PeakWeek != 42 {
		t.Fatalf("expected season peak to survive without a wave: %+v", sum)
	}
	if sum.Severe {
		t.Fatalf("quiet season flagged severe: %+v", sum)
	}
}

// TestAllSeasonStats orders summaries by state then season and skips absent
// combinations.
func TestAllSeasonStats(t *testing.T) {
	tmp := t.TempDir()
	f, err := os.Create(filepath.Join(tmp, "t.csv"))
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	fmt.Fprintln(f, "state,year,week,influenza_rate")
	// BW reports two seasons, BY only one.
	fmt.Fprintln(f, "BW,2014,44,3.0")
	fmt.Fprintln(f, "BW,2015,44,0.5")
	fmt.Fprintln(f, "BY,2014,44,8.0")
	f.Close()

	table, err := features.Load(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := AllSeasonStats(table, DefaultThresholds())
	if err != nil {
		t.Fatalf("AllSeasonStats failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 summaries, got %d: %+v", len(got), got)
	}
	if got[0].State != "BW" || got[0].Season != "2014/15" {
		t.Fatalf("unexpected first summary: %+v", got[0])
	}
	if got[1].State != "BW" || got[1].Season != "2015/16" {
		t.Fatalf("unexpected second summary: %+v", got[1])
	}
	if got[2].State != "BY" || !got[2].Severe {
		t.Fatalf("unexpected third summary: %+v", got[2])
	}
}
