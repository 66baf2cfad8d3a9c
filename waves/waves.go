// Package waves derives influenza wave statistics from weekly infection
// rates: contiguous above-threshold spans, per-season summaries and a
// three-level activity classification of single weeks.
package waves

import (
	"fmt"

	"github.com/Noofbiz/fluCast/features"
)

// Thresholds holds the rate levels (per 100k inhabitants) the wave analysis
// is built on.
type Thresholds struct {
	// Boundary delimits wave spans: a wave starts at the first week at or
	// above it and ends at the last.
	Boundary float64

	// Onset marks a week as having notable influenza activity. It is the
	// default classifier target.
	Onset float64

	// Severe marks a season whose peak reaches it as a severe season.
	Severe float64
}

// DefaultThresholds returns the levels used throughout the reporting:
// 2.0 for wave boundaries, 0.8 for weekly activity, 7.0 for severe seasons.
func DefaultThresholds() Thresholds {
	return Thresholds{Boundary: 2.0, Onset: 0.8, Severe: 7.0}
}

// Validate checks the levels are positive and ordered.
func (th Thresholds) Validate() error {
	if th.Onset <= 0 || th.Boundary <= 0 || th.Severe <= 0 {
		return fmt.Errorf("thresholds must be positive: %+v", th)
	}
	if th.Onset > th.Boundary || th.Boundary > th.Severe {
		return fmt.Errorf("thresholds must be ordered onset <= boundary <= severe: %+v", th)
	}
	return nil
}

// Level classifies one week's influenza activity.
type Level int

const (
	// LevelQuiet is a week below the onset threshold.
	LevelQuiet Level = iota
	// LevelActive is a week at or above onset but below severe.
	LevelActive
	// LevelSevere is a week at or above the severe threshold.
	LevelSevere
)

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelActive:
		return "active"
	case LevelSevere:
		return "severe"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ClassifyWeek maps a weekly rate to its activity level.
func ClassifyWeek(rate float64, th Thresholds) Level {
	switch {
	case rate >= th.Severe:
		return LevelSevere
	case rate >= th.Onset:
		return LevelActive
	}
	return LevelQuiet
}

// Wave is one contiguous span of weeks at or above the boundary threshold.
type Wave struct {
	State string

	StartYear int
	StartWeek int
	EndYear   int
	EndWeek   int

	// Length is the inclusive number of weeks from start to end.
	Length int

	PeakYear int
	PeakWeek int
	PeakRate float64
}

// Season returns the season label of the wave's start week.
func (w Wave) Season() string { return features.SeasonOf(w.StartYear, w.StartWeek) }

// Detect finds all waves in a weekly rate series. A wave is a maximal run of
// consecutive weeks with rate at or above th.Boundary; a reporting gap ends
// the run.
func Detect(state string, series []features.WeekRate, th Thresholds) []Wave {
	var out []Wave
	var cur *Wave
	prevYear, prevWeek := 0, 0

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, p := range series {
		gap := cur != nil && features.WeekDiff(prevYear, prevWeek, p.Year, p.Week) != 1
		if gap || p.Rate < th.Boundary {
			flush()
		}
		if p.Rate >= th.Boundary {
			if cur == nil {
				cur = &Wave{
					State:     state,
					StartYear: p.Year,
					StartWeek: p.Week,
				}
			}
			cur.EndYear, cur.EndWeek = p.Year, p.Week
			cur.Length = features.WeekDiff(cur.StartYear, cur.StartWeek, p.Year, p.Week) + 1
			if p.Rate > cur.PeakRate {
				cur.PeakYear, cur.PeakWeek, cur.PeakRate = p.Year, p.Week, p.Rate
			}
		}
		prevYear, prevWeek = p.Year, p.Week
	}
	flush()
	return out
}

// SeasonSummary aggregates one state's season: the wave span (first to last
// week at or above the boundary), its peak, and severity.
type SeasonSummary struct {
	State  string
	Season string

	// HasWave is false when no week of the season reaches the boundary
	// threshold; the span fields are zero then.
	HasWave bool

	StartYear int
	StartWeek int
	EndYear   int
	EndWeek   int

	// Length is the inclusive week count from start to end. Weeks inside the
	// span may dip below the boundary; the span runs first to last crossing.
	Length int

	// Peak is the season's highest reported week, whether or not a wave
	// formed around it.
	PeakYear int
	PeakWeek int
	PeakRate float64

	// MeanRate averages all reported weeks of the season.
	MeanRate float64

	// Severe is true when the peak reaches the severe threshold.
	Severe bool
}

// SeasonStats summarizes one state's wave in one season.
func SeasonStats(t *features.Table, state, season string, th Thresholds) (SeasonSummary, error) {
	if err := th.Validate(); err != nil {
		return SeasonSummary{}, err
	}
	st, err := features.LookupState(state)
	if err != nil {
		return SeasonSummary{}, err
	}
	series, err := t.Series(st.Code)
	if err != nil {
		return SeasonSummary{}, err
	}

	sum := SeasonSummary{State: st.Code, Season: season}
	var total float64
	count := 0
	for _, p := range series {
		if features.SeasonOf(p.Year, p.Week) != season {
			continue
		}
		count++
		total += p.Rate
		if p.Rate > sum.PeakRate {
			sum.PeakYear, sum.PeakWeek, sum.PeakRate = p.Year, p.Week, p.Rate
		}
		if p.Rate >= th.Boundary {
			if !sum.HasWave {
				sum.HasWave = true
				sum.StartYear, sum.StartWeek = p.Year, p.Week
			}
			sum.EndYear, sum.EndWeek = p.Year, p.Week
		}
	}
	if count == 0 {
		return SeasonSummary{}, fmt.Errorf("no rows for state %s in season %s", st.Code, season)
	}
	sum.MeanRate = total / float64(count)
	if sum.HasWave {
		sum.Length = features.WeekDiff(sum.StartYear, sum.StartWeek, sum.EndYear, sum.EndWeek) + 1
	}
	sum.Severe = sum.PeakRate >= th.Severe
	return sum, nil
}

// AllSeasonStats summarizes every state and season present in the table,
// ordered by state then season.
func AllSeasonStats(t *features.Table, th Thresholds) ([]SeasonSummary, error) {
	var out []SeasonSummary
	for _, state := range t.States() {
		for _, season := range t.Seasons() {
			sum, err := SeasonStats(t, state, season, th)
			if err != nil {
				// A state may be absent from a season entirely.
				continue
			}
			out = append(out, sum)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no season summaries could be computed")
	}
	return out, nil
}
