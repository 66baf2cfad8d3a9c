package features

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SeasonStartWeek is the ISO week that opens a reporting season. German
// influenza seasons are labelled across the year boundary ("2014/15" runs
// from 2014-W40 through 2015-W39).
const SeasonStartWeek = 40

// WeeksInYear returns the number of ISO weeks (52 or 53) in the given ISO year.
func WeeksInYear(year int) int {
	// December 28 always falls into the last ISO week of its year.
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// AddWeeks advances the ISO (year, week) pair by n weeks. n may be negative.
func AddWeeks(year, week, n int) (int, int) {
	week += n
	for week > WeeksInYear(year) {
		week -= WeeksInYear(year)
		year++
	}
	for week < 1 {
		year--
		week += WeeksInYear(year)
	}
	return year, week
}

// WeekDiff returns the signed number of weeks from (y1, w1) to (y2, w2).
func WeekDiff(y1, w1, y2, w2 int) int {
	if y1 == y2 {
		return w2 - w1
	}
	sign := 1
	if y2 < y1 {
		y1, w1, y2, w2 = y2, w2, y1, w1
		sign = -1
	}
	d := WeeksInYear(y1) - w1 + w2
	for y := y1 + 1; y < y2; y++ {
		d += WeeksInYear(y)
	}
	return sign * d
}

// SeasonOf returns the season label ("2014/15") that contains the given ISO week.
func SeasonOf(year, week int) string {
	start := year
	if week < SeasonStartWeek {
		start = year - 1
	}
	return fmt.Sprintf("%d/%02d", start, (start+1)%100)
}

// SeasonStartYear parses a season label back to its starting calendar year.
func SeasonStartYear(label string) (int, error) {
	idx := strings.IndexByte(label, '/')
	if idx != 4 {
		return 0, fmt.Errorf("invalid season label %q (want e.g. \"2014/15\")", label)
	}
	y, err := strconv.Atoi(label[:idx])
	if err != nil {
		return 0, fmt.Errorf("invalid season label %q: %w", label, err)
	}
	if label != SeasonOf(y, SeasonStartWeek) {
		return 0, fmt.Errorf("invalid season label %q (want e.g. \"2014/15\")", label)
	}
	return y, nil
}

// SeasonOffset returns the zero-based week offset inside the season that
// contains (year, week): 0 for week 40, 1 for week 41 and so on across the
// year boundary.
func SeasonOffset(year, week int) int {
	if week >= SeasonStartWeek {
		return week - SeasonStartWeek
	}
	return WeeksInYear(year-1) - SeasonStartWeek + week
}
