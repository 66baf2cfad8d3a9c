package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Required columns every feature CSV must carry. Remaining numeric columns are
// treated as named signals (weather aggregates, search trends, and so on).
var requiredColumns = []string{"state", "year", "week", "influenza_rate"}

// RateSignal is the name under which the weekly infection rate appears in the
// signal list. It is always the first signal so the rate participates in the
// rolling window like any other predictor.
const RateSignal = "influenza_rate"

// Row is one state-week of the feature table.
type Row struct {
	State string // state code, e.g. "BW"
	Year  int    // ISO year
	Week  int    // ISO week, 1..53

	// Rate is the reported infection rate per 100k inhabitants for this week.
	Rate float64

	// Values holds all signal values in Table.Signals() order; Values[0] is
	// the rate itself.
	Values []float64
}

// Season returns the season label ("2014/15") this row belongs to.
func (r Row) Season() string { return SeasonOf(r.Year, r.Week) }

// WeekRate is a (week, rate) point of a per-state series.
type WeekRate struct {
	Year int
	Week int
	Rate float64
}

// WeekValue is a (week, value) point of a per-state signal series.
type WeekValue struct {
	Year  int
	Week  int
	Value float64
}

// Table is the read-only weekly feature table: one row per state per ISO week,
// with the infection rate and an arbitrary set of named signals. It is loaded
// once and then only read.
type Table struct {
	signals []string
	rows    []Row
	index   map[tableKey]int
	states  []string
	seasons []string
}

type tableKey struct {
	state string
	year  int
	week  int
}

// Load reads all CSV files matching the glob pattern into one feature table.
//
// The first file's header fixes the signal set; every file must provide at
// least the required columns (state, year, week, influenza_rate) plus those
// signals, in any column order. State spellings are normalized to state codes
// using the embedded metadata. Duplicate (state, year, week) rows are an
// error.
func Load(pattern string) (*Table, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CSV files found matching pattern: %s", pattern)
	}
	sort.Strings(paths)

	t := &Table{index: make(map[tableKey]int)}
	for i, path := range paths {
		if err := t.loadFile(path, i == 0); err != nil {
			return nil, err
		}
	}
	t.finish()
	return t, nil
}

// loadFile appends one CSV file's rows. The first file defines the signal set.
func (t *Table) loadFile(path string, first bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header[0] = stripBOM(header[0])

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("required column %q not found in %s", col, path)
		}
	}

	if first {
		// Signal order: rate first, then the remaining columns in header order.
		t.signals = []string{RateSignal}
		for _, col := range header {
			name := strings.TrimSpace(strings.ToLower(col))
			switch name {
			case "state", "year", "week", RateSignal:
				continue
			}
			t.signals = append(t.signals, name)
		}
	} else {
		for _, sig := range t.signals {
			if _, ok := colIndex[sig]; !ok {
				return fmt.Errorf("signal column %q missing from %s", sig, path)
			}
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++

		st, err := LookupState(record[colIndex["state"]])
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		year, err := parseInt(record[colIndex["year"]])
		if err != nil {
			return fmt.Errorf("%s:%d: bad year: %w", path, line, err)
		}
		week, err := parseInt(record[colIndex["week"]])
		if err != nil {
			return fmt.Errorf("%s:%d: bad week: %w", path, line, err)
		}
		if week < 1 || week > WeeksInYear(year) {
			return fmt.Errorf("%s:%d: week %d out of range for %d", path, line, week, year)
		}

		values := make([]float64, len(t.signals))
		for i, sig := range t.signals {
			v, err := parseFloat(record[colIndex[sig]])
			if err != nil {
				return fmt.Errorf("%s:%d: bad %s value: %w", path, line, sig, err)
			}
			values[i] = v
		}
		if values[0] < 0 {
			return fmt.Errorf("%s:%d: negative infection rate %v", path, line, values[0])
		}

		key := tableKey{state: st.Code, year: year, week: week}
		if _, dup := t.index[key]; dup {
			return fmt.Errorf("%s:%d: duplicate row for %s %d-W%02d", path, line, st.Code, year, week)
		}
		t.index[key] = len(t.rows)
		t.rows = append(t.rows, Row{
			State:  st.Code,
			Year:   year,
			Week:   week,
			Rate:   values[0],
			Values: values,
		})
	}
	return nil
}

// finish sorts rows by state then week and rebuilds the index and the distinct
// state/season lists.
func (t *Table) finish() {
	sort.Slice(t.rows, func(i, j int) bool {
		a, b := t.rows[i], t.rows[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Week < b.Week
	})

	t.index = make(map[tableKey]int, len(t.rows))
	stateSet := make(map[string]bool)
	seasonSet := make(map[string]bool)
	for i, r := range t.rows {
		t.index[tableKey{r.State, r.Year, r.Week}] = i
		stateSet[r.State] = true
		seasonSet[r.Season()] = true
	}

	t.states = t.states[:0]
	for s := range stateSet {
		t.states = append(t.states, s)
	}
	sort.Strings(t.states)

	t.seasons = t.seasons[:0]
	for s := range seasonSet {
		t.seasons = append(t.seasons, s)
	}
	sort.Strings(t.seasons)
}

// stateRows returns the contiguous sorted row range of one state code.
func (t *Table) stateRows(code string) []Row {
	lo := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].State >= code })
	hi := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].State > code })
	return t.rows[lo:hi]
}

// NumRows returns the total number of state-week rows.
func (t *Table) NumRows() int { return len(t.rows) }

// Rows returns the underlying rows, sorted by state then week. Callers must
// not modify the returned slice.
func (t *Table) Rows() []Row { return t.rows }

// Signals returns the signal names in column order; Signals()[0] is the rate.
func (t *Table) Signals() []string { return t.signals }

// States returns the distinct state codes present in the table, sorted.
func (t *Table) States() []string { return t.states }

// Seasons returns the distinct season labels present in the table, sorted.
func (t *Table) Seasons() []string { return t.seasons }

// Row looks up a single state-week.
func (t *Table) Row(state string, year, week int) (Row, bool) {
	st, err := LookupState(state)
	if err != nil {
		return Row{}, false
	}
	i, ok := t.index[tableKey{st.Code, year, week}]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// Rate looks up the infection rate for one state-week.
func (t *Table) Rate(state string, year, week int) (float64, bool) {
	r, ok := t.Row(state, year, week)
	if !ok {
		return 0, false
	}
	return r.Rate, true
}

// Series returns the ordered weekly rate series for one state.
func (t *Table) Series(state string) ([]WeekRate, error) {
	st, err := LookupState(state)
	if err != nil {
		return nil, err
	}
	var out []WeekRate
	for _, r := range t.rows {
		if r.State == st.Code {
			out = append(out, WeekRate{Year: r.Year, Week: r.Week, Rate: r.Rate})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rows for state %s", st.Code)
	}
	return out, nil
}

// SignalSeries returns the ordered weekly series of one signal for one state.
func (t *Table) SignalSeries(state, signal string) ([]WeekValue, error) {
	st, err := LookupState(state)
	if err != nil {
		return nil, err
	}
	sigIdx := -1
	for i, s := range t.signals {
		if s == strings.TrimSpace(strings.ToLower(signal)) {
			sigIdx = i
			break
		}
	}
	if sigIdx < 0 {
		return nil, fmt.Errorf("unknown signal %q (have %s)", signal, strings.Join(t.signals, ", "))
	}
	var out []WeekValue
	for _, r := range t.rows {
		if r.State == st.Code {
			out = append(out, WeekValue{Year: r.Year, Week: r.Week, Value: r.Values[sigIdx]})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rows for state %s", st.Code)
	}
	return out, nil
}

// FilterStates returns a sub-table restricted to the given states. State
// spellings are normalized; unknown states are an error.
func (t *Table) FilterStates(states []string) (*Table, error) {
	want := make(map[string]bool, len(states))
	for _, s := range states {
		st, err := LookupState(s)
		if err != nil {
			return nil, err
		}
		want[st.Code] = true
	}
	sub := &Table{signals: t.signals}
	for _, r := range t.rows {
		if want[r.State] {
			sub.rows = append(sub.rows, r)
		}
	}
	sub.finish()
	return sub, nil
}

// SeasonTable returns a sub-table restricted to one season label.
func (t *Table) SeasonTable(season string) (*Table, error) {
	if _, err := SeasonStartYear(season); err != nil {
		return nil, err
	}
	sub := &Table{signals: t.signals}
	for _, r := range t.rows {
		if r.Season() == season {
			sub.rows = append(sub.rows, r)
		}
	}
	if len(sub.rows) == 0 {
		return nil, fmt.Errorf("no rows for season %s", season)
	}
	sub.finish()
	return sub, nil
}
