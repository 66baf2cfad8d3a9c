package features

import (
	"os"
	"path/filepath"
	"testing"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

const tableHeader = "state,year,week,influenza_rate,temp_mean,search_flu"

// TestLoadTable loads two files and checks signals, lookups and ordering.
func TestLoadTable(t *testing.T) {
	tmp := t.TempDir()

	writeCSV(t, filepath.Join(tmp, "a_bw.csv"), tableHeader, []string{
		"BW,2014,41,1.5,8.2,12",
		"BW,2014,40,0.5,10.1,10",
		"BW,2014,42,2.5,6.0,30",
	})
	// Same signals, different column order, full state name.
	writeCSV(t, filepath.Join(tmp, "b_by.csv"), "week,state,year,search_flu,influenza_rate,temp_mean", []string{
		"40,Bayern,2014,5,0.2,9.9",
		"41,Bayern,2014,8,0.9,7.7",
	})

	table, err := Load(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := table.NumRows(); got != 5 {
		t.Fatalf("expected 5 rows, got %d", got)
	}
	wantSignals := []string{"influenza_rate", "temp_mean", "search_flu"}
	if got := table.Signals(); len(got) != len(wantSignals) {
		t.Fatalf("unexpected signals: %v", got)
	} else {
		for i := range wantSignals {
			if got[i] != wantSignals[i] {
				t.Fatalf("signal %d: got %q, expected %q", i, got[i], wantSignals[i])
			}
		}
	}

	if got := table.States(); len(got) != 2 || got[0] != "BW" || got[1] != "BY" {
		t.Fatalf("unexpected states: %v", got)
	}
	if got := table.Seasons(); len(got) != 1 || got[0] != "2014/15" {
		t.Fatalf("unexpected seasons: %v", got)
	}

	rate, ok := table.Rate("BW", 2014, 42)
	if !ok || rate != 2.5 {
		t.Fatalf("Rate(BW, 2014, 42) = %v, %v", rate, ok)
	}
	// Lookup tolerates name spellings.
	if rate, ok = table.Rate("bayern", 2014, 41); !ok || rate != 0.9 {
		t.Fatalf("Rate(bayern, 2014, 41) = %v, %v", rate, ok)
	}
	if _, ok = table.Rate("BW", 2014, 45); ok {
		t.Fatalf("expected no row for BW 2014-W45")
	}

	row, ok := table.Row("BY", 2014, 40)
	if !ok {
		t.Fatalf("Row(BY, 2014, 40) not found")
	}
	if row.Values[0] != 0.2 || row.Values[1] != 9.9 || row.Values[2] != 5 {
		t.Fatalf("row values not in signal order: %v", row.Values)
	}

	// Series is sorted by week even though the file was not.
	series, err := table.Series("BW")
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series) != 3 || series[0].Week != 40 || series[2].Week != 42 {
		t.Fatalf("unexpected series: %v", series)
	}

	sig, err := table.SignalSeries("BW", "temp_mean")
	if err != nil {
		t.Fatalf("SignalSeries failed: %v", err)
	}
	if len(sig) != 3 || sig[0].Value != 10.1 {
		t.Fatalf("unexpected signal series: %v", sig)
	}
	if _, err := table.SignalSeries("BW", "nope"); err == nil {
		t.Fatalf("expected error for unknown signal")
	}
}

// TestLoadTableErrors exercises the loader's validation paths.
func TestLoadTableErrors(t *testing.T) {
	tmp := t.TempDir()

	if _, err := Load(filepath.Join(tmp, "*.csv")); err == nil {
		t.Fatalf("expected error for empty glob")
	}

	missing := filepath.Join(tmp, "missing")
	if err := os.Mkdir(missing, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(missing, "bad.csv"), "state,year,week,temp_mean", []string{
		"BW,2014,40,8.0",
	})
	if _, err := Load(filepath.Join(missing, "*.csv")); err == nil {
		t.Fatalf("expected error for missing influenza_rate column")
	}

	dup := filepath.Join(tmp, "dup")
	if err := os.Mkdir(dup, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(dup, "dup.csv"), tableHeader, []string{
		"BW,2014,40,0.5,10.1,10",
		"BW,2014,40,0.6,10.1,10",
	})
	if _, err := Load(filepath.Join(dup, "*.csv")); err == nil {
		t.Fatalf("expected error for duplicate state-week")
	}

	unknown := filepath.Join(tmp, "unknown")
	if err := os.Mkdir(unknown, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(unknown, "unknown.csv"), tableHeader, []string{
		"Atlantis,2014,40,0.5,10.1,10",
	})
	if _, err := Load(filepath.Join(unknown, "*.csv")); err == nil {
		t.Fatalf("expected error for unknown state")
	}

	badWeek := filepath.Join(tmp, "badweek")
	if err := os.Mkdir(badWeek, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(badWeek, "badweek.csv"), tableHeader, []string{
		"BW,2014,53,0.5,10.1,10",
	})
	if _, err := Load(filepath.Join(badWeek, "*.csv")); err == nil {
		t.Fatalf("expected error for week 53 in a 52-week year")
	}

	negative := filepath.Join(tmp, "negative")
	if err := os.Mkdir(negative, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(negative, "negative.csv"), tableHeader, []string{
		"BW,2014,40,-0.5,10.1,10",
	})
	if _, err := Load(filepath.Join(negative, "*.csv")); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

// TestTableFilters checks FilterStates and SeasonTable sub-tables.
func TestTableFilters(t *testing.T) {
	tmp := t.TempDir()
	writeCSV(t, filepath.Join(tmp, "t.csv"), tableHeader, []string{
		"BW,2014,40,0.5,10.1,10",
		"BW,2015,40,1.5,9.1,20",
		"BY,2014,40,0.2,9.9,5",
		"HE,2014,40,0.3,9.0,7",
	})
	table, err := Load(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	sub, err := table.FilterStates([]string{"BW", "Hessen"})
	if err != nil {
		t.Fatalf("FilterStates failed: %v", err)
	}
	if got := sub.States(); len(got) != 2 || got[0] != "BW" || got[1] != "HE" {
		t.Fatalf("unexpected filtered states: %v", got)
	}
	if sub.NumRows() != 3 {
		t.Fatalf("expected 3 filtered rows, got %d", sub.NumRows())
	}
	if _, err := table.FilterStates([]string{"Atlantis"}); err == nil {
		t.Fatalf("expected error for unknown state in filter")
	}

	season, err := table.SeasonTable("2014/15")
	if err != nil {
		t.Fatalf("SeasonTable failed: %v", err)
	}
	if season.NumRows() != 3 {
		t.Fatalf("expected 3 rows in 2014/15, got %d", season.NumRows())
	}
	if _, err := table.SeasonTable("2020/21"); err == nil {
		t.Fatalf("expected error for absent season")
	}
	if _, err := table.SeasonTable("garbage"); err == nil {
		t.Fatalf("expected error for invalid season label")
	}
}

// TestParseFloatDecimalComma accepts exports that use decimal commas.
func TestParseFloatDecimalComma(t *testing.T) {
	v, err := parseFloat(" 1,5 ")
	if err != nil {
		t.Fatalf("parseFloat failed: %v", err)
	}
	if v != 1.5 {
		t.Fatalf("expected 1.5, got %v", v)
	}
	if _, err := parseFloat(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

// TestFindCSVInAssets turns a data directory into a loadable glob.
func TestFindCSVInAssets(t *testing.T) {
	tmp := t.TempDir()
	writeCSV(t, filepath.Join(tmp, "rates.csv"), tableHeader, []string{
		"BW,2014,40,0.5,10.1,10",
	})

	pattern, err := FindCSVInAssets(tmp)
	if err != nil {
		t.Fatalf("FindCSVInAssets failed: %v", err)
	}
	if pattern != filepath.Join(tmp, "*.csv") {
		t.Fatalf("unexpected pattern %q", pattern)
	}
	if _, err := Load(pattern); err != nil {
		t.Fatalf("Load on returned pattern failed: %v", err)
	}

	if _, err := FindCSVInAssets(t.TempDir()); err == nil {
		t.Fatalf("expected error for a directory without CSV files")
	}
}
