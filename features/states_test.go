package features

import "testing"

// TestStates verifies the embedded state metadata loads and is complete.
func TestStates(t *testing.T) {
	states, err := States()
	if err != nil {
		t.Fatalf("States failed: %v", err)
	}
	if len(states) != 16 {
		t.Fatalf("expected 16 states, got %d", len(states))
	}
	for i := 1; i < len(states); i++ {
		if states[i-1].Code >= states[i].Code {
			t.Fatalf("states not sorted by code: %s before %s", states[i-1].Code, states[i].Code)
		}
	}
	for _, s := range states {
		if s.Code == "" || s.Name == "" {
			t.Fatalf("state with empty code or name: %+v", s)
		}
		if s.Population <= 0 {
			t.Fatalf("state %s has non-positive population %d", s.Code, s.Population)
		}
	}
}

// TestLookupState checks lookup by code, by name, and with ASCII spellings of
// umlauts.
func TestLookupState(t *testing.T) {
	cases := []struct {
		in   string
		code string
	}{
		{"BW", "BW"},
		{"bw", "BW"},
		{"Baden-Württemberg", "BW"},
		{"baden-wuerttemberg", "BW"},
		{"Baden Wuerttemberg", "BW"},
		{"Thüringen", "TH"},
		{"thueringen", "TH"},
		{"Nordrhein-Westfalen", "NW"},
		{"Sachsen-Anhalt", "ST"},
		{"Sachsen", "SN"},
	}
	for _, c := range cases {
		st, err := LookupState(c.in)
		if err != nil {
			t.Fatalf("LookupState(%q) failed: %v", c.in, err)
		}
		if st.Code != c.code {
			t.Fatalf("LookupState(%q) = %s, expected %s", c.in, st.Code, c.code)
		}
	}

	if _, err := LookupState("Atlantis"); err == nil {
		t.Fatalf("expected error for unknown state, got nil")
	}
	if _, err := LookupState(""); err == nil {
		t.Fatalf("expected error for empty state, got nil")
	}
}
