package features

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed states.yaml
var statesYAML []byte

// State holds metadata for one German federal state.
type State struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	Population int    `yaml:"population"`
}

var (
	statesOnce sync.Once
	statesList []State
	statesByID map[string]State
	statesErr  error
)

func loadStates() {
	var doc struct {
		States []State `yaml:"states"`
	}
	if err := yaml.Unmarshal(statesYAML, &doc); err != nil {
		statesErr = fmt.Errorf("failed to parse embedded state metadata: %w", err)
		return
	}
	statesList = doc.States
	statesByID = make(map[string]State, 2*len(doc.States))
	for _, st := range doc.States {
		statesByID[normalizeStateKey(st.Code)] = st
		statesByID[normalizeStateKey(st.Name)] = st
	}
}

// States returns the sixteen German states sorted by code.
func States() ([]State, error) {
	statesOnce.Do(loadStates)
	if statesErr != nil {
		return nil, statesErr
	}
	out := make([]State, len(statesList))
	copy(out, statesList)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// LookupState resolves a state by code ("BW") or name ("Baden-Württemberg").
// Matching ignores case, spacing, hyphens, and spells umlauts either way, so
// "baden wuerttemberg" resolves as well.
func LookupState(s string) (State, error) {
	statesOnce.Do(loadStates)
	if statesErr != nil {
		return State{}, statesErr
	}
	st, ok := statesByID[normalizeStateKey(s)]
	if !ok {
		return State{}, fmt.Errorf("unknown German state %q", s)
	}
	return st, nil
}

// normalizeStateKey folds a state code or name to a lookup key: lower case,
// no separators, umlauts transliterated.
func normalizeStateKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(
		"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
		" ", "", "-", "", "_", "",
	)
	return r.Replace(s)
}
