package features

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset is the example-level view the training code consumes. Implementations
// also satisfy gomlx's train.Dataset via Yield/Restart so the same set can feed
// either trainer.
type Dataset interface {
	Len() int
	Example(i int) (inputs []float32, labels []float32, err error)
	Batch(indices []int) (inputs [][]float32, labels [][]float32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

// WindowSpec describes how to slice the feature table into classifier
// examples. Each example is a run of Window consecutive weeks of one state's
// signals; its label says whether the infection rate Horizon weeks after the
// window's last week reaches Threshold.
type WindowSpec struct {
	// Window is the number of consecutive weeks of signals per example.
	Window int

	// Horizon is how many weeks past the window's last week the label looks.
	Horizon int

	// Threshold is the rate (per 100k) the label tests against.
	Threshold float64

	// States restricts examples to these states; empty means all states in
	// the table.
	States []string

	// OnlySeasons keeps only examples whose target week falls in one of these
	// seasons. ExcludeSeasons drops such examples instead. At most one of the
	// two may be set.
	OnlySeasons    []string
	ExcludeSeasons []string
}

// TargetWeek identifies the week an example's label refers to, together with
// the window's last (base) week the prediction would be issued from.
type TargetWeek struct {
	State    string
	Year     int
	Week     int
	Rate     float64
	BaseYear int
	BaseWeek int
}

// Season returns the season label of the target week.
func (t TargetWeek) Season() string { return SeasonOf(t.Year, t.Week) }

// WindowedSet is a materialized set of rolling-window examples built from a
// feature table. Missing weeks break windows; no example spans a gap and no
// example lacks its target week.
type WindowedSet struct {
	// BatchSize for yielding batches
	BatchSize int

	spec    WindowSpec
	columns []string

	inputs  [][]float32
	labels  [][]float32
	targets []TargetWeek

	// Yield order and epoch cursor
	order  []int
	cursor int
	rand   *rand.Rand
}

// NewWindowedSet slices the table according to spec. Within each state, rows
// are scanned in week order; an example is emitted for every position where
// Window consecutive weeks are present and the week Horizon past the window
// also is. The label is 1 when that week's rate is at or above spec.Threshold.
func NewWindowedSet(t *Table, spec WindowSpec) (*WindowedSet, error) {
	if spec.Window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", spec.Window)
	}
	if spec.Horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", spec.Horizon)
	}
	if spec.Threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %v", spec.Threshold)
	}
	if len(spec.OnlySeasons) > 0 && len(spec.ExcludeSeasons) > 0 {
		return nil, fmt.Errorf("OnlySeasons and ExcludeSeasons are mutually exclusive")
	}

	states := spec.States
	if len(states) == 0 {
		states = t.States()
	}
	only := make(map[string]bool, len(spec.OnlySeasons))
	for _, s := range spec.OnlySeasons {
		only[s] = true
	}
	exclude := make(map[string]bool, len(spec.ExcludeSeasons))
	for _, s := range spec.ExcludeSeasons {
		exclude[s] = true
	}

	ds := &WindowedSet{
		BatchSize: 32,
		spec:      spec,
		columns:   windowColumns(t.Signals(), spec.Window),
		rand:      rand.New(rand.NewSource(1)),
	}

	for _, state := range states {
		st, err := LookupState(state)
		if err != nil {
			return nil, err
		}
		rows := t.stateRows(st.Code)
		if len(rows) == 0 {
			return nil, fmt.Errorf("no rows for state %s", st.Code)
		}
		ds.appendState(t, rows, only, exclude)
	}

	ds.order = make([]int, len(ds.inputs))
	for i := range ds.order {
		ds.order[i] = i
	}
	return ds, nil
}

// appendState emits all valid windows for one state's row range.
func (d *WindowedSet) appendState(t *Table, rows []Row, only, exclude map[string]bool) {
	w := d.spec.Window
	for base := w - 1; base < len(rows); base++ {
		// The window rows[base-w+1 .. base] must be consecutive weeks.
		if !consecutive(rows[base-w+1 : base+1]) {
			continue
		}
		baseRow := rows[base]
		ty, tw := AddWeeks(baseRow.Year, baseRow.Week, d.spec.Horizon)
		target, ok := t.Row(baseRow.State, ty, tw)
		if !ok {
			continue
		}
		season := SeasonOf(ty, tw)
		if len(only) > 0 && !only[season] {
			continue
		}
		if exclude[season] {
			continue
		}

		input := make([]float32, 0, w*len(t.signals))
		for i := base - w + 1; i <= base; i++ {
			for _, v := range rows[i].Values {
				input = append(input, float32(v))
			}
		}
		label := float32(0)
		if target.Rate >= d.spec.Threshold {
			label = 1
		}

		d.inputs = append(d.inputs, input)
		d.labels = append(d.labels, []float32{label})
		d.targets = append(d.targets, TargetWeek{
			State:    baseRow.State,
			Year:     ty,
			Week:     tw,
			Rate:     target.Rate,
			BaseYear: baseRow.Year,
			BaseWeek: baseRow.Week,
		})
	}
}

// consecutive reports whether each adjacent pair of rows is exactly one ISO
// week apart.
func consecutive(rows []Row) bool {
	for i := 1; i < len(rows); i++ {
		if WeekDiff(rows[i-1].Year, rows[i-1].Week, rows[i].Year, rows[i].Week) != 1 {
			return false
		}
	}
	return true
}

// windowColumns names the input vector's entries: oldest week first, one block
// of signals per week, "[t]" being the window's last week.
func windowColumns(signals []string, window int) []string {
	cols := make([]string, 0, window*len(signals))
	for lag := window - 1; lag >= 0; lag-- {
		for _, sig := range signals {
			if lag == 0 {
				cols = append(cols, fmt.Sprintf("%s[t]", sig))
			} else {
				cols = append(cols, fmt.Sprintf("%s[t-%d]", sig, lag))
			}
		}
	}
	return cols
}

// Spec returns the window spec the set was built from.
func (d *WindowedSet) Spec() WindowSpec { return d.spec }

// Columns names the entries of each input vector, in order.
func (d *WindowedSet) Columns() []string { return d.columns }

// InputDim returns the width of each input vector.
func (d *WindowedSet) InputDim() int { return len(d.columns) }

// Targets returns the target-week metadata aligned with example indices.
// Callers must not modify the returned slice.
func (d *WindowedSet) Targets() []TargetWeek { return d.targets }

// PositiveShare returns the fraction of examples labeled 1.
func (d *WindowedSet) PositiveShare() float64 {
	if len(d.labels) == 0 {
		return 0
	}
	pos := 0
	for _, l := range d.labels {
		if l[0] >= 0.5 {
			pos++
		}
	}
	return float64(pos) / float64(len(d.labels))
}

// Len returns the number of examples.
func (d *WindowedSet) Len() int { return len(d.inputs) }

// Example returns a single example by index.
func (d *WindowedSet) Example(i int) ([]float32, []float32, error) {
	if i < 0 || i >= len(d.inputs) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, len(d.inputs))
	}
	return d.inputs[i], d.labels[i], nil
}

// Batch returns multiple examples by their indices.
func (d *WindowedSet) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for pos, idx := range indices {
		in, la, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[pos] = in
		labels[pos] = la
	}
	return inputs, labels, nil
}

// Shuffle permutes the epoch order used by Yield. Example indices are
// unaffected.
func (d *WindowedSet) Shuffle(seed int64) {
	d.rand = rand.New(rand.NewSource(seed))
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
	d.cursor = 0
}

// Name returns the name of the dataset.
func (d *WindowedSet) Name() string {
	return fmt.Sprintf("WindowedSet(w=%d,h=%d)", d.spec.Window, d.spec.Horizon)
}

// Yield returns the next batch as gomlx tensors, or io.EOF at the end of the
// epoch. Batch size is determined by the BatchSize field.
func (d *WindowedSet) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	end := d.cursor + d.BatchSize
	if end > len(d.order) {
		end = len(d.order)
	}
	indices := d.order[d.cursor:end]
	d.cursor = end

	in, la, err := d.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	flat, err := MakeFlatBatch(in, la)
	if err != nil {
		return nil, nil, nil, err
	}
	inT, laT, err := flat.ToTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{inT}, []*tensors.Tensor{laT}, nil
}

// Restart resets the epoch cursor for the gomlx Dataset interface.
func (d *WindowedSet) Restart() error {
	d.cursor = 0
	return nil
}

// Describe summarizes the set for logs.
func (d *WindowedSet) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d examples, %d inputs each, %.1f%% positive",
		d.Len(), d.InputDim(), 100*d.PositiveShare())
	return b.String()
}

// FlatBatch stores a batch in flat contiguous buffers.
type FlatBatch struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	LabelDim  int
}

// MakeFlatBatch flattens a batch into contiguous buffers.
func MakeFlatBatch(inputs, labels [][]float32) (*FlatBatch, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &FlatBatch{}, nil
	}

	batchSize := len(inputs)
	inputDim := len(inputs[0])
	labelDim := len(labels[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]float32, batchSize*labelDim)

	for i := range batchSize {
		if len(inputs[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(inputs[i]))
		}
		if len(labels[i]) != labelDim {
			return nil, fmt.Errorf("inconsistent label dimensions at example %d: expected %d, got %d",
				i, labelDim, len(labels[i]))
		}
		copy(flatInputs[i*inputDim:], inputs[i])
		copy(flatLabels[i*labelDim:], labels[i])
	}

	return &FlatBatch{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
		LabelDim:  labelDim,
	}, nil
}

// ToTensors converts the flat buffers to gomlx tensors.
func (b *FlatBatch) ToTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.InputDim == 0 || b.LabelDim == 0 {
		emptyInputs := make([][]float32, 0)
		emptyLabels := make([][]float32, 0)
		return tensors.FromAnyValue(emptyInputs), tensors.FromAnyValue(emptyLabels), nil
	}
	inputs := make([][]float32, b.BatchSize)
	labels := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		labels[i] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
