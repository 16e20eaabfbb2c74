// Package results turns a solution back into values keyed by the entities
// of the energy system.
//
// Every registered variable lands in the entry of its owner key: (from,
// to) for flow variables and (node, nil) for node variables. Variables
// indexed by timestep become sequences, those indexed by period become
// period vectors and the rest scalars. A variable with an extra index,
// such as a DLR delay, is stored as <name>_<extra>.
package results

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
)

// DualsName is the sequence holding bus balance duals.
const DualsName = "duals"

// Entry holds the values of one key.
type Entry struct {
	Scalars   map[string]float64
	Periods   map[string][]float64
	Sequences map[string][]float64
}

func newEntry() *Entry {
	return &Entry{
		Scalars:   make(map[string]float64),
		Periods:   make(map[string][]float64),
		Sequences: make(map[string][]float64),
	}
}

// Meta describes a solved run.
type Meta struct {
	RunID     string
	Objective float64
	Status    lp.Status
	Solver    string
	Stats     lp.Stats
	SolvedAt  time.Time
}

// Results is the labeled solution of a model.
type Results struct {
	// TimeIndex labels the timesteps, with timestamps when the horizon has
	// an index.
	TimeIndex []string
	Entries   map[energy.Key]*Entry
	Objective float64
	Status    lp.Status
	Meta      Meta
}

// Option configures an extraction.
type Option func(*extractor)

type extractor struct {
	ids IDGenerator
	now func() time.Time
}

// WithIDGenerator sets the generator for the run id.
func WithIDGenerator(g IDGenerator) Option {
	return func(x *extractor) { x.ids = g }
}

// WithClock sets the time source for Meta.SolvedAt.
func WithClock(now func() time.Time) Option {
	return func(x *extractor) { x.now = now }
}

// Extract reads every registered variable of m from sol. A variable
// without a value fails with RESULT_INDEX_ERROR naming its tuple. Bus
// duals are attached when sol carries duals.
func Extract(m *model.Model, sol *lp.Solution, opts ...Option) (*Results, error) {
	if !m.Built() || sol == nil {
		return nil, errs.Dependency("results need a built model and a solution")
	}
	x := &extractor{ids: UUIDv7Generator{}, now: time.Now}
	for _, opt := range opts {
		opt(x)
	}

	h := m.Horizon()
	T, P := h.T(), h.NumPeriods()
	r := &Results{
		TimeIndex: make([]string, T),
		Entries:   make(map[energy.Key]*Entry),
		Objective: sol.Objective,
		Status:    sol.Status,
	}
	for t := range r.TimeIndex {
		r.TimeIndex[t] = h.Label(t)
	}

	for i, ref := range m.Refs() {
		v := lp.Var(i)
		val, ok := sol.Value(v)
		if !ok || math.IsNaN(val) {
			return nil, errs.ResultIndex(ref.Owner.String(), ref.Label())
		}
		e := r.entry(ref.Owner)
		name := ref.Name
		if ref.Extra != "" {
			name += "_" + ref.Extra
		}
		switch {
		case ref.Step >= 0:
			seq, ok := e.Sequences[name]
			if !ok {
				seq = make([]float64, T)
				e.Sequences[name] = seq
			}
			seq[ref.Step] = val
		case ref.Period >= 0:
			per, ok := e.Periods[name]
			if !ok {
				per = make([]float64, P)
				e.Periods[name] = per
			}
			per[ref.Period] = val
		default:
			e.Scalars[name] = val
		}
	}

	if sol.Duals != nil {
		for _, b := range m.BalancedBuses() {
			rows := m.BusBalance(b)
			duals := make([]float64, len(rows))
			for t, row := range rows {
				d, ok := sol.Dual(row)
				if !ok {
					return nil, errs.ResultIndex(energy.NodeKey(b).String(), DualsName)
				}
				duals[t] = d
			}
			r.entry(energy.NodeKey(b)).Sequences[DualsName] = duals
		}
	}

	r.Meta = Meta{
		RunID:     x.ids.Generate(),
		Objective: sol.Objective,
		Status:    sol.Status,
		Solver:    sol.Backend,
		Stats:     m.Problem().Stats(),
		SolvedAt:  x.now().UTC(),
	}
	m.Logger().Debug("results extracted", "entries", len(r.Entries), "run_id", r.Meta.RunID)
	return r, nil
}

func (r *Results) entry(k energy.Key) *Entry {
	e, ok := r.Entries[k]
	if !ok {
		e = newEntry()
		r.Entries[k] = e
	}
	return e
}

// Node returns the entries whose key involves the node labeled label.
func (r *Results) Node(label string) map[energy.Key]*Entry {
	out := make(map[energy.Key]*Entry)
	for k, e := range r.Entries {
		if (k.From != nil && k.From.NodeLabel() == label) || (k.To != nil && k.To.NodeLabel() == label) {
			out[k] = e
		}
	}
	return out
}

// Sequence returns the time series name of key k.
func (r *Results) Sequence(k energy.Key, name string) ([]float64, error) {
	if e, ok := r.Entries[k]; ok {
		if seq, ok := e.Sequences[name]; ok {
			return seq, nil
		}
	}
	return nil, errs.ResultIndex(k.String(), name)
}

// Flow returns the flow sequence of the edge from -> to.
func (r *Results) Flow(from, to energy.Node) ([]float64, error) {
	return r.Sequence(energy.Key{From: from, To: to}, "flow")
}

// Keys returns the entry keys ordered by their rendering.
func (r *Results) Keys() []energy.Key {
	keys := make([]energy.Key, 0, len(r.Entries))
	for k := range r.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Summary condenses a time series.
type Summary struct {
	Sum  float64 `json:"sum"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summarize returns the summary of seq. An empty series summarizes to zero.
func Summarize(seq []float64) Summary {
	if len(seq) == 0 {
		return Summary{}
	}
	return Summary{
		Sum:  floats.Sum(seq),
		Mean: stat.Mean(seq, nil),
		Min:  floats.Min(seq),
		Max:  floats.Max(seq),
	}
}
