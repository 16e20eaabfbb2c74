package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/results"
)

// SchemaVersion is the version of the snapshot document layout.
const SchemaVersion = "1"

// NodeRecord names one node of the system.
type NodeRecord struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// EdgeRecord names one flow of the system.
type EdgeRecord struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EntryRecord is a results entry keyed by labels. To is empty for node
// entries.
type EntryRecord struct {
	From      string               `json:"from"`
	To        string               `json:"to,omitempty"`
	Scalars   map[string]float64   `json:"scalars,omitempty"`
	Periods   map[string][]float64 `json:"periods,omitempty"`
	Sequences map[string][]float64 `json:"sequences,omitempty"`
}

// Snapshot is the persisted form of a solved run.
type Snapshot struct {
	Version   string    `json:"version"`
	RunID     string    `json:"run_id"`
	SolvedAt  time.Time `json:"solved_at"`
	Solver    string    `json:"solver"`
	Status    string    `json:"status"`
	Objective float64   `json:"objective"`
	TimeIndex []string  `json:"time_index"`

	Nodes []NodeRecord `json:"nodes"`
	Edges []EdgeRecord `json:"edges"`

	// Definition is the declarative model the system was loaded from, if
	// any. It is stored verbatim.
	Definition map[string]any `json:"definition,omitempty"`

	Entries []EntryRecord `json:"entries"`
}

// Option configures New.
type Option func(*Snapshot)

// WithDefinition attaches the model definition document.
func WithDefinition(def map[string]any) Option {
	return func(s *Snapshot) { s.Definition = def }
}

// New captures es and its results r.
func New(es *energy.EnergySystem, r *results.Results, opts ...Option) (*Snapshot, error) {
	if es == nil || r == nil {
		return nil, errs.Dependency("a snapshot needs an energy system and its results")
	}
	s := &Snapshot{
		Version:   SchemaVersion,
		RunID:     r.Meta.RunID,
		SolvedAt:  r.Meta.SolvedAt,
		Solver:    r.Meta.Solver,
		Status:    string(r.Status),
		Objective: r.Objective,
		TimeIndex: append([]string(nil), r.TimeIndex...),
		Nodes:     make([]NodeRecord, 0, len(es.Nodes())),
		Edges:     make([]EdgeRecord, 0, len(es.Edges())),
		Entries:   make([]EntryRecord, 0, len(r.Entries)),
	}
	for _, n := range es.Nodes() {
		s.Nodes = append(s.Nodes, NodeRecord{Label: n.NodeLabel(), Kind: string(n.Kind())})
	}
	for _, e := range es.Edges() {
		s.Edges = append(s.Edges, EdgeRecord{From: e.From.NodeLabel(), To: e.To.NodeLabel()})
	}
	for _, k := range r.Keys() {
		e := r.Entries[k]
		rec := EntryRecord{From: label(k.From), To: label(k.To)}
		if len(e.Scalars) > 0 {
			rec.Scalars = e.Scalars
		}
		if len(e.Periods) > 0 {
			rec.Periods = e.Periods
		}
		if len(e.Sequences) > 0 {
			rec.Sequences = e.Sequences
		}
		s.Entries = append(s.Entries, rec)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func label(n energy.Node) string {
	if n == nil {
		return ""
	}
	return n.NodeLabel()
}

// Encode renders s as canonical JSON.
func Encode(s *Snapshot) ([]byte, error) {
	tree, err := toTree(s)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(tree)
}

// Decode parses an encoded snapshot. Unknown fields and unknown schema
// versions are rejected.
func Decode(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != SchemaVersion {
		return nil, errs.Config("snapshot", "unsupported snapshot version %q", s.Version)
	}
	return &s, nil
}

// toTree converts s into the generic JSON tree MarshalCanonical accepts.
func toTree(s *Snapshot) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return tree, nil
}

// Restore rebuilds results keyed by the nodes of es. Every label in s
// must name a node of es and the time index must match its horizon.
func Restore(s *Snapshot, es *energy.EnergySystem) (*results.Results, error) {
	if s == nil || es == nil {
		return nil, errs.Dependency("restoring needs a snapshot and an energy system")
	}
	if es.Horizon != nil && es.Horizon.T() != len(s.TimeIndex) {
		return nil, errs.BadSequenceLength(len(s.TimeIndex), es.Horizon.T())
	}
	lookup := func(l string) (energy.Node, error) {
		if l == "" {
			return nil, nil
		}
		n, ok := es.Node(l)
		if !ok {
			return nil, errs.Config(l, "snapshot names node %q which is not part of the system", l)
		}
		return n, nil
	}

	r := &results.Results{
		TimeIndex: append([]string(nil), s.TimeIndex...),
		Entries:   make(map[energy.Key]*results.Entry, len(s.Entries)),
		Objective: s.Objective,
		Status:    lp.Status(s.Status),
		Meta: results.Meta{
			RunID:     s.RunID,
			Objective: s.Objective,
			Status:    lp.Status(s.Status),
			Solver:    s.Solver,
			SolvedAt:  s.SolvedAt,
		},
	}
	for _, rec := range s.Entries {
		from, err := lookup(rec.From)
		if err != nil {
			return nil, err
		}
		to, err := lookup(rec.To)
		if err != nil {
			return nil, err
		}
		r.Entries[energy.Key{From: from, To: to}] = &results.Entry{
			Scalars:   orEmpty(rec.Scalars),
			Periods:   orEmpty(rec.Periods),
			Sequences: orEmpty(rec.Sequences),
		}
	}
	return r, nil
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return make(map[string]V)
	}
	return m
}
