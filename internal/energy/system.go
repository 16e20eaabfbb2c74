package energy

import (
	"log/slog"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/horizon"
)

// Key identifies a result entry: an edge (From, To) or a node (Node, nil).
type Key struct {
	From Node
	To   Node
}

// NodeKey returns the key of node-indexed values of n.
func NodeKey(n Node) Key { return Key{From: n} }

// String renders the key with labels.
func (k Key) String() string {
	from, to := "None", "None"
	if k.From != nil {
		from = k.From.NodeLabel()
	}
	if k.To != nil {
		to = k.To.NodeLabel()
	}
	return "(" + from + ", " + to + ")"
}

// Edge is a registered flow between two nodes.
type Edge struct {
	From Node
	To   Node
	Flow *Flow
}

// Key returns the result key of the edge.
func (e *Edge) Key() Key { return Key{From: e.From, To: e.To} }

// EnergySystem is the registry of nodes and edges of one model.
type EnergySystem struct {
	Horizon *horizon.Horizon

	nodes   []Node
	byLabel map[string]Node
	edges   []*Edge
	byKey   map[Key]*Edge
	frozen  bool
}

// New creates an empty energy system over h.
func New(h *horizon.Horizon) *EnergySystem {
	return &EnergySystem{
		Horizon: h,
		byLabel: make(map[string]Node),
		byKey:   make(map[Key]*Edge),
	}
}

// Add registers nodes and the edges their ports declare. Labels are
// compared after Unicode NFC normalization. A failing call leaves the
// system and every flow it touched as they were.
func (es *EnergySystem) Add(nodes ...Node) error {
	if es.frozen {
		return errs.Config("energy_system", "cannot add nodes after the model was built")
	}
	nNodes, nEdges := len(es.nodes), len(es.edges)
	if err := es.add(nodes); err != nil {
		es.rollback(nNodes, nEdges)
		return err
	}
	return nil
}

func (es *EnergySystem) add(nodes []Node) error {
	for _, n := range nodes {
		if n == nil {
			return errs.Config("energy_system", "nil node")
		}
		label := norm.NFC.String(n.NodeLabel())
		if label == "" {
			return errs.Config("energy_system", "node of kind %s has an empty label", n.Kind())
		}
		if _, dup := es.byLabel[label]; dup {
			return errs.DuplicateLabel(label)
		}
		for _, p := range n.InPorts() {
			if err := es.bind(p, p.Node, n); err != nil {
				return err
			}
		}
		for _, p := range n.OutPorts() {
			if err := es.bind(p, n, p.Node); err != nil {
				return err
			}
		}
		es.byLabel[label] = n
		es.nodes = append(es.nodes, n)
	}
	return nil
}

// rollback drops the nodes and edges registered after the given counts and
// unbinds their flows.
func (es *EnergySystem) rollback(nNodes, nEdges int) {
	for _, e := range es.edges[nEdges:] {
		e.Flow.from, e.Flow.to = nil, nil
		delete(es.byKey, e.Key())
	}
	es.edges = es.edges[:nEdges]
	for _, n := range es.nodes[nNodes:] {
		delete(es.byLabel, norm.NFC.String(n.NodeLabel()))
	}
	es.nodes = es.nodes[:nNodes]
}

func (es *EnergySystem) bind(p Port, from, to Node) error {
	owner := to
	if from != nil && from != p.Node {
		owner = from
	}
	if p.Node == nil {
		return errs.Config(owner.NodeLabel(), "port without a node")
	}
	if p.Flow == nil {
		return errs.Config(owner.NodeLabel(), "port to %s has no flow", p.Node.NodeLabel())
	}
	if p.Flow.from != nil {
		if p.Flow.from == from && p.Flow.to == to {
			// Both endpoints declared the same flow object.
			return nil
		}
		return errs.Config(owner.NodeLabel(), "flow already bound to edge %s", Key{From: p.Flow.from, To: p.Flow.to})
	}
	key := Key{From: from, To: to}
	if _, dup := es.byKey[key]; dup {
		return errs.Config(owner.NodeLabel(), "parallel edge %s", key)
	}
	p.Flow.from, p.Flow.to = from, to
	e := &Edge{From: from, To: to, Flow: p.Flow}
	es.edges = append(es.edges, e)
	es.byKey[key] = e
	return nil
}

// Nodes returns the registered nodes in registration order.
func (es *EnergySystem) Nodes() []Node { return es.nodes }

// Edges returns the registered edges in registration order.
func (es *EnergySystem) Edges() []*Edge { return es.edges }

// Node looks up a node by label.
func (es *EnergySystem) Node(label string) (Node, bool) {
	n, ok := es.byLabel[norm.NFC.String(label)]
	return n, ok
}

// Edge looks up the edge between two nodes.
func (es *EnergySystem) Edge(from, to Node) (*Edge, bool) {
	e, ok := es.byKey[Key{From: from, To: to}]
	return e, ok
}

// InEdges returns the edges ending at n.
func (es *EnergySystem) InEdges(n Node) []*Edge {
	var out []*Edge
	for _, e := range es.edges {
		if e.To == n {
			out = append(out, e)
		}
	}
	return out
}

// OutEdges returns the edges starting at n.
func (es *EnergySystem) OutEdges(n Node) []*Edge {
	var out []*Edge
	for _, e := range es.edges {
		if e.From == n {
			out = append(out, e)
		}
	}
	return out
}

// Frozen reports whether the system was frozen by a model build.
func (es *EnergySystem) Frozen() bool { return es.frozen }

// Freeze validates the system and forbids further changes. Freezing a
// frozen system is a no-op.
func (es *EnergySystem) Freeze() error {
	if es.frozen {
		return nil
	}
	if es.Horizon == nil {
		return errs.MissingParameter("energy_system", "horizon")
	}
	if err := es.Horizon.Validate(); err != nil {
		return err
	}
	if err := es.validate(); err != nil {
		return err
	}
	es.frozen = true
	slog.Debug("energy system frozen", "nodes", len(es.nodes), "edges", len(es.edges), "timesteps", es.Horizon.T())
	return nil
}
