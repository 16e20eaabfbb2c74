package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/horizon"
	"github.com/roach88/enmod/internal/lp"
)

// Model is a built optimization problem together with the mapping from
// problem variables back to the energy system.
type Model struct {
	es        *energy.EnergySystem
	h         *horizon.Horizon
	problem   *lp.Problem
	reg       *registry
	objective *lp.Expr

	flows       map[energy.Key]*flowVars
	balances    map[*energy.Bus][]int
	buses       []*energy.Bus
	investments []InvestmentRef

	logger *slog.Logger
	sos2   bool

	// err is the first error raised while building. Once set, the
	// builder methods become no-ops.
	err error
}

// Option configures a model build.
type Option func(*Model)

// WithLogger sets the logger for build and solve messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBackend tunes the build to the capabilities of the backend that will
// solve the model. Piecewise converters with SOS2 encoding use native SOS2
// sets only when the backend supports them.
func WithBackend(b lp.Backend) Option {
	return func(m *Model) {
		m.sos2 = b != nil && b.SupportsSOS2()
	}
}

// InvestmentRef records one investment decision of the model.
type InvestmentRef struct {
	Owner      energy.Key
	Investment *energy.Investment
	// Implicit is true for flow investments created by storage invest
	// relations rather than declared by the user.
	Implicit bool
	Invest   []lp.Var
	Total    []lp.Var
	Status   []lp.Var
}

// Build validates and freezes es and compiles it into a problem.
func Build(es *energy.EnergySystem, opts ...Option) (*Model, error) {
	start := time.Now()
	if err := es.Freeze(); err != nil {
		return nil, err
	}
	m := &Model{
		es:        es,
		h:         es.Horizon,
		problem:   lp.NewProblem(),
		reg:       newRegistry(),
		objective: lp.NewExpr(),
		flows:     make(map[energy.Key]*flowVars),
		balances:  make(map[*energy.Bus][]int),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	groups := make(map[energy.Kind][]energy.Node)
	for _, n := range es.Nodes() {
		groups[n.Kind()] = append(groups[n.Kind()], n)
	}

	m.buildFlows()
	if m.err != nil {
		return nil, m.err
	}
	for _, kind := range blockOrder {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		blocks[kind](m, group)
		if m.err != nil {
			return nil, m.err
		}
		m.logger.Debug("block built", "kind", kind, "nodes", len(group))
	}
	m.problem.SetObjective(m.objective)
	m.logger.Debug("investments added", "count", len(m.investments))

	m.logger.Info("model built",
		"nodes", len(es.Nodes()),
		"edges", len(es.Edges()),
		"timesteps", m.h.T(),
		"periods", m.h.NumPeriods(),
		"stats", m.problem.Stats().String(),
		"elapsed", time.Since(start))
	return m, nil
}

// blockFunc adds the variables, constraints and objective terms of one
// node group.
type blockFunc func(m *Model, group []energy.Node)

// blockOrder fixes the order in which node groups are compiled.
var blockOrder = []energy.Kind{
	energy.KindBus,
	energy.KindConverter,
	energy.KindStorage,
	energy.KindOffsetConverter,
	energy.KindCHP,
	energy.KindPiecewiseConverter,
	energy.KindSinkDSM,
	energy.KindSource,
	energy.KindSink,
}

var blocks = map[energy.Kind]blockFunc{
	energy.KindBus:                busBlock,
	energy.KindConverter:          converterBlock,
	energy.KindStorage:            storageBlock,
	energy.KindOffsetConverter:    offsetConverterBlock,
	energy.KindCHP:                chpBlock,
	energy.KindPiecewiseConverter: piecewiseBlock,
	energy.KindSinkDSM:            sinkDSMBlock,
	// Sources and sinks are fully described by their flows.
	energy.KindSource: func(*Model, []energy.Node) {},
	energy.KindSink:   func(*Model, []energy.Node) {},
}

// ============================================================================
// Builder primitives
// ============================================================================

func (m *Model) fail(err error) {
	if m.err == nil && err != nil {
		m.err = err
	}
}

// newVar adds and registers a variable. It returns -1 after a failure.
func (m *Model) newVar(ref VarRef, d lp.Domain, lo, hi float64) lp.Var {
	if m.err != nil {
		return -1
	}
	v, err := m.problem.AddVariable(ref.Label(), d, lo, hi)
	if err != nil {
		m.fail(err)
		return -1
	}
	m.reg.add(v, ref)
	return v
}

// constrain adds lhs (sense) rhs. It returns -1 after a failure.
func (m *Model) constrain(name string, lhs *lp.Expr, s lp.Sense, rhs *lp.Expr) int {
	if m.err != nil {
		return -1
	}
	i, err := m.problem.AddConstraint(name, lhs, s, rhs)
	if err != nil {
		m.fail(err)
		return -1
	}
	return i
}

func (m *Model) addCost(e *lp.Expr, scale float64) {
	if scale == 0 {
		return
	}
	m.objective.AddExpr(e, scale)
}

// ============================================================================
// Accessors
// ============================================================================

// Built reports whether m came out of a successful Build.
func (m *Model) Built() bool { return m != nil && m.problem != nil }

// Logger returns the logger the model reports to.
func (m *Model) Logger() *slog.Logger { return m.logger }

// System returns the energy system the model was built from.
func (m *Model) System() *energy.EnergySystem { return m.es }

// Horizon returns the horizon of the model.
func (m *Model) Horizon() *horizon.Horizon { return m.h }

// Problem returns the compiled problem.
func (m *Model) Problem() *lp.Problem { return m.problem }

// Objective returns the objective expression.
func (m *Model) Objective() *lp.Expr { return m.problem.Objective() }

// Ref returns the reference of variable v.
func (m *Model) Ref(v lp.Var) VarRef { return m.reg.refs[v] }

// Refs returns the references of all variables, indexed by lp.Var.
func (m *Model) Refs() []VarRef { return m.reg.refs }

// Var looks up a variable by reference.
func (m *Model) Var(ref VarRef) (lp.Var, bool) { return m.reg.lookup(ref) }

// FlowVar returns the flow variable of edge e at timestep t.
func (m *Model) FlowVar(e *energy.Edge, t int) (lp.Var, bool) {
	fv, ok := m.flows[e.Key()]
	if !ok || t < 0 || t >= len(fv.flow) {
		return -1, false
	}
	return fv.flow[t], true
}

// StatusVar returns the on/off status of a nonconvex edge at timestep t.
func (m *Model) StatusVar(e *energy.Edge, t int) (lp.Var, bool) {
	fv, ok := m.flows[e.Key()]
	if !ok || fv.status == nil || t < 0 || t >= len(fv.status) {
		return -1, false
	}
	return fv.status[t], true
}

// BalancedBuses returns the buses with balance constraints in build order.
func (m *Model) BalancedBuses() []*energy.Bus { return m.buses }

// BusBalance returns the balance constraint indices of b per timestep.
func (m *Model) BusBalance(b *energy.Bus) []int { return m.balances[b] }

// Investments returns every investment decision of the model.
func (m *Model) Investments() []InvestmentRef { return m.investments }

// AddVariable registers an additional variable after the build.
func (m *Model) AddVariable(ref VarRef, d lp.Domain, lo, hi float64) (lp.Var, error) {
	if _, dup := m.reg.lookup(ref); dup {
		return -1, errs.Config(ref.Owner.String(), "variable %s already exists", ref.Label())
	}
	v, err := m.problem.AddVariable(ref.Label(), d, lo, hi)
	if err != nil {
		return -1, err
	}
	m.reg.add(v, ref)
	return v, nil
}

// AddConstraint adds a constraint after the build.
func (m *Model) AddConstraint(name string, lhs *lp.Expr, s lp.Sense, rhs *lp.Expr) (int, error) {
	return m.problem.AddConstraint(name, lhs, s, rhs)
}

// AddObjective adds e to the objective.
func (m *Model) AddObjective(e *lp.Expr) {
	m.objective.AddExpr(e, 1)
	m.problem.SetObjective(m.objective)
}

// WriteLP writes the problem in LP text format.
func (m *Model) WriteLP(w io.Writer) error { return lp.WriteLP(w, m.problem) }

// Solve runs backend on the model. Infeasibility is reported as an
// InfeasibleModel error; every other non-solution outcome as SolverError
// with the backend status preserved.
func (m *Model) Solve(ctx context.Context, backend lp.Backend, opts lp.Options) (*lp.Solution, error) {
	if backend == nil {
		return nil, errs.Dependency("no solver backend configured")
	}
	if opts.Duals && !backend.SupportsDuals() {
		opts.Duals = false
	}
	start := time.Now()
	sol, err := backend.Solve(ctx, m.problem, opts)
	if err != nil {
		if errs.IsSolverError(err) {
			return nil, err
		}
		return nil, errs.Solver(backend.Name(), "error", err)
	}
	m.logger.Info("model solved",
		"backend", backend.Name(),
		"status", sol.Status,
		"objective", sol.Objective,
		"iterations", sol.Iterations,
		"nodes", sol.Nodes,
		"elapsed", time.Since(start))

	switch sol.Status {
	case lp.StatusOptimal, lp.StatusFeasible:
		if sol.Backend == "" {
			sol.Backend = backend.Name()
		}
		return sol, nil
	case lp.StatusInfeasible:
		return nil, errs.Infeasible(backend.Name(), string(sol.Status))
	case lp.StatusAborted:
		return nil, errs.Solver(backend.Name(), string(sol.Status), ctx.Err())
	default:
		return nil, errs.Solver(backend.Name(), string(sol.Status), fmt.Errorf("no solution available"))
	}
}
