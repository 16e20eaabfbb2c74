package model

import (
	"math"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/sequence"
)

// flowVars holds the variables of one edge.
type flowVars struct {
	edge    *energy.Edge
	flow    []lp.Var
	cap     capacity
	bounded bool

	// Set for nonconvex flows only.
	status        []lp.Var
	statusNominal []lp.Var
}

// edgeVars returns the variables of the edge from -> to.
func (m *Model) edgeVars(from, to energy.Node) *flowVars {
	return m.flows[energy.Key{From: from, To: to}]
}

// buildFlows adds the flow block of every edge. It runs before the node
// blocks, which only reference flow variables and capacities.
func (m *Model) buildFlows() {
	implicit := m.implicitInvestments()
	for _, e := range m.es.Edges() {
		m.flowBlock(e, implicit[e.Flow])
		if m.err != nil {
			return
		}
	}
	m.logger.Debug("flows built", "edges", len(m.es.Edges()))
}

// implicitInvestments returns the flow investments implied by storage
// invest relations on flows that declare none. They carry no capital cost
// and share the storage lifetime. The frozen flows are left untouched.
func (m *Model) implicitInvestments() map[*energy.Flow]*energy.Investment {
	out := make(map[*energy.Flow]*energy.Investment)
	for _, n := range m.es.Nodes() {
		s, ok := n.(*energy.GenericStorage)
		if !ok || s.Investment == nil {
			continue
		}
		synth := func() *energy.Investment {
			return &energy.Investment{
				EPCosts:  sequence.Scalar(0),
				Lifetime: s.Investment.Lifetime,
				Age:      s.Investment.Age,
			}
		}
		in, outFlow := s.Inputs[0].Flow, s.Outputs[0].Flow
		if (s.InvestRelationInputCapacity != nil || s.InvestRelationInputOutput != nil) && in.Investment == nil {
			out[in] = synth()
		}
		if (s.InvestRelationOutputCapacity != nil || s.InvestRelationInputOutput != nil) && outFlow.Investment == nil {
			out[outFlow] = synth()
		}
	}
	return out
}

func (m *Model) flowBlock(e *energy.Edge, implicit *energy.Investment) {
	f := e.Flow
	T := m.h.T()
	owner := edgeOwner(e)

	domain := lp.Continuous
	if f.Integer {
		domain = lp.Integer
	}
	fv := &flowVars{edge: e}
	for t := 0; t < T; t++ {
		fv.flow = append(fv.flow, m.newVar(step(owner, "flow", t), domain, 0, math.Inf(1)))
	}
	if m.err != nil {
		return
	}
	m.flows[owner] = fv

	switch {
	case f.Investment != nil:
		fv.cap, fv.bounded = m.investment(owner, f.Investment, false), true
	case implicit != nil:
		fv.cap, fv.bounded = m.investment(owner, implicit, true), true
	case f.NominalCapacity != nil:
		fv.cap, fv.bounded = fixedCapacity(m.fixedOver(*f.NominalCapacity, f.Lifetime, f.Age)), true
	}
	if m.err != nil {
		return
	}

	periods := m.periodsOf()
	minV := perStep(f.Min, T)
	maxV := perStepOr(f.Max, 1, T)
	var fixV []float64
	if f.Fix.IsSet() {
		fixV = perStep(f.Fix, T)
	}

	switch {
	case f.NonConvex != nil:
		m.nonConvexFlow(fv, minV, maxV, fixV)
	case !fv.bounded:
	case !fv.cap.invested():
		for t, v := range fv.flow {
			nom := fv.cap.value(periods[t])
			lo, hi := minV[t]*nom, maxV[t]*nom
			if fixV != nil {
				lo, hi = fixV[t]*nom, fixV[t]*nom
			}
			m.problem.SetBounds(v, lo, hi)
		}
	default:
		for t, v := range fv.flow {
			p := periods[t]
			if fixV != nil {
				m.constrain(conName("fixed", owner, t), lp.V(v, 1), lp.EQ, fv.cap.scaled(p, fixV[t]))
				continue
			}
			m.constrain(conName("max", owner, t), lp.V(v, 1), lp.LE, fv.cap.scaled(p, maxV[t]))
			if minV[t] > 0 {
				m.constrain(conName("min", owner, t), lp.V(v, 1), lp.GE, fv.cap.scaled(p, minV[t]))
			}
		}
	}

	m.fullLoadTime(fv)
	m.gradients(fv, periods)
	m.flowCosts(fv, periods)
}

// fullLoadTime bounds Σ flow·Δt per period relative to the capacity.
func (m *Model) fullLoadTime(fv *flowVars) {
	f := fv.edge.Flow
	if !fv.bounded || (f.FullLoadTimeMax == nil && f.FullLoadTimeMin == nil) {
		return
	}
	owner := edgeOwner(fv.edge)
	for p := 0; p < m.h.NumPeriods(); p++ {
		sum := lp.NewExpr()
		for _, t := range m.h.Steps(p) {
			sum.Add(fv.flow[t], m.h.Increment(t))
		}
		if f.FullLoadTimeMax != nil {
			m.constrain(conName("full_load_time_max", owner, p), sum, lp.LE, fv.cap.scaled(p, *f.FullLoadTimeMax))
		}
		if f.FullLoadTimeMin != nil {
			m.constrain(conName("full_load_time_min", owner, p), sum, lp.GE, fv.cap.scaled(p, *f.FullLoadTimeMin))
		}
	}
}

func (m *Model) gradients(fv *flowVars, periods []int) {
	f := fv.edge.Flow
	owner := edgeOwner(fv.edge)
	T := m.h.T()
	for _, g := range []struct {
		name string
		grad *energy.Gradient
		sign float64
	}{
		{"positive_gradient", f.PositiveGradient, 1},
		{"negative_gradient", f.NegativeGradient, -1},
	} {
		if g.grad == nil {
			continue
		}
		ub := perStep(g.grad.Ub, T)
		costs := perStep(g.grad.Costs, T)
		for t := 0; t < T; t++ {
			p := periods[t]
			hi := math.Inf(1)
			switch {
			case t == 0:
				hi = 0
			case !fv.cap.invested():
				hi = ub[t] * fv.cap.value(p)
			}
			v := m.newVar(step(owner, g.name, t), lp.Continuous, 0, hi)
			if m.err != nil {
				return
			}
			if t == 0 {
				continue
			}
			if fv.cap.invested() {
				m.constrain(conName(g.name+"_limit", owner, t), lp.V(v, 1), lp.LE, fv.cap.scaled(p, ub[t]))
			}
			diff := lp.V(fv.flow[t], g.sign).Add(fv.flow[t-1], -g.sign)
			m.constrain(conName(g.name+"_rule", owner, t), diff, lp.LE, lp.V(v, 1))
			m.objective.Add(v, costs[t]*m.h.Discount(p))
		}
	}
}

// flowCosts adds variable costs per timestep and fixed costs per period on
// a fixed nominal capacity. Investment fixed costs belong to the
// investment.
func (m *Model) flowCosts(fv *flowVars, periods []int) {
	f := fv.edge.Flow
	T := m.h.T()
	if f.VariableCosts.IsSet() {
		vc := perStep(f.VariableCosts, T)
		for t, v := range fv.flow {
			m.objective.Add(v, vc[t]*m.h.Weight(t)*m.h.Discount(periods[t]))
		}
	}
	if f.FixedCosts.IsSet() && fv.bounded && !fv.cap.invested() {
		fc := perPeriod(f.FixedCosts, m.h.NumPeriods())
		for p := range fc {
			m.objective.AddConst(fv.cap.value(p) * fc[p] * m.h.Discount(p))
		}
	}
}

// nonConvexFlow adds the on/off status of a flow and replaces its capacity
// bounds by bounds on status_nominal = status·capacity.
func (m *Model) nonConvexFlow(fv *flowVars, minV, maxV, fixV []float64) {
	f := fv.edge.Flow
	nc := f.NonConvex
	owner := edgeOwner(fv.edge)
	T := m.h.T()
	periods := m.periodsOf()

	bigM := fv.cap.bound
	if fv.cap.invested() && math.IsInf(bigM, 1) {
		m.fail(errs.Config(owner.String(), "nonconvex flow with investment requires a finite investment maximum"))
		return
	}

	initial := float64(nc.InitialStatus)
	hold := nc.MaxUpDown()
	for t := 0; t < T; t++ {
		lo, hi := 0.0, 1.0
		if t < hold {
			lo, hi = initial, initial
		}
		st := m.newVar(step(owner, "status", t), lp.Binary, lo, hi)
		sn := m.newVar(step(owner, "status_nominal", t), lp.Continuous, 0, math.Inf(1))
		if m.err != nil {
			return
		}
		fv.status = append(fv.status, st)
		fv.statusNominal = append(fv.statusNominal, sn)

		p := periods[t]
		if !fv.cap.invested() {
			m.constrain(conName("status_nominal", owner, t), lp.V(sn, 1), lp.EQ, lp.V(st, fv.cap.value(p)))
		} else {
			total := fv.cap.total[p]
			m.constrain(conName("status_nominal_on", owner, t), lp.V(sn, 1), lp.LE, lp.V(st, bigM))
			m.constrain(conName("status_nominal_total", owner, t), lp.V(sn, 1), lp.LE, lp.V(total, 1))
			m.constrain(conName("status_nominal_off", owner, t),
				lp.V(sn, 1).Add(total, -1).Add(st, -bigM), lp.GE, lp.Const(-bigM))
		}

		flow := fv.flow[t]
		if fixV != nil {
			m.constrain(conName("fixed", owner, t), lp.V(flow, 1), lp.EQ, lp.V(sn, fixV[t]))
			continue
		}
		m.constrain(conName("max", owner, t), lp.V(flow, 1), lp.LE, lp.V(sn, maxV[t]))
		if minV[t] > 0 {
			m.constrain(conName("min", owner, t), lp.V(flow, 1), lp.GE, lp.V(sn, minV[t]))
		}
	}

	var startup, shutdown []lp.Var
	if nc.NeedsStartup() {
		startup = m.switching(fv, "startup", initial, 1)
		if nc.MaximumStartups != nil {
			m.constrain(conName("max_startups", owner), lp.Sum(startup...), lp.LE, lp.Const(float64(*nc.MaximumStartups)))
		}
	}
	if nc.NeedsShutdown() {
		shutdown = m.switching(fv, "shutdown", initial, -1)
		if nc.MaximumShutdowns != nil {
			m.constrain(conName("max_shutdowns", owner), lp.Sum(shutdown...), lp.LE, lp.Const(float64(*nc.MaximumShutdowns)))
		}
	}
	m.minUpDown(fv, hold)
	if m.err != nil {
		return
	}

	activity := perStep(nc.ActivityCosts, T)
	inactivity := perStep(nc.InactivityCosts, T)
	startupCosts := perStep(nc.StartupCosts, T)
	shutdownCosts := perStep(nc.ShutdownCosts, T)
	for t, st := range fv.status {
		d := m.h.Discount(periods[t])
		w := m.h.Weight(t) * d
		m.objective.Add(st, (activity[t]-inactivity[t])*w)
		m.objective.AddConst(inactivity[t] * w)
		if startup != nil {
			m.objective.Add(startup[t], startupCosts[t]*d)
		}
		if shutdown != nil {
			m.objective.Add(shutdown[t], shutdownCosts[t]*d)
		}
	}
}

// switching adds startup (sign 1) or shutdown (sign -1) indicators with
// x[t] ≥ sign·(status[t] − status[t−1]). The indicators are continuous in
// [0, 1]; status being binary makes them integral at any optimum.
func (m *Model) switching(fv *flowVars, name string, initial, sign float64) []lp.Var {
	owner := edgeOwner(fv.edge)
	out := make([]lp.Var, len(fv.status))
	for t, st := range fv.status {
		x := m.newVar(step(owner, name, t), lp.Continuous, 0, 1)
		if m.err != nil {
			return nil
		}
		out[t] = x
		lhs := lp.V(x, 1).Add(st, -sign)
		if t == 0 {
			m.constrain(conName(name, owner, t), lhs, lp.GE, lp.Const(-sign*initial))
			continue
		}
		m.constrain(conName(name, owner, t), lhs.Add(fv.status[t-1], sign), lp.GE, lp.Const(0))
	}
	return out
}

// minUpDown enforces minimum up and down times from the first free status
// on. Windows reaching past the horizon end are truncated: a unit switched
// within MinimumUptime steps of the end only has to stay on until the last
// step, and likewise for MinimumDowntime.
func (m *Model) minUpDown(fv *flowVars, hold int) {
	nc := fv.edge.Flow.NonConvex
	owner := edgeOwner(fv.edge)
	T := len(fv.status)
	st := fv.status
	for t := max(hold, 1); t < T; t++ {
		if up := min(nc.MinimumUptime, T-t); nc.MinimumUptime > 0 {
			lhs := lp.V(st[t], float64(up)).Add(st[t-1], -float64(up))
			for u := 0; u < up; u++ {
				lhs.Add(st[t+u], -1)
			}
			m.constrain(conName("min_uptime", owner, t), lhs, lp.LE, lp.Const(0))
		}
		if down := min(nc.MinimumDowntime, T-t); nc.MinimumDowntime > 0 {
			lhs := lp.V(st[t-1], float64(down)).Add(st[t], -float64(down))
			for u := 0; u < down; u++ {
				lhs.Add(st[t+u], 1)
			}
			m.constrain(conName("min_downtime", owner, t), lhs, lp.LE, lp.Const(float64(down)))
		}
	}
}
