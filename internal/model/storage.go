package model

import (
	"math"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
)

func storageBlock(m *Model, group []energy.Node) {
	for _, n := range group {
		m.storage(n.(*energy.GenericStorage))
		if m.err != nil {
			return
		}
	}
}

// storage adds the content variables, the loss dynamics and the invest
// relations of one storage. In multi-period models every period starts
// from its own init_content.
func (m *Model) storage(s *energy.GenericStorage) {
	h := m.h
	T := h.T()
	multi := h.MultiPeriod()
	owner := energy.NodeKey(s)

	var capE capacity
	if s.Investment != nil {
		capE = m.investment(owner, s.Investment, false)
	} else {
		capE = fixedCapacity(m.fixedOver(*s.NominalCapacity, s.Lifetime, s.Age))
	}
	if m.err != nil {
		return
	}

	in := m.edgeVars(s.Inputs[0].Node, s)
	out := m.edgeVars(s, s.Outputs[0].Node)
	beta := perStep(s.LossRate, T)
	gamma := perStep(s.FixedLossesRelative, T)
	delta := perStep(s.FixedLossesAbsolute, T)
	etaIn := perStepOr(s.InflowConversionFactor, 1, T)
	etaOut := perStepOr(s.OutflowConversionFactor, 1, T)
	minL := perStep(s.MinStorageLevel, T)
	maxL := perStepOr(s.MaxStorageLevel, 1, T)
	periods := m.periodsOf()

	soc := make([]lp.Var, T)
	for t := 0; t < T; t++ {
		p := periods[t]
		lo, hi := 0.0, math.Inf(1)
		if !capE.invested() {
			lo, hi = minL[t]*capE.value(p), maxL[t]*capE.value(p)
		}
		soc[t] = m.newVar(step(owner, "storage_content", t), lp.Continuous, lo, hi)
		if m.err != nil {
			return
		}
		if capE.invested() {
			m.constrain(conName("max_storage_level", owner, t), lp.V(soc[t], 1), lp.LE, capE.scaled(p, maxL[t]))
			if minL[t] > 0 {
				m.constrain(conName("min_storage_level", owner, t), lp.V(soc[t], 1), lp.GE, capE.scaled(p, minL[t]))
			}
		}
	}

	nInit := 1
	if multi {
		nInit = h.NumPeriods()
	}
	initial := make([]lp.Var, nInit)
	for p := range initial {
		ref := scalar(owner, "init_content")
		if multi {
			ref = period(owner, "init_content", p)
		}
		switch {
		case !capE.invested() && s.InitialStorageLevel != nil:
			v := *s.InitialStorageLevel * capE.value(p)
			initial[p] = m.newVar(ref, lp.Continuous, v, v)
		case !capE.invested():
			initial[p] = m.newVar(ref, lp.Continuous, 0, capE.value(p))
		default:
			initial[p] = m.newVar(ref, lp.Continuous, 0, math.Inf(1))
			if s.InitialStorageLevel != nil {
				m.constrain(conName("init_content_fix", owner, p), lp.V(initial[p], 1), lp.EQ, capE.scaled(p, *s.InitialStorageLevel))
			} else {
				m.constrain(conName("init_content_max", owner, p), lp.V(initial[p], 1), lp.LE, capE.at(p))
			}
		}
	}
	if m.err != nil {
		return
	}
	initOf := func(p int) lp.Var {
		if multi {
			return initial[p]
		}
		return initial[0]
	}

	for t := 0; t < T; t++ {
		p := periods[t]
		dt := h.Increment(t)
		prev := initOf(p)
		if t > 0 && !(multi && t == h.Periods[p].Start) {
			prev = soc[t-1]
		}
		lhs := lp.V(soc[t], 1).
			Add(prev, -math.Pow(1-beta[t], dt)).
			Add(in.flow[t], -etaIn[t]*dt).
			Add(out.flow[t], dt/etaOut[t]).
			AddExpr(capE.at(p), gamma[t]*dt)
		m.constrain(conName("balance", owner, t), lhs, lp.EQ, lp.Const(-delta[t]*dt))
	}

	if s.Balanced {
		for p := 0; p < nInit; p++ {
			steps := h.Steps(p)
			last := steps[len(steps)-1]
			m.constrain(conName("balanced", owner, p), lp.V(soc[last], 1), lp.EQ, lp.V(initOf(p), 1))
		}
	}

	m.investRelations(s, capE, in, out)

	if s.StorageCosts.IsSet() {
		sc := perStep(s.StorageCosts, T)
		for t, v := range soc {
			m.objective.Add(v, sc[t]*h.Weight(t)*h.Discount(periods[t]))
		}
	}
	if s.FixedCosts.IsSet() && !capE.invested() {
		fc := perPeriod(s.FixedCosts, h.NumPeriods())
		for p := range fc {
			m.objective.AddConst(capE.value(p) * fc[p] * h.Discount(p))
		}
	}
}

// investRelations couples the invested flow capacities to the invested
// storage capacity per period.
func (m *Model) investRelations(s *energy.GenericStorage, capE capacity, in, out *flowVars) {
	if s.Investment == nil {
		return
	}
	owner := energy.NodeKey(s)
	needs := func(fv *flowVars) bool {
		if !fv.cap.invested() {
			m.fail(errs.Config(s.Label, "invest relation on flow %s without investment", edgeOwner(fv.edge)))
			return false
		}
		return true
	}
	for p := 0; p < m.h.NumPeriods(); p++ {
		if r := s.InvestRelationInputCapacity; r != nil && needs(in) {
			m.constrain(conName("invest_relation_input_capacity", owner, p), in.cap.at(p), lp.EQ, capE.scaled(p, *r))
		}
		if r := s.InvestRelationOutputCapacity; r != nil && needs(out) {
			m.constrain(conName("invest_relation_output_capacity", owner, p), out.cap.at(p), lp.EQ, capE.scaled(p, *r))
		}
		if r := s.InvestRelationInputOutput; r != nil && needs(in) && needs(out) {
			m.constrain(conName("invest_relation_input_output", owner, p), in.cap.at(p), lp.EQ, out.cap.scaled(p, *r))
		}
	}
}
