package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
)

func chpBlock(m *Model, group []energy.Node) {
	for _, n := range group {
		m.chp(n.(*energy.GenericCHP))
		if m.err != nil {
			return
		}
	}
}

// chp adds the on/off MILP of a combined heat and power unit. The fuel
// line H_F = α0·Y + α1·P_woDH passes through both operating points
// without district heating.
func (m *Model) chp(c *energy.GenericCHP) {
	T := m.h.T()
	owner := energy.NodeKey(c)
	fuel := m.edgeVars(c.Fuel.Node, c)
	el := m.edgeVars(c, c.Electrical.Node)
	heat := m.edgeVars(c, c.Heat.Node)

	pMax := perStep(c.PMaxWoDH, T)
	pMin := perStep(c.PMinWoDH, T)
	etaMax := perStep(c.EtaElMaxWoDH, T)
	etaMin := perStep(c.EtaElMinWoDH, T)
	qcw := perStep(c.QCWMin, T)
	beta := perStep(c.Beta, T)
	shareMax := perStep(c.HLFGShareMax, T)
	var shareMin []float64
	if c.HLFGShareMin.IsSet() {
		shareMin = perStep(c.HLFGShareMin, T)
	}

	inf := math.Inf(1)
	for t := 0; t < T; t++ {
		a0, a1, err := chpAlpha(pMin[t], pMax[t], etaMin[t], etaMax[t])
		if err != nil {
			m.fail(errs.Config(c.Label, "cannot derive fuel line at %d: %v", t, err))
			return
		}
		hf := m.newVar(step(owner, "H_F", t), lp.Continuous, 0, inf)
		hlMax := m.newVar(step(owner, "H_L_FG_max", t), lp.Continuous, 0, inf)
		pWoDH := m.newVar(step(owner, "P_woDH", t), lp.Continuous, 0, inf)
		p := m.newVar(step(owner, "P", t), lp.Continuous, 0, inf)
		q := m.newVar(step(owner, "Q", t), lp.Continuous, 0, inf)
		y := m.newVar(step(owner, "Y", t), lp.Binary, 0, 1)
		if m.err != nil {
			return
		}

		m.constrain(conName("H_flow", owner, t), lp.V(hf, 1), lp.EQ, lp.V(fuel.flow[t], 1))
		m.constrain(conName("P_flow", owner, t), lp.V(p, 1), lp.EQ, lp.V(el.flow[t], 1))
		m.constrain(conName("Q_flow", owner, t), lp.V(q, 1), lp.EQ, lp.V(heat.flow[t], 1))
		m.constrain(conName("H_F_1", owner, t), lp.V(hf, 1), lp.EQ, lp.V(y, a0).Add(pWoDH, a1))
		m.constrain(conName("H_F_2", owner, t), lp.V(hf, 1), lp.EQ, lp.V(y, a0).Add(p, a1).Add(q, a1*beta[t]))
		m.constrain(conName("H_F_3", owner, t), lp.V(hf, 1), lp.LE, lp.V(y, pMax[t]/etaMax[t]))
		m.constrain(conName("H_F_4", owner, t), lp.V(hf, 1), lp.GE, lp.V(y, pMin[t]/etaMin[t]))
		m.constrain(conName("H_L_FG_max_def", owner, t), lp.V(hlMax, 1), lp.EQ, lp.V(hf, shareMax[t]))

		sense := lp.LE
		if c.BackPressure {
			sense = lp.EQ
		}
		m.constrain(conName("PQ_relation", owner, t),
			lp.Sum(p, q, hlMax).Add(y, qcw[t]), sense, lp.V(hf, 1))

		if shareMin != nil {
			hlMin := m.newVar(step(owner, "H_L_FG_min", t), lp.Continuous, 0, inf)
			if m.err != nil {
				return
			}
			m.constrain(conName("H_L_FG_min_def", owner, t), lp.V(hlMin, 1), lp.EQ, lp.V(hf, shareMin[t]))
			m.constrain(conName("PQ_min_relation", owner, t),
				lp.Sum(p, q, hlMin).Add(y, qcw[t]), lp.GE, lp.V(hf, 1))
		}
	}
}

// chpAlpha solves [1 Pmin; 1 Pmax]·α = [Pmin/ηmin; Pmax/ηmax].
func chpAlpha(pMin, pMax, etaMin, etaMax float64) (a0, a1 float64, err error) {
	a := mat.NewDense(2, 2, []float64{1, pMin, 1, pMax})
	b := mat.NewVecDense(2, []float64{pMin / etaMin, pMax / etaMax})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return 0, 0, err
	}
	return x.AtVec(0), x.AtVec(1), nil
}
