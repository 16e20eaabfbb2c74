package model

import (
	"fmt"
	"math"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
)

func piecewiseBlock(m *Model, group []energy.Node) {
	for _, n := range group {
		m.piecewise(n.(*energy.PiecewiseLinearConverter))
		if m.err != nil {
			return
		}
	}
}

// piecewise links inflow and outflow of a converter through its sampled
// conversion function in the requested encoding. SOS2 falls back to the
// convex-combination encoding when the backend has no native SOS2 sets.
func (m *Model) piecewise(c *energy.PiecewiseLinearConverter) {
	T := m.h.T()
	owner := energy.NodeKey(c)
	x := c.InBreakpoints
	y := c.OutBreakpoints()
	K := len(x) - 1
	yLo, yHi := math.Inf(1), math.Inf(-1)
	for _, v := range y {
		yLo, yHi = math.Min(yLo, v), math.Max(yHi, v)
	}

	in := m.edgeVars(c.Inputs[0].Node, c)
	out := m.edgeVars(c, c.Outputs[0].Node)

	enc := c.Encoding
	if enc == "" || (enc == energy.EncodingSOS2 && !m.sos2) {
		enc = energy.EncodingCC
	}

	for t := 0; t < T; t++ {
		inflow := m.newVar(step(owner, "inflow", t), lp.Continuous, x[0], x[K])
		outflow := m.newVar(step(owner, "outflow", t), lp.Continuous, yLo, yHi)
		if m.err != nil {
			return
		}
		m.constrain(conName("equate_in", owner, t), lp.V(inflow, 1), lp.EQ, lp.V(in.flow[t], 1))
		m.constrain(conName("equate_out", owner, t), lp.V(outflow, 1), lp.EQ, lp.V(out.flow[t], 1))

		pw := piece{m: m, owner: owner, t: t, x: x, y: y, in: inflow, out: outflow}
		switch enc {
		case energy.EncodingSOS2:
			pw.sos2()
		case energy.EncodingCC:
			pw.convexCombination()
		case energy.EncodingDCC:
			pw.disaggregated()
		case energy.EncodingMC:
			pw.multipleChoice()
		case energy.EncodingINC:
			pw.incremental()
		}
		if m.err != nil {
			return
		}
	}
}

// piece builds one timestep of a piecewise-linear relation.
type piece struct {
	m       *Model
	owner   energy.Key
	t       int
	x, y    []float64
	in, out lp.Var
}

func (pw piece) variable(name string, extra any, d lp.Domain, lo, hi float64) lp.Var {
	ref := step(pw.owner, name, pw.t)
	ref.Extra = fmt.Sprint(extra)
	return pw.m.newVar(ref, d, lo, hi)
}

func (pw piece) constrain(family string, idx any, lhs *lp.Expr, s lp.Sense, rhs *lp.Expr) {
	pw.m.constrain(conName(family, pw.owner, idx, pw.t), lhs, s, rhs)
}

// weights adds λ_k for every breakpoint with Σλ = 1 and the interpolated
// inflow and outflow.
func (pw piece) weights() []lp.Var {
	lambda := make([]lp.Var, len(pw.x))
	sum, xs, ys := lp.NewExpr(), lp.NewExpr(), lp.NewExpr()
	for k := range pw.x {
		lambda[k] = pw.variable("lambda", k, lp.Continuous, 0, 1)
		sum.Add(lambda[k], 1)
		xs.Add(lambda[k], pw.x[k])
		ys.Add(lambda[k], pw.y[k])
	}
	pw.constrain("lambda_sum", "all", sum, lp.EQ, lp.Const(1))
	pw.constrain("interpolate_in", "all", lp.V(pw.in, 1), lp.EQ, xs)
	pw.constrain("interpolate_out", "all", lp.V(pw.out, 1), lp.EQ, ys)
	return lambda
}

func (pw piece) segments() ([]lp.Var, *lp.Expr) {
	K := len(pw.x) - 1
	z := make([]lp.Var, K)
	sum := lp.NewExpr()
	for s := 0; s < K; s++ {
		z[s] = pw.variable("segment", s, lp.Binary, 0, 1)
		sum.Add(z[s], 1)
	}
	return z, sum
}

func (pw piece) sos2() {
	lambda := pw.weights()
	if pw.m.err != nil {
		return
	}
	if err := pw.m.problem.AddSOS2(conName("sos2", pw.owner, pw.t), lambda, pw.x); err != nil {
		pw.m.fail(err)
	}
}

func (pw piece) convexCombination() {
	lambda := pw.weights()
	z, sum := pw.segments()
	if pw.m.err != nil {
		return
	}
	pw.constrain("segment_sum", "all", sum, lp.EQ, lp.Const(1))
	K := len(pw.x) - 1
	for k := 0; k <= K; k++ {
		adj := lp.NewExpr()
		if k > 0 {
			adj.Add(z[k-1], 1)
		}
		if k < K {
			adj.Add(z[k], 1)
		}
		pw.constrain("adjacency", k, lp.V(lambda[k], 1), lp.LE, adj)
	}
}

func (pw piece) disaggregated() {
	K := len(pw.x) - 1
	z, sum := pw.segments()
	xs, ys := lp.NewExpr(), lp.NewExpr()
	for s := 0; s < K; s++ {
		lo := pw.variable("lambda", fmt.Sprintf("%d_0", s), lp.Continuous, 0, 1)
		hi := pw.variable("lambda", fmt.Sprintf("%d_1", s), lp.Continuous, 0, 1)
		if pw.m.err != nil {
			return
		}
		pw.constrain("segment_weight", s, lp.Sum(lo, hi), lp.EQ, lp.V(z[s], 1))
		xs.Add(lo, pw.x[s]).Add(hi, pw.x[s+1])
		ys.Add(lo, pw.y[s]).Add(hi, pw.y[s+1])
	}
	pw.constrain("segment_sum", "all", sum, lp.EQ, lp.Const(1))
	pw.constrain("interpolate_in", "all", lp.V(pw.in, 1), lp.EQ, xs)
	pw.constrain("interpolate_out", "all", lp.V(pw.out, 1), lp.EQ, ys)
}

func (pw piece) multipleChoice() {
	K := len(pw.x) - 1
	z, sum := pw.segments()
	xs, ys := lp.NewExpr(), lp.NewExpr()
	for s := 0; s < K; s++ {
		u := pw.variable("segment_input", s, lp.Continuous, 0, math.Inf(1))
		if pw.m.err != nil {
			return
		}
		pw.constrain("segment_lower", s, lp.V(u, 1), lp.GE, lp.V(z[s], pw.x[s]))
		pw.constrain("segment_upper", s, lp.V(u, 1), lp.LE, lp.V(z[s], pw.x[s+1]))
		slope := (pw.y[s+1] - pw.y[s]) / (pw.x[s+1] - pw.x[s])
		xs.Add(u, 1)
		ys.Add(u, slope).Add(z[s], pw.y[s]-slope*pw.x[s])
	}
	pw.constrain("segment_sum", "all", sum, lp.EQ, lp.Const(1))
	pw.constrain("interpolate_in", "all", lp.V(pw.in, 1), lp.EQ, xs)
	pw.constrain("interpolate_out", "all", lp.V(pw.out, 1), lp.EQ, ys)
}

func (pw piece) incremental() {
	K := len(pw.x) - 1
	delta := make([]lp.Var, K)
	xs := lp.Const(pw.x[0])
	ys := lp.Const(pw.y[0])
	for s := 0; s < K; s++ {
		delta[s] = pw.variable("fill", s, lp.Continuous, 0, 1)
		if pw.m.err != nil {
			return
		}
		xs.Add(delta[s], pw.x[s+1]-pw.x[s])
		ys.Add(delta[s], pw.y[s+1]-pw.y[s])
	}
	for s := 0; s+1 < K; s++ {
		w := pw.variable("order", s, lp.Binary, 0, 1)
		if pw.m.err != nil {
			return
		}
		pw.constrain("order_next", s, lp.V(delta[s+1], 1), lp.LE, lp.V(w, 1))
		pw.constrain("order_prev", s, lp.V(w, 1), lp.LE, lp.V(delta[s], 1))
	}
	pw.constrain("interpolate_in", "all", lp.V(pw.in, 1), lp.EQ, xs)
	pw.constrain("interpolate_out", "all", lp.V(pw.out, 1), lp.EQ, ys)
}
