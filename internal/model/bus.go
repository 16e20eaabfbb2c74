package model

import (
	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/sequence"
)

// busBlock adds Σ inflow = Σ outflow for every balanced bus and timestep.
// Buses without edges get no rows.
func busBlock(m *Model, group []energy.Node) {
	T := m.h.T()
	for _, n := range group {
		b := n.(*energy.Bus)
		if !b.Balanced {
			continue
		}
		in, out := m.es.InEdges(b), m.es.OutEdges(b)
		if len(in)+len(out) == 0 {
			continue
		}
		rows := make([]int, T)
		for t := 0; t < T; t++ {
			e := lp.NewExpr()
			for _, edge := range in {
				e.Add(m.flows[edge.Key()].flow[t], 1)
			}
			for _, edge := range out {
				e.Add(m.flows[edge.Key()].flow[t], -1)
			}
			rows[t] = m.constrain(conName("bus_balance", energy.NodeKey(b), t), e, lp.EQ, lp.Const(0))
		}
		m.balances[b] = rows
		m.buses = append(m.buses, b)
	}
}

// converterBlock relates every input to every output:
// flow_in·η_out = flow_out·η_in.
func converterBlock(m *Model, group []energy.Node) {
	T := m.h.T()
	for _, n := range group {
		c := n.(*energy.Converter)
		owner := energy.NodeKey(c)
		factor := func(node energy.Node) []float64 {
			v, ok := c.ConversionFactors[node]
			if !ok {
				v = sequence.Value{}
			}
			return perStepOr(v, 1, T)
		}
		for _, in := range c.Inputs {
			inVars := m.edgeVars(in.Node, c)
			etaIn := factor(in.Node)
			for _, out := range c.Outputs {
				outVars := m.edgeVars(c, out.Node)
				etaOut := factor(out.Node)
				for t := 0; t < T; t++ {
					m.constrain(conName("relation", owner, in.Node.NodeLabel(), out.Node.NodeLabel(), t),
						lp.V(inVars.flow[t], etaOut[t]), lp.EQ, lp.V(outVars.flow[t], etaIn[t]))
				}
			}
		}
	}
}
