package model

import (
	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
)

// offsetConverterBlock ties every companion flow to the reference flow:
// flow_f = flow_ref·slope_f + status_nominal_ref·offset_f.
func offsetConverterBlock(m *Model, group []energy.Node) {
	T := m.h.T()
	for _, n := range group {
		c := n.(*energy.OffsetConverter)
		owner := energy.NodeKey(c)
		refPort, _ := c.OffsetReference()
		ref := m.portVars(c, refPort)

		companions := func(ports []energy.Port, fn func(p energy.Port) *flowVars) {
			for _, p := range ports {
				if p.Flow == refPort.Flow {
					continue
				}
				fv := fn(p)
				slope := perStep(c.Slopes[p.Node], T)
				offset := perStep(c.Offsets[p.Node], T)
				for t := 0; t < T; t++ {
					rhs := lp.V(ref.flow[t], slope[t]).Add(ref.statusNominal[t], offset[t])
					m.constrain(conName("offset_relation", owner, p.Node.NodeLabel(), t), lp.V(fv.flow[t], 1), lp.EQ, rhs)
				}
			}
		}
		companions(c.Inputs, func(p energy.Port) *flowVars { return m.edgeVars(p.Node, c) })
		companions(c.Outputs, func(p energy.Port) *flowVars { return m.edgeVars(c, p.Node) })
	}
}

// portVars returns the flow variables behind a port of node n.
func (m *Model) portVars(n energy.Node, port energy.Port) *flowVars {
	if fv := m.edgeVars(port.Node, n); fv != nil && fv.edge.Flow == port.Flow {
		return fv
	}
	return m.edgeVars(n, port.Node)
}
