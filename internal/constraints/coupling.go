package constraints

import (
	"fmt"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
)

// EquateVariables adds v1 = factor·v2. An empty name defaults to
// equate_<v1>_<v2>.
func EquateVariables(m *model.Model, v1, v2 lp.Var, factor float64, name string) (int, error) {
	if err := requireBuilt(m); err != nil {
		return -1, err
	}
	vars := m.Problem().Variables()
	for _, v := range []lp.Var{v1, v2} {
		if v < 0 || int(v) >= len(vars) {
			return -1, errs.Requirement("equate_variables", "variable %d is not part of the model", v)
		}
	}
	if name == "" {
		name = fmt.Sprintf("equate_%s_%s", vars[v1].Name, vars[v2].Name)
	}
	return m.AddConstraint(name, lp.V(v1, 1), lp.EQ, lp.V(v2, factor))
}

// EquateFlows adds Σ flows1[t]·factor = Σ flows2[t] for every timestep.
func EquateFlows(m *model.Model, flows1, flows2 []*energy.Edge, factor float64, name string) ([]int, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	if len(flows1) == 0 || len(flows2) == 0 {
		return nil, errs.Requirement("equate_flows", "both flow groups must be non-empty")
	}
	if name == "" {
		name = "equate_flows"
	}
	rows := make([]int, 0, m.Horizon().T())
	for t := 0; t < m.Horizon().T(); t++ {
		lhs, rhs := lp.NewExpr(), lp.NewExpr()
		for _, e := range flows1 {
			v, ok := m.FlowVar(e, t)
			if !ok {
				return nil, errs.Requirement(e.Key().String(), "flow is not part of the model")
			}
			lhs.Add(v, factor)
		}
		for _, e := range flows2 {
			v, ok := m.FlowVar(e, t)
			if !ok {
				return nil, errs.Requirement(e.Key().String(), "flow is not part of the model")
			}
			rhs.Add(v, 1)
		}
		row, err := m.AddConstraint(fmt.Sprintf("%s[%d]", name, t), lhs, lp.EQ, rhs)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SharedLimit adds a variable name[t] ∈ [lower, upper] with
// Σ weights[i]·quantity[components[i], t] = name[t] for every timestep.
// quantity names a per-timestep variable of the components, for example
// storage_content.
func SharedLimit(m *model.Model, quantity, name string, components []energy.Node, weights []float64, lower, upper float64) ([]lp.Var, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	if len(components) != len(weights) {
		return nil, errs.Config(name, "%d components but %d weights", len(components), len(weights))
	}
	T := m.Horizon().T()
	out := make([]lp.Var, T)
	for t := 0; t < T; t++ {
		lhs := lp.NewExpr()
		for i, c := range components {
			v, ok := m.Var(model.VarRef{Owner: energy.NodeKey(c), Name: quantity, Step: t, Period: -1})
			if !ok {
				return nil, errs.Requirement(c.NodeLabel(), "component has no %s variable", quantity)
			}
			lhs.Add(v, weights[i])
		}
		limit, err := m.AddVariable(model.VarRef{Name: name, Step: t, Period: -1}, lp.Continuous, lower, upper)
		if err != nil {
			return nil, err
		}
		if _, err := m.AddConstraint(fmt.Sprintf("%s_constraint[%d]", name, t), lhs, lp.EQ, lp.V(limit, 1)); err != nil {
			return nil, err
		}
		out[t] = limit
	}
	return out, nil
}

// LimitActiveFlowCount bounds the number of active nonconvex flows per
// timestep: lower ≤ Σ status[e, t] ≤ upper. It adds the counting variable
// name[t].
func LimitActiveFlowCount(m *model.Model, name string, edges []*energy.Edge, lower, upper float64) ([]lp.Var, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, errs.Requirement(name, "no nonconvex flows to count")
	}
	T := m.Horizon().T()
	out := make([]lp.Var, T)
	for t := 0; t < T; t++ {
		sum := lp.NewExpr()
		for _, e := range edges {
			st, ok := m.StatusVar(e, t)
			if !ok {
				return nil, errs.Requirement(e.Key().String(), "flow is not nonconvex")
			}
			sum.Add(st, 1)
		}
		count, err := m.AddVariable(model.VarRef{Name: name, Step: t, Period: -1}, lp.Continuous, lower, upper)
		if err != nil {
			return nil, err
		}
		if _, err := m.AddConstraint(fmt.Sprintf("%s_constraint[%d]", name, t), sum, lp.EQ, lp.V(count, 1)); err != nil {
			return nil, err
		}
		out[t] = count
	}
	return out, nil
}

// LimitActiveFlowCountByKeyword is LimitActiveFlowCount over every
// nonconvex flow carrying keyword. The counting variable is named after
// the keyword.
func LimitActiveFlowCountByKeyword(m *model.Model, keyword string, lower, upper float64) ([]lp.Var, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	var edges []*energy.Edge
	for _, e := range m.System().Edges() {
		if e.Flow.NonConvex != nil && e.Flow.HasKeyword(keyword) {
			edges = append(edges, e)
		}
	}
	if len(edges) == 0 {
		return nil, errs.Requirement(keyword, "no nonconvex flow carries keyword %q", keyword)
	}
	return LimitActiveFlowCount(m, keyword, edges, lower, upper)
}
