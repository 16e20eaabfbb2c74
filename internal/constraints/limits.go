package constraints

import (
	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
	"github.com/roach88/enmod/internal/sequence"
)

// EmissionFactor is the attribute read by EmissionLimit.
const EmissionFactor = "emission_factor"

// Limit is an aggregate expression bounded by one or more rows.
type Limit struct {
	Name string
	Expr *lp.Expr
	Rows []int
}

// Value evaluates the limited expression in sol.
func (l *Limit) Value(sol *lp.Solution) float64 {
	if sol == nil {
		return 0
	}
	return l.Expr.Eval(sol.Values)
}

func requireBuilt(m *model.Model) error {
	if !m.Built() {
		return errs.Dependency("constraint helpers need a built model")
	}
	return nil
}

// attribute returns the per-timestep factor of a flow attribute.
func attribute(f *energy.Flow, keyword string) (sequence.Value, bool) {
	if keyword == EmissionFactor {
		return f.EmissionFactor, f.EmissionFactor.IsSet()
	}
	v, ok := f.Custom[keyword]
	return v, ok && v.IsSet()
}

// EmissionLimit bounds Σ flow·emission_factor·Δt over all timesteps by
// limit. With edges nil every flow with an emission factor counts and the
// others are skipped.
func EmissionLimit(m *model.Model, edges []*energy.Edge, limit float64) (*Limit, error) {
	return GenericIntegralLimit(m, EmissionFactor, edges, limit)
}

// GenericIntegralLimit bounds Σ flow·w·Δt by limit, where w is the custom
// flow attribute named keyword. With edges nil every flow carrying the
// attribute counts. Explicitly listed edges must carry it.
func GenericIntegralLimit(m *model.Model, keyword string, edges []*energy.Edge, limit float64) (*Limit, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	if edges == nil {
		for _, e := range m.System().Edges() {
			if _, ok := attribute(e.Flow, keyword); ok {
				edges = append(edges, e)
			}
		}
	}

	h := m.Horizon()
	T := h.T()
	sum := lp.NewExpr()
	for _, e := range edges {
		w, ok := attribute(e.Flow, keyword)
		if !ok {
			return nil, errs.Requirement(e.Key().String(), "flow has no attribute %q", keyword)
		}
		factors := sequence.MustResolve(w, T)
		for t := 0; t < T; t++ {
			v, ok := m.FlowVar(e, t)
			if !ok {
				return nil, errs.Requirement(e.Key().String(), "flow is not part of the model")
			}
			sum.Add(v, factors[t]*h.Increment(t))
		}
	}

	name := "integral_limit_" + keyword
	row, err := m.AddConstraint(name, sum, lp.LE, lp.Const(limit))
	if err != nil {
		return nil, err
	}
	m.Logger().Debug("integral limit added", "keyword", keyword, "flows", len(edges), "limit", limit)
	return &Limit{Name: name, Expr: sum, Rows: []int{row}}, nil
}

// InvestmentLimit bounds the capital spending Σ invest·ep_costs over every
// investment and period by limit.
func InvestmentLimit(m *model.Model, limit float64) (*Limit, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	invs := m.Investments()
	if len(invs) == 0 {
		return nil, errs.Requirement("investment_limit", "model has no investments")
	}
	sum := lp.NewExpr()
	for _, ref := range invs {
		for p, v := range ref.Invest {
			sum.Add(v, ref.Investment.EPCosts.At(p))
		}
	}
	row, err := m.AddConstraint("investment_limit", sum, lp.LE, lp.Const(limit))
	if err != nil {
		return nil, err
	}
	return &Limit{Name: "investment_limit", Expr: sum, Rows: []int{row}}, nil
}

// AdditionalInvestmentFlowLimit bounds Σ invest·c over all flow
// investments carrying the custom attribute keyword with value c.
func AdditionalInvestmentFlowLimit(m *model.Model, keyword string, limit float64) (*Limit, error) {
	if err := requireBuilt(m); err != nil {
		return nil, err
	}
	sum := lp.NewExpr()
	n := 0
	for _, ref := range m.Investments() {
		if ref.Owner.To == nil {
			continue
		}
		c, ok := ref.Investment.Custom[keyword]
		if !ok {
			continue
		}
		for _, v := range ref.Invest {
			sum.Add(v, c)
		}
		n++
	}
	if n == 0 {
		return nil, errs.Requirement("invest_limit_"+keyword, "no flow investment carries %q", keyword)
	}
	name := "invest_limit_" + keyword
	row, err := m.AddConstraint(name, sum, lp.LE, lp.Const(limit))
	if err != nil {
		return nil, err
	}
	return &Limit{Name: name, Expr: sum, Rows: []int{row}}, nil
}
