package model

import (
	"math"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
)

// investment adds the decision variables of inv for owner and returns the
// capacity handle over its per-period totals.
//
// In single-period models the variables are scalars. In multi-period
// models every period gets invest, total, old, old_end and old_exo, where
// old_end retires the investment of period q at the first period starting
// lifetime years after q and old_exo retires the existing capacity once
// its remaining lifetime has passed.
func (m *Model) investment(owner energy.Key, inv *energy.Investment, implicit bool) capacity {
	h := m.h
	P := h.NumPeriods()
	multi := h.MultiPeriod()
	ref := InvestmentRef{Owner: owner, Investment: inv, Implicit: implicit}

	index := func(name string, p int) VarRef {
		if multi {
			return period(owner, name, p)
		}
		return scalar(owner, name)
	}

	for p := 0; p < P; p++ {
		lo, hi := inv.Minimum.At(p), inv.MaximumAt(p)
		var iv lp.Var
		if inv.NonConvex {
			st := m.newVar(index("invest_status", p), lp.Binary, 0, 1)
			iv = m.newVar(index("invest", p), lp.Continuous, 0, hi)
			m.constrain(conName("invest_nonconvex_max", owner, p), lp.V(iv, 1), lp.LE, lp.V(st, hi))
			if lo > 0 {
				m.constrain(conName("invest_nonconvex_min", owner, p), lp.V(iv, 1), lp.GE, lp.V(st, lo))
			}
			ref.Status = append(ref.Status, st)
		} else {
			iv = m.newVar(index("invest", p), lp.Continuous, lo, hi)
		}
		ref.Invest = append(ref.Invest, iv)
		ref.Total = append(ref.Total, m.newVar(index("total", p), lp.Continuous, 0, math.Inf(1)))
	}
	if m.err != nil {
		return capacity{}
	}

	if !multi {
		m.constrain(conName("total_rule", owner, 0),
			lp.V(ref.Total[0], 1), lp.EQ, lp.V(ref.Invest[0], 1).AddConst(inv.Existing))
	} else {
		m.retirement(owner, inv, &ref)
	}

	m.investmentCosts(owner, inv, &ref)
	m.investments = append(m.investments, ref)

	return capacity{total: ref.Total, bound: inv.CapacityBound(P)}
}

// retirement adds the multi-period total and decommissioning bookkeeping.
func (m *Model) retirement(owner energy.Key, inv *energy.Investment, ref *InvestmentRef) {
	h := m.h
	P := h.NumPeriods()
	years := h.Years()

	exoPeriod := -1
	for p := 0; p < P; p++ {
		if inv.Lifetime-inv.Age <= years[p] {
			exoPeriod = p
			break
		}
	}

	for p := 0; p < P; p++ {
		oldEnd := m.newVar(period(owner, "old_end", p), lp.Continuous, 0, math.Inf(1))
		exo := 0.0
		if p == exoPeriod {
			exo = inv.Existing
		}
		oldExo := m.newVar(period(owner, "old_exo", p), lp.Continuous, exo, exo)
		old := m.newVar(period(owner, "old", p), lp.Continuous, 0, math.Inf(1))
		if m.err != nil {
			return
		}

		retired := lp.V(oldEnd, 1)
		for q := 0; q <= p; q++ {
			if h.DecommissionPeriod(q, inv.Lifetime) == p {
				retired.Add(ref.Invest[q], -1)
			}
		}
		m.constrain(conName("old_end_rule", owner, p), retired, lp.EQ, lp.Const(0))
		m.constrain(conName("old_rule", owner, p), lp.V(old, 1), lp.EQ, lp.Sum(oldEnd, oldExo))

		prev := lp.Const(inv.Existing)
		if p > 0 {
			prev = lp.V(ref.Total[p-1], 1)
		}
		rhs := prev.Add(ref.Invest[p], 1).Add(old, -1)
		m.constrain(conName("total_rule", owner, p), lp.V(ref.Total[p], 1), lp.EQ, rhs)

		if inv.OverallMaximum != nil {
			m.constrain(conName("overall_maximum", owner, p), lp.V(ref.Total[p], 1), lp.LE, lp.Const(*inv.OverallMaximum))
		}
	}
	if inv.OverallMinimum != nil {
		m.constrain(conName("overall_minimum", owner), lp.V(ref.Total[P-1], 1), lp.GE, lp.Const(*inv.OverallMinimum))
	}
}

// investmentCosts adds the capital, offset and fixed costs of ref.
func (m *Model) investmentCosts(owner energy.Key, inv *energy.Investment, ref *InvestmentRef) {
	h := m.h
	P := h.NumPeriods()
	costs := lp.NewExpr()

	if !h.MultiPeriod() {
		costs.Add(ref.Invest[0], inv.EPCosts.At(0))
		if inv.NonConvex {
			costs.Add(ref.Status[0], inv.Offset.At(0))
		}
	} else {
		ir := h.DiscountRate
		if inv.InterestRate != nil {
			ir = *inv.InterestRate
		}
		years := h.Years()
		end := h.End()
		last := P - 1
		factor := func(c []float64, p int) float64 {
			a := annuity(c[p], inv.Lifetime, ir)
			duration := min(end-years[p], inv.Lifetime)
			f := a * pvf(duration, ir) * h.Discount(p)
			if r := inv.Lifetime - (end - years[p]); h.UseRemainingValue && r > 0 {
				f += (a - annuity(c[last], inv.Lifetime, ir)) * pvf(r, ir) * h.Discount(last)
			}
			return f
		}
		ep := perPeriod(inv.EPCosts, P)
		offset := perPeriod(inv.Offset, P)
		for p := 0; p < P; p++ {
			costs.Add(ref.Invest[p], factor(ep, p))
			if inv.NonConvex {
				costs.Add(ref.Status[p], factor(offset, p))
			}
		}
	}

	if inv.FixedCosts.IsSet() {
		for p := 0; p < P; p++ {
			costs.Add(ref.Total[p], inv.FixedCosts.At(p)*h.Discount(p))
		}
	}
	m.addCost(costs, 1)
	m.logger.Debug("investment added", "owner", owner.String(), "periods", P, "nonconvex", inv.NonConvex)
}
