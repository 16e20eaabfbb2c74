package model

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
)

func sinkDSMBlock(m *Model, group []energy.Node) {
	for _, n := range group {
		s := n.(*energy.SinkDSM)
		d := m.newDSM(s)
		if m.err != nil {
			return
		}
		switch s.Approach {
		case energy.DSMOemof:
			d.oemof()
		case energy.DSMDIW:
			d.diw()
		case energy.DSMDLR:
			d.dlr()
		}
		d.fixedCosts()
		if m.err != nil {
			return
		}
	}
}

// dsm carries the resolved parameters of one demand-response sink.
type dsm struct {
	m       *Model
	s       *energy.SinkDSM
	owner   energy.Key
	inflow  *flowVars
	T       int
	periods []int

	demand    []float64
	maxDemand []float64
	capUp     []float64
	capDo     []float64

	// eUp and eDo scale the envelopes. With an investment both are the
	// invested total.
	eUp, eDo capacity

	costUp, costShift, costShed []float64
}

func (m *Model) newDSM(s *energy.SinkDSM) *dsm {
	T, P := m.h.T(), m.h.NumPeriods()
	d := &dsm{
		m:         m,
		s:         s,
		owner:     energy.NodeKey(s),
		inflow:    m.edgeVars(s.Inputs[0].Node, s),
		T:         T,
		periods:   m.periodsOf(),
		demand:    perStep(s.Demand, T),
		maxDemand: perPeriod(s.MaxDemand, P),
		capUp:     perStep(s.CapacityUp, T),
		capDo:     perStep(s.CapacityDown, T),
		costUp:    perStep(s.CostDSMUp, T),
		costShift: perStep(s.CostDSMDownShift, T),
		costShed:  perStep(s.CostDSMDownShed, T),
	}
	if s.Investment != nil {
		c := m.investment(d.owner, s.Investment, false)
		d.eUp, d.eDo = c, c
	} else {
		d.eUp = fixedCapacity(perPeriod(s.MaxCapacityUp, P))
		d.eDo = fixedCapacity(perPeriod(s.MaxCapacityDown, P))
	}
	return d
}

// series adds one nonnegative variable per timestep. Ineligible series are
// fixed to zero.
func (d *dsm) series(name string, eligible bool) []lp.Var {
	hi := math.Inf(1)
	if !eligible {
		hi = 0
	}
	out := make([]lp.Var, d.T)
	for t := range out {
		out[t] = d.m.newVar(step(d.owner, name, t), lp.Continuous, 0, hi)
	}
	return out
}

func (d *dsm) upLimit(t int, k float64) *lp.Expr {
	return d.eUp.scaled(d.periods[t], d.capUp[t]*k)
}

func (d *dsm) downLimit(t int, k float64) *lp.Expr {
	return d.eDo.scaled(d.periods[t], d.capDo[t]*k)
}

// envelopeMax is max(cap_up·E_up, cap_do·E_do)·k at t.
func (d *dsm) envelopeMax(t int, k float64) *lp.Expr {
	p := d.periods[t]
	if d.eUp.invested() {
		return d.eUp.scaled(p, math.Max(d.capUp[t], d.capDo[t])*k)
	}
	return lp.Const(math.Max(d.capUp[t]*d.eUp.value(p), d.capDo[t]*d.eDo.value(p)) * k)
}

// baseline returns the demand at t.
func (d *dsm) baseline(t int) float64 {
	return d.demand[t] * d.maxDemand[d.periods[t]]
}

// weight is the objective factor of a timestep.
func (d *dsm) weight(t int) float64 {
	return d.m.h.Weight(t) * d.m.h.Discount(d.periods[t])
}

func (d *dsm) name(family string, idx ...any) string {
	return conName(family, d.owner, idx...)
}

// fixedCosts applies per-period fixed costs on the larger dispatch
// envelope. Invested sinks carry them on the investment instead.
func (d *dsm) fixedCosts() {
	if !d.s.FixedCosts.IsSet() || d.eUp.invested() {
		return
	}
	h := d.m.h
	fc := perPeriod(d.s.FixedCosts, h.NumPeriods())
	for p := range fc {
		d.m.objective.AddConst(math.Max(d.eUp.value(p), d.eDo.value(p)) * fc[p] * h.Discount(p))
	}
}

// shedRecovery caps Σ shed over every rolling window of the shed recovery
// time by cap_do·E_do·shed_time·Δt.
func (d *dsm) shedRecovery(shed []lp.Var) {
	s := d.s
	if !s.ShedEligibility || s.RecoveryTimeShed <= 0 {
		return
	}
	for t := 0; t < d.T; t++ {
		sum := lp.NewExpr()
		for u := t; u < min(t+s.RecoveryTimeShed, d.T); u++ {
			sum.Add(shed[u], 1)
		}
		d.m.constrain(d.name("shed_limit", t), sum, lp.LE,
			d.downLimit(t, float64(s.ShedTime)*d.m.h.Increment(t)))
	}
}

// ============================================================================
// oemof: balance inside fixed shift windows
// ============================================================================

func (d *dsm) oemof() {
	s, m := d.s, d.m
	up := d.series("dsm_up", s.ShiftEligibility)
	shift := d.series("dsm_do_shift", s.ShiftEligibility)
	shed := d.series("dsm_do_shed", s.ShedEligibility)
	if m.err != nil {
		return
	}

	for t := 0; t < d.T; t++ {
		lhs := lp.V(d.inflow.flow[t], 1).Add(up[t], -1).Add(shift[t], 1).Add(shed[t], 1)
		m.constrain(d.name("input_output_relation", t), lhs, lp.EQ, lp.Const(d.baseline(t)))
		m.constrain(d.name("dsm_up_constraint", t), lp.V(up[t], 1), lp.LE, d.upLimit(t, 1))
		m.constrain(d.name("dsm_down_constraint", t), lp.Sum(shift[t], shed[t]), lp.LE, d.downLimit(t, 1))

		w := d.weight(t)
		m.objective.Add(up[t], d.costUp[t]*w).Add(shift[t], d.costShift[t]*w).Add(shed[t], d.costShed[t]*w)
	}

	for start := 0; start < d.T; start += s.ShiftInterval {
		ups, downs := lp.NewExpr(), lp.NewExpr()
		for t := start; t < min(start+s.ShiftInterval, d.T); t++ {
			ups.Add(up[t], s.Efficiency)
			downs.Add(shift[t], 1)
		}
		m.constrain(d.name("dsm_sum_constraint", start), ups, lp.EQ, downs)
	}

	d.shedRecovery(shed)
}

// ============================================================================
// DIW: every upshift is compensated within the delay time
// ============================================================================

// diwShift indexes dsm_do_shift[t, tt]: the downshift at tt compensating
// the upshift at t, for |t − tt| ≤ L.
type diwShift struct {
	L    int
	vars [][]lp.Var
}

func (x diwShift) lo(t int) int { return max(0, t-x.L) }

func (x diwShift) at(t, tt int) lp.Var { return x.vars[t][tt-x.lo(t)] }

// window returns the timesteps within the delay time of t.
func (x diwShift) window(t, T int) []int {
	var out []int
	for u := x.lo(t); u <= min(T-1, t+x.L); u++ {
		out = append(out, u)
	}
	return out
}

func (d *dsm) diw() {
	s, m := d.s, d.m
	up := d.series("dsm_up", s.ShiftEligibility)
	shed := d.series("dsm_do_shed", s.ShedEligibility)

	hi := math.Inf(1)
	if !s.ShiftEligibility {
		hi = 0
	}
	shift := diwShift{L: s.DelayTime, vars: make([][]lp.Var, d.T)}
	for t := 0; t < d.T; t++ {
		for _, tt := range shift.window(t, d.T) {
			ref := step(d.owner, "dsm_do_shift", tt)
			ref.Extra = strconv.Itoa(t)
			shift.vars[t] = append(shift.vars[t], m.newVar(ref, lp.Continuous, 0, hi))
		}
	}
	if m.err != nil {
		return
	}

	for t := 0; t < d.T; t++ {
		window := shift.window(t, d.T)

		// Downshifts realized at t, from upshifts at any tt in the window.
		realized := lp.NewExpr()
		for _, tt := range window {
			realized.Add(shift.at(tt, t), 1)
		}

		lhs := lp.V(d.inflow.flow[t], 1).Add(up[t], -1).Add(shed[t], 1).AddExpr(realized, 1)
		m.constrain(d.name("input_output_relation", t), lhs, lp.EQ, lp.Const(d.baseline(t)))

		compensation := lp.NewExpr()
		for _, tt := range window {
			compensation.Add(shift.at(t, tt), 1)
		}
		m.constrain(d.name("dsm_updo_constraint", t), lp.V(up[t], s.Efficiency), lp.EQ, compensation)

		m.constrain(d.name("dsm_up_constraint", t), lp.V(up[t], 1), lp.LE, d.upLimit(t, 1))
		m.constrain(d.name("dsm_do_constraint", t), realized.Clone().Add(shed[t], 1), lp.LE, d.downLimit(t, 1))
		m.constrain(d.name("C2_constraint", t), realized.Clone().Add(up[t], 1).Add(shed[t], 1), lp.LE, d.envelopeMax(t, 1))

		if s.RecoveryTimeShift > 0 {
			sum := lp.NewExpr()
			for u := t; u < min(t+s.RecoveryTimeShift, d.T); u++ {
				sum.Add(up[u], 1)
			}
			m.constrain(d.name("recovery_constraint", t), sum, lp.LE,
				d.upLimit(t, float64(s.DelayTime)*m.h.Increment(t)))
		}

		w := d.weight(t)
		m.objective.Add(up[t], d.costUp[t]*w).Add(shed[t], d.costShed[t]*w)
		m.objective.AddExpr(realized, d.costShift[t]*w)
	}

	d.shedRecovery(shed)
}

// ============================================================================
// DLR: delay-indexed balancing with fictitious storage levels
// ============================================================================

// dlrDelay holds the variables of one delay h.
type dlrDelay struct {
	h                       int
	up, shift, balUp, balDo []lp.Var
}

func (d *dsm) dlrSeries(name string, h int, upper func(t int) float64) []lp.Var {
	out := make([]lp.Var, d.T)
	for t := range out {
		ref := step(d.owner, name, t)
		ref.Extra = strconv.Itoa(h)
		out[t] = d.m.newVar(ref, lp.Continuous, 0, upper(t))
	}
	return out
}

func (d *dsm) dlr() {
	s, m := d.s, d.m
	T := d.T
	inf := math.Inf(1)

	delays := make([]dlrDelay, 0, len(s.DelayTimes))
	for _, h := range s.DelayTimes {
		// Shifts that could no longer be balanced before the horizon end
		// are pinned to zero when fixes are enabled.
		shiftable := func(t int) float64 {
			if !s.ShiftEligibility || (s.Fixes && t > T-1-h) {
				return 0
			}
			return inf
		}
		// Balancing starts h steps after the first possible shift.
		balanceable := func(t int) float64 {
			if !s.ShiftEligibility || t < h {
				return 0
			}
			return inf
		}
		delays = append(delays, dlrDelay{
			h:     h,
			up:    d.dlrSeries("dsm_up", h, shiftable),
			shift: d.dlrSeries("dsm_do_shift", h, shiftable),
			balUp: d.dlrSeries("balance_dsm_up", h, balanceable),
			balDo: d.dlrSeries("balance_dsm_do", h, balanceable),
		})
	}
	shed := d.series("dsm_do_shed", s.ShedEligibility)
	doLevel := d.series("dsm_do_level", true)
	upLevel := d.series("dsm_up_level", true)
	if m.err != nil {
		return
	}

	sum := func(t int, pick func(dl dlrDelay) []lp.Var, coef float64) *lp.Expr {
		e := lp.NewExpr()
		for _, dl := range delays {
			e.Add(pick(dl)[t], coef)
		}
		return e
	}
	ups := func(dl dlrDelay) []lp.Var { return dl.up }
	shifts := func(dl dlrDelay) []lp.Var { return dl.shift }
	balUps := func(dl dlrDelay) []lp.Var { return dl.balUp }
	balDos := func(dl dlrDelay) []lp.Var { return dl.balDo }

	meanUp := stat.Mean(d.capUp, nil)
	meanDo := stat.Mean(d.capDo, nil)
	shiftTime := float64(s.ShiftTime)

	for t := 0; t < T; t++ {
		dt := m.h.Increment(t)
		p := d.periods[t]

		for _, dl := range delays {
			if t < dl.h {
				continue
			}
			m.constrain(d.name("capacity_balance_red", dl.h, t),
				lp.V(dl.balDo[t], 1), lp.EQ, lp.V(dl.shift[t-dl.h], 1/s.Efficiency))
			m.constrain(d.name("capacity_balance_inc", dl.h, t),
				lp.V(dl.balUp[t], 1), lp.EQ, lp.V(dl.up[t-dl.h], s.Efficiency))
		}

		lhs := lp.V(d.inflow.flow[t], 1).Add(shed[t], 1).
			AddExpr(sum(t, ups, 1), -1).AddExpr(sum(t, balDos, 1), -1).
			AddExpr(sum(t, shifts, 1), 1).AddExpr(sum(t, balUps, 1), 1)
		m.constrain(d.name("input_output_relation", t), lhs, lp.EQ, lp.Const(d.baseline(t)))

		reduction := sum(t, shifts, 1).AddExpr(sum(t, balUps, 1), 1)
		increase := sum(t, ups, 1).AddExpr(sum(t, balDos, 1), 1)
		m.constrain(d.name("availability_red", t), reduction.Clone().Add(shed[t], 1), lp.LE, d.downLimit(t, 1))
		m.constrain(d.name("availability_inc", t), increase, lp.LE, d.upLimit(t, 1))

		if t == 0 {
			m.constrain(d.name("dr_storage_red", t), lp.V(doLevel[t], 1), lp.EQ, sum(t, shifts, dt))
			m.constrain(d.name("dr_storage_inc", t), lp.V(upLevel[t], 1), lp.EQ, sum(t, ups, dt))
		} else {
			red := sum(t, shifts, dt).AddExpr(sum(t, balDos, dt*s.Efficiency), -1)
			m.constrain(d.name("dr_storage_red", t), lp.V(doLevel[t], 1).Add(doLevel[t-1], -1), lp.EQ, red)
			inc := sum(t, ups, dt*s.Efficiency).AddExpr(sum(t, balUps, dt), -1)
			m.constrain(d.name("dr_storage_inc", t), lp.V(upLevel[t], 1).Add(upLevel[t-1], -1), lp.EQ, inc)
		}
		m.constrain(d.name("dr_storage_limit_red", t), lp.V(doLevel[t], 1), lp.LE, d.eDo.scaled(p, meanDo*shiftTime))
		m.constrain(d.name("dr_storage_limit_inc", t), lp.V(upLevel[t], 1), lp.LE, d.eUp.scaled(p, meanUp*shiftTime))

		if s.ActivateDayLimit && t >= s.TDayLimit {
			redDay, incDay := sum(t, shifts, 1), sum(t, ups, 1)
			for back := 1; back <= s.TDayLimit; back++ {
				redDay.AddExpr(sum(t-back, shifts, 1), 1)
				incDay.AddExpr(sum(t-back, ups, 1), 1)
			}
			m.constrain(d.name("dr_daily_limit_red", t), redDay, lp.LE, d.eDo.scaled(p, meanDo*shiftTime))
			m.constrain(d.name("dr_daily_limit_inc", t), incDay, lp.LE, d.eUp.scaled(p, meanUp*shiftTime))
		}

		if s.AddLogicalConstraint {
			both := reduction.Clone().AddExpr(sum(t, ups, 1), 1).AddExpr(sum(t, balDos, 1), 1).Add(shed[t], 1)
			m.constrain(d.name("dr_logical_constraint", t), both, lp.LE, d.envelopeMax(t, 1))
		}

		w := d.weight(t)
		m.objective.AddExpr(sum(t, ups, 1).AddExpr(sum(t, balDos, 1), 1), d.costUp[t]*w)
		m.objective.AddExpr(reduction, d.costShift[t]*w)
		m.objective.Add(shed[t], d.costShed[t]*w)
	}

	for p := 0; p < m.h.NumPeriods(); p++ {
		steps := m.h.Steps(p)
		if s.ShedEligibility && s.ShedTime > 0 && s.NYearLimitShed > 0 {
			total := lp.NewExpr()
			for _, t := range steps {
				total.Add(shed[t], 1)
			}
			m.constrain(d.name("dr_yearly_limit_shed", p), total, lp.LE,
				d.eDo.scaled(p, meanDo*float64(s.ShedTime)*s.NYearLimitShed))
		}
		if s.ActivateYearLimit {
			red, inc := lp.NewExpr(), lp.NewExpr()
			for _, t := range steps {
				red.AddExpr(sum(t, shifts, 1), 1)
				inc.AddExpr(sum(t, ups, 1), 1)
			}
			m.constrain(d.name("dr_yearly_limit_red", p), red, lp.LE, d.eDo.scaled(p, meanDo*shiftTime*s.NYearLimitShift))
			m.constrain(d.name("dr_yearly_limit_inc", p), inc, lp.LE, d.eUp.scaled(p, meanUp*shiftTime*s.NYearLimitShift))
		}
	}
}
