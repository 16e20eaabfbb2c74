package energy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/sequence"
)

// validate checks every build-time invariant of the graph. It reports the
// first violation.
func (es *EnergySystem) validate() error {
	registered := make(map[Node]bool, len(es.nodes))
	for _, n := range es.nodes {
		registered[n] = true
	}
	for _, e := range es.edges {
		for _, end := range []Node{e.From, e.To} {
			if !registered[end] {
				return errs.Config(end.NodeLabel(), "node is connected by edge %s but was never added", e.Key())
			}
		}
	}

	T := es.Horizon.T()
	P := es.Horizon.NumPeriods()
	for _, e := range es.edges {
		if err := validateFlow(e, T, P, es.Horizon.MultiPeriod()); err != nil {
			return err
		}
	}
	for _, n := range es.nodes {
		var err error
		switch v := n.(type) {
		case *Bus:
			// No parameters beyond the ports.
		case *Source:
			if len(v.Outputs) == 0 {
				err = errs.Config(v.Label, "source has no outputs")
			}
		case *Sink:
			if len(v.Inputs) == 0 {
				err = errs.Config(v.Label, "sink has no inputs")
			}
		case *Converter:
			err = validateConverter(v, T)
		case *GenericStorage:
			err = validateStorage(v, T, P, es.Horizon.MultiPeriod())
		case *OffsetConverter:
			err = validateOffsetConverter(v, T)
		case *GenericCHP:
			err = validateCHP(v, T)
		case *PiecewiseLinearConverter:
			err = validatePiecewise(v)
		case *SinkDSM:
			err = validateSinkDSM(v, T, P, es.Horizon.MultiPeriod())
		default:
			err = errs.Config(n.NodeLabel(), "unknown node kind %s", n.Kind())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkSeq(entity, param string, v sequence.Value, n int) error {
	if _, err := sequence.Resolve(v, n); err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			out := e.With("parameter", param)
			out.Entity = entity
			return out
		}
		return err
	}
	return nil
}

func validateFlow(e *Edge, T, P int, multi bool) error {
	f := e.Flow
	name := e.Key().String()
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{
		{"min", f.Min}, {"max", f.Max}, {"fix", f.Fix}, {"variable_costs", f.VariableCosts},
		{"emission_factor", f.EmissionFactor},
	} {
		if err := checkSeq(name, c.param, c.v, T); err != nil {
			return err
		}
	}
	if err := checkSeq(name, "fixed_costs", f.FixedCosts, P); err != nil {
		return err
	}
	for k, v := range f.Custom {
		if err := checkSeq(name, "custom."+k, v, T); err != nil {
			return err
		}
	}
	if f.NominalCapacity != nil && f.Investment != nil {
		return errs.Config(name, "nominal_capacity and investment are exclusive")
	}
	if f.NominalCapacity != nil && *f.NominalCapacity < 0 {
		return errs.Config(name, "nominal_capacity %v is negative", *f.NominalCapacity)
	}
	if f.Fix.IsSet() && (f.Min.IsSet() || f.Max.IsSet()) {
		return errs.Config(name, "fix excludes min and max")
	}
	if f.Integer && f.NonConvex != nil {
		return errs.Config(name, "integer excludes nonconvex")
	}
	minV := sequence.MustResolve(f.Min, T)
	maxV, _ := sequence.ResolveOr(f.Max, 1, T)
	for t := 0; t < T; t++ {
		if minV[t] > maxV[t] {
			return errs.Config(name, "min[%d] = %v exceeds max[%d] = %v", t, minV[t], t, maxV[t])
		}
		if minV[t] < 0 {
			return errs.Config(name, "min[%d] = %v is negative", t, minV[t])
		}
	}
	if !f.Bounded() {
		switch {
		case f.Max.IsSet(), f.Fix.IsSet():
			return errs.Config(name, "max and fix require nominal_capacity or investment")
		case f.FullLoadTimeMax != nil, f.FullLoadTimeMin != nil:
			return errs.Config(name, "full load time limits require nominal_capacity or investment")
		case f.PositiveGradient != nil, f.NegativeGradient != nil:
			return errs.Config(name, "gradient limits require nominal_capacity or investment")
		case f.NonConvex != nil:
			return errs.Config(name, "nonconvex requires nominal_capacity or investment")
		case f.FixedCosts.IsSet():
			return errs.Config(name, "fixed_costs require nominal_capacity")
		}
	}
	for _, g := range []struct {
		param string
		grad  *Gradient
	}{{"positive_gradient", f.PositiveGradient}, {"negative_gradient", f.NegativeGradient}} {
		if g.grad == nil {
			continue
		}
		if !g.grad.Ub.IsSet() {
			return errs.MissingParameter(name, g.param+".ub")
		}
		if err := checkSeq(name, g.param+".ub", g.grad.Ub, T); err != nil {
			return err
		}
		if err := checkSeq(name, g.param+".costs", g.grad.Costs, T); err != nil {
			return err
		}
	}
	if nc := f.NonConvex; nc != nil {
		if nc.InitialStatus != 0 && nc.InitialStatus != 1 {
			return errs.Config(name, "initial_status must be 0 or 1, got %d", nc.InitialStatus)
		}
		if nc.MinimumUptime < 0 || nc.MinimumDowntime < 0 {
			return errs.Config(name, "minimum up and down times must be nonnegative")
		}
		for _, c := range []struct {
			param string
			v     sequence.Value
		}{
			{"startup_costs", nc.StartupCosts}, {"shutdown_costs", nc.ShutdownCosts},
			{"activity_costs", nc.ActivityCosts}, {"inactivity_costs", nc.InactivityCosts},
		} {
			if err := checkSeq(name, c.param, c.v, T); err != nil {
				return err
			}
		}
		if f.Investment != nil && math.IsInf(f.Investment.CapacityBound(P), 1) {
			return errs.Config(name, "nonconvex flow with investment requires a finite investment maximum")
		}
	}
	if f.Lifetime < 0 || f.Age < 0 {
		return errs.Config(name, "lifetime and age must be nonnegative")
	}
	if f.Investment != nil {
		if err := validateInvestment(name, f.Investment, P, multi); err != nil {
			return err
		}
	}
	return nil
}

func validateInvestment(name string, inv *Investment, P int, multi bool) error {
	if !inv.EPCosts.IsSet() {
		return errs.MissingParameter(name, "ep_costs")
	}
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{
		{"ep_costs", inv.EPCosts}, {"offset", inv.Offset}, {"minimum", inv.Minimum},
		{"maximum", inv.Maximum}, {"fixed_costs", inv.FixedCosts},
	} {
		if err := checkSeq(name, "investment."+c.param, c.v, P); err != nil {
			return err
		}
	}
	if inv.Existing < 0 {
		return errs.Config(name, "existing capacity %v is negative", inv.Existing)
	}
	if inv.Offset.IsSet() && !inv.NonConvex {
		return errs.Config(name, "investment offset requires nonconvex investment")
	}
	for p := 0; p < P; p++ {
		lo, hi := inv.Minimum.At(p), inv.MaximumAt(p)
		if lo < 0 {
			return errs.Config(name, "investment minimum[%d] = %v is negative", p, lo)
		}
		if lo > hi {
			return errs.Config(name, "investment minimum[%d] = %v exceeds maximum %v", p, lo, hi)
		}
		if inv.NonConvex && math.IsInf(hi, 1) {
			return errs.Config(name, "nonconvex investment requires a finite maximum")
		}
	}
	if inv.OverallMinimum != nil && inv.OverallMaximum != nil && *inv.OverallMinimum > *inv.OverallMaximum {
		return errs.Config(name, "overall_minimum exceeds overall_maximum")
	}
	if multi {
		if inv.Lifetime <= 0 {
			return errs.MissingParameter(name, "investment.lifetime")
		}
		if inv.Age < 0 {
			return errs.Config(name, "investment age %d is negative", inv.Age)
		}
	} else if inv.OverallMaximum != nil || inv.OverallMinimum != nil {
		return errs.Config(name, "overall_maximum and overall_minimum are only allowed in multi-period models")
	}
	return nil
}

func validateConverter(c *Converter, T int) error {
	if len(c.Inputs) == 0 || len(c.Outputs) == 0 {
		return errs.Config(c.Label, "converter needs at least one input and one output")
	}
	connected := make(map[Node]bool)
	for _, p := range append(append([]Port{}, c.Inputs...), c.Outputs...) {
		connected[p.Node] = true
	}
	for _, n := range sortedNodes(c.ConversionFactors) {
		if !connected[n] {
			return errs.Config(c.Label, "conversion factor given for unconnected node %s", n.NodeLabel())
		}
		if err := checkSeq(c.Label, "conversion_factors."+n.NodeLabel(), c.ConversionFactors[n], T); err != nil {
			return err
		}
	}
	return nil
}

func validateStorage(s *GenericStorage, T, P int, multi bool) error {
	if len(s.Inputs) != 1 || len(s.Outputs) != 1 {
		return errs.Config(s.Label, "storage needs exactly one input and one output, got %d and %d", len(s.Inputs), len(s.Outputs))
	}
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{
		{"loss_rate", s.LossRate}, {"fixed_losses_relative", s.FixedLossesRelative},
		{"fixed_losses_absolute", s.FixedLossesAbsolute}, {"inflow_conversion_factor", s.InflowConversionFactor},
		{"outflow_conversion_factor", s.OutflowConversionFactor}, {"min_storage_level", s.MinStorageLevel},
		{"max_storage_level", s.MaxStorageLevel}, {"storage_costs", s.StorageCosts},
	} {
		if err := checkSeq(s.Label, c.param, c.v, T); err != nil {
			return err
		}
	}
	if err := checkSeq(s.Label, "fixed_costs", s.FixedCosts, P); err != nil {
		return err
	}
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{{"outflow_conversion_factor", s.OutflowConversionFactor}, {"inflow_conversion_factor", s.InflowConversionFactor}} {
		for t := 0; t < T; t++ {
			if c.v.IsSet() && c.v.At(t) <= 0 {
				return errs.Config(s.Label, "%s[%d] must be positive", c.param, t)
			}
		}
	}
	if s.NominalCapacity != nil && s.Investment != nil {
		return errs.Config(s.Label, "nominal_capacity must be unset when investment is given")
	}
	if s.NominalCapacity == nil && s.Investment == nil {
		return errs.MissingParameter(s.Label, "nominal_capacity")
	}
	if s.NominalCapacity != nil && *s.NominalCapacity < 0 {
		return errs.Config(s.Label, "nominal_capacity %v is negative", *s.NominalCapacity)
	}
	if s.InitialStorageLevel != nil {
		lo := s.MinStorageLevel.At(0)
		hi := 1.0
		if s.MaxStorageLevel.IsSet() {
			hi = s.MaxStorageLevel.At(0)
		}
		if *s.InitialStorageLevel < lo || *s.InitialStorageLevel > hi {
			return errs.Config(s.Label, "initial_storage_level %v outside [%v, %v]", *s.InitialStorageLevel, lo, hi)
		}
	}
	relations := 0
	for _, r := range []*float64{s.InvestRelationInputCapacity, s.InvestRelationOutputCapacity, s.InvestRelationInputOutput} {
		if r != nil {
			relations++
		}
	}
	if relations == 3 {
		return errs.Config(s.Label, "invest_relation_input_capacity, invest_relation_output_capacity and invest_relation_input_output overdetermine the investment")
	}
	if relations > 0 && s.Investment == nil {
		return errs.Config(s.Label, "invest relations require a storage investment")
	}
	in, out := s.Inputs[0].Flow, s.Outputs[0].Flow
	if s.InvestRelationInputCapacity != nil && in.NominalCapacity != nil {
		return errs.Config(s.Label, "invest_relation_input_capacity conflicts with a fixed input nominal_capacity")
	}
	if s.InvestRelationOutputCapacity != nil && out.NominalCapacity != nil {
		return errs.Config(s.Label, "invest_relation_output_capacity conflicts with a fixed output nominal_capacity")
	}
	if s.InvestRelationInputOutput != nil {
		if s.InvestRelationInputCapacity == nil && in.Investment == nil {
			return errs.Config(s.Label, "invest_relation_input_output requires an investment on the input flow")
		}
		if s.InvestRelationOutputCapacity == nil && out.Investment == nil {
			return errs.Config(s.Label, "invest_relation_input_output requires an investment on the output flow")
		}
	}
	if inv := s.Investment; inv != nil {
		if err := validateInvestment(s.Label, inv, P, multi); err != nil {
			return err
		}
		if s.FixedLossesAbsolute.Max() > 0 && inv.Existing == 0 && (inv.NonConvex || inv.Minimum.Max() <= 0) {
			return errs.Config(s.Label, "fixed_losses_absolute with investment needs existing capacity or a convex positive minimum")
		}
	}
	if s.Lifetime < 0 || s.Age < 0 {
		return errs.Config(s.Label, "lifetime and age must be nonnegative")
	}
	return nil
}

func validateOffsetConverter(c *OffsetConverter, T int) error {
	var ref *Flow
	ports := append(append([]Port{}, c.Inputs...), c.Outputs...)
	for _, p := range ports {
		if p.Flow.NonConvex != nil {
			if ref != nil {
				return errs.Config(c.Label, "exactly one flow may be nonconvex")
			}
			ref = p.Flow
		}
	}
	if ref == nil {
		return errs.Config(c.Label, "exactly one flow must be nonconvex")
	}
	for _, p := range ports {
		if p.Flow == ref {
			continue
		}
		if p.Flow.Investment != nil {
			return errs.Config(c.Label, "investment is only allowed on the reference flow, not on the flow to %s", p.Node.NodeLabel())
		}
		slope, ok := c.Slopes[p.Node]
		if !ok {
			return errs.MissingParameter(c.Label, fmt.Sprintf("slopes[%s]", p.Node.NodeLabel()))
		}
		if err := checkSeq(c.Label, "slopes."+p.Node.NodeLabel(), slope, T); err != nil {
			return err
		}
		if err := checkSeq(c.Label, "offsets."+p.Node.NodeLabel(), c.Offsets[p.Node], T); err != nil {
			return err
		}
	}
	return nil
}

// OffsetReference returns the reference port of an offset converter.
func (c *OffsetConverter) OffsetReference() (Port, bool) {
	for _, p := range append(append([]Port{}, c.Inputs...), c.Outputs...) {
		if p.Flow != nil && p.Flow.NonConvex != nil {
			return p, true
		}
	}
	return Port{}, false
}

func validateCHP(c *GenericCHP, T int) error {
	for _, p := range []Port{c.Fuel, c.Electrical, c.Heat} {
		if p.Node == nil || p.Flow == nil {
			return errs.Config(c.Label, "chp needs fuel, electrical and heat ports")
		}
	}
	required := []struct {
		param string
		v     sequence.Value
	}{
		{"H_L_FG_share_max", c.HLFGShareMax}, {"P_max_woDH", c.PMaxWoDH}, {"P_min_woDH", c.PMinWoDH},
		{"Eta_el_max_woDH", c.EtaElMaxWoDH}, {"Eta_el_min_woDH", c.EtaElMinWoDH}, {"Q_CW_min", c.QCWMin},
		{"Beta", c.Beta},
	}
	for _, r := range required {
		if !r.v.IsSet() {
			return errs.MissingParameter(c.Label, r.param)
		}
		if err := checkSeq(c.Label, r.param, r.v, T); err != nil {
			return err
		}
	}
	if err := checkSeq(c.Label, "H_L_FG_share_min", c.HLFGShareMin, T); err != nil {
		return err
	}
	for t := 0; t < T; t++ {
		if c.PMaxWoDH.At(t) <= c.PMinWoDH.At(t) {
			return errs.Config(c.Label, "P_max_woDH[%d] must exceed P_min_woDH", t)
		}
		if c.EtaElMaxWoDH.At(t) <= 0 || c.EtaElMinWoDH.At(t) <= 0 {
			return errs.Config(c.Label, "electrical efficiencies must be positive at %d", t)
		}
	}
	return nil
}

func validatePiecewise(c *PiecewiseLinearConverter) error {
	if len(c.Inputs) != 1 || len(c.Outputs) != 1 {
		return errs.Config(c.Label, "piecewise converter needs exactly one input and one output")
	}
	if c.ConversionFunction == nil {
		return errs.MissingParameter(c.Label, "conversion_function")
	}
	if len(c.InBreakpoints) < 2 {
		return errs.Config(c.Label, "at least two breakpoints are required")
	}
	for i := 1; i < len(c.InBreakpoints); i++ {
		if c.InBreakpoints[i] <= c.InBreakpoints[i-1] {
			return errs.Config(c.Label, "breakpoints must be strictly increasing")
		}
	}
	switch c.Encoding {
	case "", EncodingSOS2, EncodingCC, EncodingDCC, EncodingMC, EncodingINC:
	default:
		return errs.Config(c.Label, "unknown piecewise encoding %q", c.Encoding)
	}
	in := c.Inputs[0].Flow
	if in.NominalCapacity == nil {
		return errs.MissingParameter(c.Label, "input nominal_capacity")
	}
	if last := c.InBreakpoints[len(c.InBreakpoints)-1]; last < *in.NominalCapacity {
		return errs.Config(c.Label, "largest breakpoint %v is below the input nominal capacity %v", last, *in.NominalCapacity)
	}
	return nil
}

func validateSinkDSM(s *SinkDSM, T, P int, multi bool) error {
	if len(s.Inputs) != 1 {
		return errs.Config(s.Label, "demand response sink needs exactly one input")
	}
	switch s.Approach {
	case DSMOemof:
		if s.ShiftInterval <= 0 {
			return errs.MissingParameter(s.Label, "shift_interval")
		}
	case DSMDIW:
		if s.DelayTime <= 0 {
			return errs.MissingParameter(s.Label, "delay_time")
		}
	case DSMDLR:
		if len(s.DelayTimes) == 0 {
			return errs.MissingParameter(s.Label, "delay_time")
		}
		for _, h := range s.DelayTimes {
			if h <= 0 {
				return errs.Config(s.Label, "delay times must be positive, got %d", h)
			}
		}
		if s.ShiftEligibility && s.ShiftTime <= 0 {
			return errs.MissingParameter(s.Label, "shift_time")
		}
		if s.ActivateDayLimit && s.TDayLimit <= 0 {
			return errs.MissingParameter(s.Label, "t_dayLimit")
		}
	default:
		return errs.Config(s.Label, "unknown demand response approach %q", s.Approach)
	}
	if !s.ShiftEligibility && !s.ShedEligibility {
		return errs.Config(s.Label, "at least one of shift_eligibility and shed_eligibility must be true")
	}
	if s.Efficiency <= 0 || s.Efficiency > 1 {
		return errs.Config(s.Label, "efficiency %v must be in (0, 1]", s.Efficiency)
	}
	if !s.Demand.IsSet() {
		return errs.MissingParameter(s.Label, "demand")
	}
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{
		{"demand", s.Demand}, {"capacity_up", s.CapacityUp}, {"capacity_down", s.CapacityDown},
		{"cost_dsm_up", s.CostDSMUp}, {"cost_dsm_down_shift", s.CostDSMDownShift},
		{"cost_dsm_down_shed", s.CostDSMDownShed},
	} {
		if err := checkSeq(s.Label, c.param, c.v, T); err != nil {
			return err
		}
	}
	for _, c := range []struct {
		param string
		v     sequence.Value
	}{
		{"max_demand", s.MaxDemand}, {"max_capacity_up", s.MaxCapacityUp},
		{"max_capacity_down", s.MaxCapacityDown}, {"fixed_costs", s.FixedCosts},
	} {
		if err := checkSeq(s.Label, c.param, c.v, P); err != nil {
			return err
		}
	}
	if !s.MaxDemand.IsSet() {
		return errs.MissingParameter(s.Label, "max_demand")
	}
	if s.Investment == nil {
		if !s.MaxCapacityUp.IsSet() {
			return errs.MissingParameter(s.Label, "max_capacity_up")
		}
		if !s.MaxCapacityDown.IsSet() {
			return errs.MissingParameter(s.Label, "max_capacity_down")
		}
		return nil
	}
	if s.MaxCapacityUp.IsSet() || s.MaxCapacityDown.IsSet() {
		return errs.Config(s.Label, "max_capacity_up and max_capacity_down must be unset with investment")
	}
	return validateInvestment(s.Label, s.Investment, P, multi)
}

// sortedNodes returns the keys of a node map ordered by label.
func sortedNodes[V any](m map[Node]V) []Node {
	out := make([]Node, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeLabel() < out[j].NodeLabel() })
	return out
}
