package compiler

import (
	"sort"
	"time"

	"cuelang.org/go/cue/token"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/horizon"
	"github.com/roach88/enmod/internal/sequence"
)

// builder turns a decoded model file into an energy system. Problems are
// collected in errs and building continues where it can.
type builder struct {
	file  *modelFile
	pos   map[string]token.Pos
	nodes map[string]energy.Node
	errs  ValidationErrors
}

func (b *builder) fail(code, field, label string, format string, args ...any) {
	b.errs = append(b.errs, newValidationError(code, field, b.pos[label], format, args...))
}

func (b *builder) build(order []string) *energy.EnergySystem {
	es := energy.New(b.horizon(b.file.Horizon))

	// Nodes are created before ports so that any node can refer to any
	// other regardless of declaration order.
	b.nodes = make(map[string]energy.Node, len(order))
	for _, label := range order {
		b.nodes[label] = b.newNode(label, b.file.Nodes[label])
	}
	for _, label := range order {
		b.fill(label, b.file.Nodes[label], b.nodes[label])
	}
	if len(b.errs) > 0 {
		return es
	}
	for _, label := range order {
		if err := es.Add(b.nodes[label]); err != nil {
			b.fail(ErrSystemRejected, "nodes."+label, label, "%v", err)
		}
	}
	return es
}

func (b *builder) horizon(fh fileHorizon) *horizon.Horizon {
	inc := fh.Increment
	if inc == 0 {
		inc = 1
	}

	var h *horizon.Horizon
	switch {
	case len(fh.Index) > 0:
		index := make([]time.Time, len(fh.Index))
		for i, s := range fh.Index {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				b.fail(ErrInvalidValue, "horizon.index", "", "entry %d: %v", i, err)
				return horizon.Uniform(0, inc)
			}
			index[i] = t
		}
		var err error
		if h, err = horizon.FromIndex(index); err != nil {
			b.fail(ErrInvalidValue, "horizon.index", "", "%v", err)
			return horizon.Uniform(0, inc)
		}
	case fh.Timesteps == 0:
		b.fail(ErrInvalidValue, "horizon", "", "horizon needs timesteps or an index")
		return horizon.Uniform(0, inc)
	case fh.Start != "":
		start, err := time.Parse(time.RFC3339, fh.Start)
		if err != nil {
			b.fail(ErrInvalidValue, "horizon.start", "", "%v", err)
			return horizon.Uniform(fh.Timesteps, inc)
		}
		step := time.Duration(inc * float64(time.Hour))
		index := make([]time.Time, fh.Timesteps)
		for i := range index {
			index[i] = start.Add(time.Duration(i) * step)
		}
		if h, err = horizon.FromIndex(index); err != nil {
			b.fail(ErrInvalidValue, "horizon.start", "", "%v", err)
			return horizon.Uniform(fh.Timesteps, inc)
		}
	default:
		h = horizon.Uniform(fh.Timesteps, inc)
	}

	if len(fh.Periods) > 0 {
		steps := make([]int, len(fh.Periods))
		years := make([]int, len(fh.Periods))
		for i, p := range fh.Periods {
			steps[i], years[i] = p.Timesteps, p.Year
		}
		periods, err := horizon.PeriodsFromLengths(steps, years)
		if err != nil {
			b.fail(ErrInvalidValue, "horizon.periods", "", "%v", err)
		}
		h.Periods = periods
	}
	h.Weighting = fh.Weighting
	h.EndYear = fh.EndYear
	h.DiscountRate = fh.DiscountRate
	h.UseRemainingValue = fh.UseRemainingValue
	return h
}

func (b *builder) newNode(label string, n *fileNode) energy.Node {
	switch energy.Kind(n.Kind) {
	case energy.KindBus:
		bus := energy.NewBus(label)
		if n.Balanced != nil {
			bus.Balanced = *n.Balanced
		}
		return bus
	case energy.KindSource:
		return &energy.Source{Label: label}
	case energy.KindSink:
		return &energy.Sink{Label: label}
	case energy.KindConverter:
		return &energy.Converter{Label: label}
	case energy.KindStorage:
		return &energy.GenericStorage{Label: label, Balanced: true}
	case energy.KindOffsetConverter:
		return &energy.OffsetConverter{Label: label}
	case energy.KindCHP:
		return &energy.GenericCHP{Label: label}
	case energy.KindPiecewiseConverter:
		return &energy.PiecewiseLinearConverter{Label: label}
	case energy.KindSinkDSM:
		return &energy.SinkDSM{Label: label}
	}
	return nil
}

// ref resolves a label named by field of node owner.
func (b *builder) ref(owner, field, label string) (energy.Node, bool) {
	n, ok := b.nodes[label]
	if !ok {
		b.fail(ErrMissingTarget, "nodes."+owner+"."+field, owner, "node %q does not exist", label)
	}
	return n, ok
}

func (b *builder) ports(owner, field string, flows map[string]*fileFlow) []energy.Port {
	labels := make([]string, 0, len(flows))
	for l := range flows {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	ports := make([]energy.Port, 0, len(labels))
	for _, l := range labels {
		n, ok := b.ref(owner, field+"."+l, l)
		if !ok {
			continue
		}
		ports = append(ports, energy.Port{Node: n, Flow: flow(flows[l])})
	}
	return ports
}

func (b *builder) keyed(owner, field string, m map[string]*Seq) map[energy.Node]sequence.Value {
	if len(m) == 0 {
		return nil
	}
	out := make(map[energy.Node]sequence.Value, len(m))
	for l, s := range m {
		if n, ok := b.ref(owner, field+"."+l, l); ok {
			out[n] = s.Value()
		}
	}
	return out
}

func (b *builder) fill(label string, fn *fileNode, node energy.Node) {
	switch n := node.(type) {
	case *energy.Bus:
		n.Inputs = b.ports(label, "inputs", fn.Inputs)
		n.Outputs = b.ports(label, "outputs", fn.Outputs)
	case *energy.Source:
		n.Outputs = b.ports(label, "outputs", fn.Outputs)
	case *energy.Sink:
		n.Inputs = b.ports(label, "inputs", fn.Inputs)
	case *energy.Converter:
		n.Inputs = b.ports(label, "inputs", fn.Inputs)
		n.Outputs = b.ports(label, "outputs", fn.Outputs)
		n.ConversionFactors = b.keyed(label, "conversion_factors", fn.ConversionFactors)
	case *energy.GenericStorage:
		b.fillStorage(label, fn, n)
	case *energy.OffsetConverter:
		n.Inputs = b.ports(label, "inputs", fn.Inputs)
		n.Outputs = b.ports(label, "outputs", fn.Outputs)
		n.Slopes = b.keyed(label, "slopes", fn.Slopes)
		n.Offsets = b.keyed(label, "offsets", fn.Offsets)
	case *energy.GenericCHP:
		b.fillCHP(label, fn, n)
	case *energy.PiecewiseLinearConverter:
		b.fillPiecewise(label, fn, n)
	case *energy.SinkDSM:
		b.fillDSM(label, fn, n)
	}
}

func (b *builder) fillStorage(label string, fn *fileNode, s *energy.GenericStorage) {
	s.Inputs = b.ports(label, "inputs", fn.Inputs)
	s.Outputs = b.ports(label, "outputs", fn.Outputs)
	s.NominalCapacity = fn.NominalCapacity
	s.Investment = investment(fn.Investment)
	s.InitialStorageLevel = fn.InitialStorageLevel
	s.LossRate = fn.LossRate.Value()
	s.FixedLossesRelative = fn.FixedLossesRelative.Value()
	s.FixedLossesAbsolute = fn.FixedLossesAbsolute.Value()
	s.InflowConversionFactor = fn.InflowConversionFactor.Value()
	s.OutflowConversionFactor = fn.OutflowConversionFactor.Value()
	s.MinStorageLevel = fn.MinStorageLevel.Value()
	s.MaxStorageLevel = fn.MaxStorageLevel.Value()
	if fn.Balanced != nil {
		s.Balanced = *fn.Balanced
	}
	s.InvestRelationInputCapacity = fn.InvestRelationInputCapacity
	s.InvestRelationOutputCapacity = fn.InvestRelationOutputCapacity
	s.InvestRelationInputOutput = fn.InvestRelationInputOutput
	s.StorageCosts = fn.StorageCosts.Value()
	s.Lifetime = fn.Lifetime
	s.Age = fn.Age
	s.FixedCosts = fn.FixedCosts.Value()
}

func (b *builder) chpPort(label, field string, p *fileCHPPort) energy.Port {
	if p == nil {
		b.fail(ErrInvalidValue, "nodes."+label+"."+field, label, "chp needs a %s port", field)
		return energy.Port{}
	}
	n, _ := b.ref(label, field+".bus", p.Bus)
	return energy.Port{Node: n, Flow: flow(p.Flow)}
}

func (b *builder) fillCHP(label string, fn *fileNode, c *energy.GenericCHP) {
	c.Fuel = b.chpPort(label, "fuel", fn.Fuel)
	c.Electrical = b.chpPort(label, "electrical", fn.Electrical)
	c.Heat = b.chpPort(label, "heat", fn.Heat)
	c.HLFGShareMax = fn.HLFGShareMax.Value()
	c.HLFGShareMin = fn.HLFGShareMin.Value()
	c.PMaxWoDH = fn.PMaxWoDH.Value()
	c.PMinWoDH = fn.PMinWoDH.Value()
	c.EtaElMaxWoDH = fn.EtaElMaxWoDH.Value()
	c.EtaElMinWoDH = fn.EtaElMinWoDH.Value()
	c.QCWMin = fn.QCWMin.Value()
	c.Beta = fn.Beta.Value()
	c.BackPressure = fn.BackPressure
}

var encodings = []energy.Encoding{
	energy.EncodingSOS2, energy.EncodingCC, energy.EncodingDCC, energy.EncodingMC, energy.EncodingINC,
}

func (b *builder) fillPiecewise(label string, fn *fileNode, c *energy.PiecewiseLinearConverter) {
	c.Inputs = b.ports(label, "inputs", fn.Inputs)
	c.Outputs = b.ports(label, "outputs", fn.Outputs)
	c.InBreakpoints = fn.InBreakpoints
	if len(fn.OutBreakpoints) != len(fn.InBreakpoints) {
		b.fail(ErrInvalidValue, "nodes."+label+".out_breakpoints", label,
			"%d output breakpoints for %d input breakpoints", len(fn.OutBreakpoints), len(fn.InBreakpoints))
		return
	}
	c.ConversionFunction = interpolate(fn.InBreakpoints, fn.OutBreakpoints)
	if fn.Encoding != "" {
		enc := energy.Encoding(fn.Encoding)
		valid := false
		for _, e := range encodings {
			valid = valid || e == enc
		}
		if !valid {
			b.fail(ErrInvalidValue, "nodes."+label+".encoding", label, "unknown encoding %q", fn.Encoding)
		}
		c.Encoding = enc
	}
}

// interpolate returns the piecewise-linear function through the points
// (xs[i], ys[i]). xs must be increasing. Outside the range the end
// segments are extended.
func interpolate(xs, ys []float64) func(float64) float64 {
	return func(x float64) float64 {
		switch len(xs) {
		case 0:
			return 0
		case 1:
			return ys[0]
		}
		i := sort.SearchFloat64s(xs, x)
		if i < len(xs) && xs[i] == x {
			return ys[i]
		}
		if i == 0 {
			i = 1
		} else if i == len(xs) {
			i = len(xs) - 1
		}
		x0, x1 := xs[i-1], xs[i]
		return ys[i-1] + (ys[i]-ys[i-1])*(x-x0)/(x1-x0)
	}
}

func (b *builder) fillDSM(label string, fn *fileNode, s *energy.SinkDSM) {
	approach := energy.DSMApproach(fn.Approach)
	switch approach {
	case energy.DSMOemof, energy.DSMDIW, energy.DSMDLR:
	default:
		b.fail(ErrInvalidValue, "nodes."+label+".approach", label, "unknown demand response approach %q", fn.Approach)
	}
	inputs := b.ports(label, "inputs", fn.Inputs)
	if len(inputs) != 1 {
		b.fail(ErrInvalidValue, "nodes."+label+".inputs", label, "sink_dsm needs exactly one input, got %d", len(inputs))
		return
	}
	*s = *energy.NewSinkDSM(label, approach, inputs[0])

	s.Demand = fn.Demand.Value()
	s.CapacityUp = fn.CapacityUp.Value()
	s.CapacityDown = fn.CapacityDown.Value()
	s.MaxDemand = fn.MaxDemand.Value()
	s.MaxCapacityUp = fn.MaxCapacityUp.Value()
	s.MaxCapacityDown = fn.MaxCapacityDown.Value()
	s.ShiftInterval = fn.ShiftInterval
	s.DelayTime = fn.DelayTime
	s.DelayTimes = fn.DelayTimes
	s.ShiftTime = fn.ShiftTime
	s.ShedTime = fn.ShedTime
	s.CostDSMUp = fn.CostDSMUp.Value()
	s.CostDSMDownShift = fn.CostDSMDownShift.Value()
	s.CostDSMDownShed = fn.CostDSMDownShed.Value()
	if fn.Efficiency != nil {
		s.Efficiency = *fn.Efficiency
	}
	s.RecoveryTimeShift = fn.RecoveryTimeShift
	s.RecoveryTimeShed = fn.RecoveryTimeShed
	if fn.ShiftEligibility != nil {
		s.ShiftEligibility = *fn.ShiftEligibility
	}
	if fn.ShedEligibility != nil {
		s.ShedEligibility = *fn.ShedEligibility
	}
	s.ActivateYearLimit = fn.ActivateYearLimit
	s.ActivateDayLimit = fn.ActivateDayLimit
	s.NYearLimitShift = fn.NYearLimitShift
	s.NYearLimitShed = fn.NYearLimitShed
	s.TDayLimit = fn.TDayLimit
	s.AddLogicalConstraint = fn.AddLogicalConstraint
	if fn.Fixes != nil {
		s.Fixes = *fn.Fixes
	}
	s.Investment = investment(fn.Investment)
	s.FixedCosts = fn.FixedCosts.Value()
}

func flow(f *fileFlow) *energy.Flow {
	if f == nil {
		return &energy.Flow{}
	}
	out := &energy.Flow{
		NominalCapacity:  f.NominalCapacity,
		Investment:       investment(f.Investment),
		Min:              f.Min.Value(),
		Max:              f.Max.Value(),
		Fix:              f.Fix.Value(),
		VariableCosts:    f.VariableCosts.Value(),
		FullLoadTimeMax:  f.FullLoadTimeMax,
		FullLoadTimeMin:  f.FullLoadTimeMin,
		PositiveGradient: gradient(f.PositiveGradient),
		NegativeGradient: gradient(f.NegativeGradient),
		Integer:          f.Integer,
		FixedCosts:       f.FixedCosts.Value(),
		Lifetime:         f.Lifetime,
		Age:              f.Age,
		EmissionFactor:   f.EmissionFactor.Value(),
		Keywords:         f.Keywords,
	}
	if nc := f.NonConvex; nc != nil {
		out.NonConvex = &energy.NonConvex{
			StartupCosts:     nc.StartupCosts.Value(),
			ShutdownCosts:    nc.ShutdownCosts.Value(),
			ActivityCosts:    nc.ActivityCosts.Value(),
			InactivityCosts:  nc.InactivityCosts.Value(),
			MinimumUptime:    nc.MinimumUptime,
			MinimumDowntime:  nc.MinimumDowntime,
			MaximumStartups:  nc.MaximumStartups,
			MaximumShutdowns: nc.MaximumShutdowns,
			InitialStatus:    nc.InitialStatus,
		}
	}
	if len(f.Custom) > 0 {
		out.Custom = make(map[string]sequence.Value, len(f.Custom))
		for k, v := range f.Custom {
			out.Custom[k] = v.Value()
		}
	}
	return out
}

func gradient(g *fileGradient) *energy.Gradient {
	if g == nil {
		return nil
	}
	return &energy.Gradient{Ub: g.Ub.Value(), Costs: g.Costs.Value()}
}

func investment(fi *fileInvestment) *energy.Investment {
	if fi == nil {
		return nil
	}
	return &energy.Investment{
		EPCosts:        fi.EPCosts.Value(),
		Offset:         fi.Offset.Value(),
		Minimum:        fi.Minimum.Value(),
		Maximum:        fi.Maximum.Value(),
		Existing:       fi.Existing,
		Age:            fi.Age,
		Lifetime:       fi.Lifetime,
		InterestRate:   fi.InterestRate,
		OverallMaximum: fi.OverallMaximum,
		OverallMinimum: fi.OverallMinimum,
		FixedCosts:     fi.FixedCosts.Value(),
		NonConvex:      fi.NonConvex,
		Keywords:       fi.Keywords,
		Custom:         fi.Custom,
	}
}
