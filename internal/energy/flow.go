package energy

import (
	"math"

	"github.com/roach88/enmod/internal/sequence"
)

// Flow is the parameter set of one directed edge. A Flow value belongs to
// exactly one edge; the energy system binds it when the owning node is
// added.
type Flow struct {
	// NominalCapacity bounds the flow. Unset means unbounded.
	NominalCapacity *float64
	// Investment replaces NominalCapacity with an investment decision.
	Investment *Investment

	// Min, Max and Fix are relative to the (invested) capacity. Fix forces
	// the flow and excludes Min and Max.
	Min sequence.Value // default 0
	Max sequence.Value // default 1
	Fix sequence.Value

	VariableCosts sequence.Value

	// FullLoadTimeMax and FullLoadTimeMin bound Σ flow·Δt relative to
	// capacity.
	FullLoadTimeMax *float64
	FullLoadTimeMin *float64

	PositiveGradient *Gradient
	NegativeGradient *Gradient

	// Integer forces integer flow values.
	Integer bool

	// NonConvex attaches a binary status with on/off semantics.
	NonConvex *NonConvex

	// FixedCosts is a per-period cost applied to NominalCapacity.
	FixedCosts sequence.Value

	// Lifetime and Age retire a flow with fixed capacity in multi-period
	// models: the flow is zero from the first period starting at or after
	// Lifetime-Age years.
	Lifetime int
	Age      int

	// EmissionFactor is consumed by the emission limit helper.
	EmissionFactor sequence.Value

	// Keywords tag the flow for keyword-based helpers.
	Keywords []string

	// Custom holds numeric attributes for generic integral limits.
	Custom map[string]sequence.Value

	from Node
	to   Node
}

// From returns the source node of the edge carrying the flow.
func (f *Flow) From() Node { return f.from }

// To returns the target node of the edge carrying the flow.
func (f *Flow) To() Node { return f.to }

// HasKeyword reports whether the flow carries keyword.
func (f *Flow) HasKeyword(keyword string) bool {
	for _, k := range f.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Bounded reports whether the flow has a capacity, fixed or invested.
func (f *Flow) Bounded() bool {
	return f.NominalCapacity != nil || f.Investment != nil
}

// Gradient bounds the change of a flow between consecutive timesteps,
// relative to capacity, with an optional cost per unit of change.
type Gradient struct {
	Ub    sequence.Value
	Costs sequence.Value
}

// NonConvex configures the on/off behaviour of a flow.
type NonConvex struct {
	StartupCosts    sequence.Value
	ShutdownCosts   sequence.Value
	ActivityCosts   sequence.Value
	InactivityCosts sequence.Value

	MinimumUptime   int
	MinimumDowntime int

	// MaximumStartups and MaximumShutdowns cap the number of switching
	// events over the horizon.
	MaximumStartups  *int
	MaximumShutdowns *int

	// InitialStatus is the status before the first timestep (0 or 1).
	InitialStatus int
}

// NeedsStartup reports whether startup variables are required.
func (nc *NonConvex) NeedsStartup() bool {
	return nc.StartupCosts.IsSet() || nc.MaximumStartups != nil || nc.MinimumUptime > 0
}

// NeedsShutdown reports whether shutdown variables are required.
func (nc *NonConvex) NeedsShutdown() bool {
	return nc.ShutdownCosts.IsSet() || nc.MaximumShutdowns != nil || nc.MinimumDowntime > 0
}

// MaxUpDown returns max(MinimumUptime, MinimumDowntime).
func (nc *NonConvex) MaxUpDown() int {
	if nc.MinimumUptime > nc.MinimumDowntime {
		return nc.MinimumUptime
	}
	return nc.MinimumDowntime
}

// Investment turns a capacity into a per-period investment decision.
type Investment struct {
	// EPCosts is the equivalent periodical cost per unit of capacity.
	EPCosts sequence.Value
	// Offset is the fixed cost of a nonzero investment. Requires NonConvex.
	Offset sequence.Value

	Minimum sequence.Value // default 0
	Maximum sequence.Value // default +Inf

	Existing float64
	Age      int
	Lifetime int

	// InterestRate annualizes EPCosts in multi-period models. Unset uses
	// the horizon discount rate.
	InterestRate *float64

	OverallMaximum *float64
	OverallMinimum *float64

	// FixedCosts is a per-period cost on the total capacity.
	FixedCosts sequence.Value

	NonConvex bool

	// Keywords and Custom feed the aggregate investment helpers.
	Keywords []string
	Custom   map[string]float64
}

// MaximumAt returns the maximum for period p, +Inf when unset.
func (inv *Investment) MaximumAt(p int) float64 {
	if !inv.Maximum.IsSet() {
		return math.Inf(1)
	}
	return inv.Maximum.At(p)
}

// CapacityBound returns an upper bound on the total capacity over P
// periods: the existing capacity plus every period maximum, capped by the
// overall maximum. It is +Inf when neither bounds the investment.
func (inv *Investment) CapacityBound(P int) float64 {
	bound := inv.Existing
	for p := 0; p < P; p++ {
		bound += inv.MaximumAt(p)
	}
	if inv.OverallMaximum != nil && *inv.OverallMaximum < bound {
		bound = *inv.OverallMaximum
	}
	return bound
}

// HasKeyword reports whether the investment carries keyword.
func (inv *Investment) HasKeyword(keyword string) bool {
	for _, k := range inv.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for optional parameters.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional parameters.
func Int(v int) *int { return &v }
