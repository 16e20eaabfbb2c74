package energy

import (
	"github.com/roach88/enmod/internal/sequence"
)

// DSMApproach selects the demand-response formulation of a SinkDSM.
type DSMApproach string

const (
	// DSMOemof balances shifts inside fixed windows of ShiftInterval steps.
	DSMOemof DSMApproach = "oemof"
	// DSMDIW pairs every upshift with downshifts within DelayTime steps.
	DSMDIW DSMApproach = "DIW"
	// DSMDLR realizes shifts through explicit delay-indexed balancing
	// variables and fictitious demand-response storage levels.
	DSMDLR DSMApproach = "DLR"
)

// SinkDSM is a demand sink that can shift or shed part of its demand.
//
// Capacities are expressed as normalized envelopes (CapacityUp,
// CapacityDown) scaled by MaxCapacityUp/MaxCapacityDown in dispatch mode,
// or by the invested total when Investment is set. Demand is the normalized
// baseline profile scaled by MaxDemand per period.
type SinkDSM struct {
	Label  string
	Inputs []Port

	Approach DSMApproach

	Demand       sequence.Value
	CapacityUp   sequence.Value
	CapacityDown sequence.Value

	// MaxDemand is the peak demand per period.
	MaxDemand       sequence.Value
	MaxCapacityUp   sequence.Value
	MaxCapacityDown sequence.Value

	// ShiftInterval is the window length of the oemof approach.
	ShiftInterval int
	// DelayTime is the maximum shift delay of the DIW approach.
	DelayTime int
	// DelayTimes is the set of delays of the DLR approach.
	DelayTimes []int

	// ShiftTime and ShedTime bound the duration of a single shift or shed
	// event in timesteps (DIW, DLR).
	ShiftTime int
	ShedTime  int

	CostDSMUp        sequence.Value
	CostDSMDownShift sequence.Value
	CostDSMDownShed  sequence.Value

	// Efficiency applies to shifted energy.
	Efficiency float64

	RecoveryTimeShift int
	RecoveryTimeShed  int

	// Eligibility defaults to true for both; the New constructor sets them.
	ShiftEligibility bool
	ShedEligibility  bool

	ActivateYearLimit bool
	ActivateDayLimit  bool
	NYearLimitShift   float64
	NYearLimitShed    float64
	TDayLimit         int

	// AddLogicalConstraint forbids simultaneous up- and downshifts
	// beyond the larger of both capacities (DLR).
	AddLogicalConstraint bool

	// Fixes pins DLR shifts that could not be balanced before the end of
	// the horizon to zero.
	Fixes bool

	Investment *Investment
	FixedCosts sequence.Value
}

// NewSinkDSM returns a demand-response sink with the documented defaults:
// both eligibilities enabled, efficiency 1 and end-of-horizon fixes.
func NewSinkDSM(label string, approach DSMApproach, in Port) *SinkDSM {
	return &SinkDSM{
		Label:            label,
		Inputs:           []Port{in},
		Approach:         approach,
		Efficiency:       1,
		ShiftEligibility: true,
		ShedEligibility:  true,
		Fixes:            true,
	}
}

func (s *SinkDSM) NodeLabel() string { return s.Label }
func (s *SinkDSM) Kind() Kind        { return KindSinkDSM }
func (s *SinkDSM) InPorts() []Port   { return s.Inputs }
func (s *SinkDSM) OutPorts() []Port  { return nil }
func (*SinkDSM) sealed()             {}
