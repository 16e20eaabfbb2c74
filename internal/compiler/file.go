package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/enmod/internal/sequence"
)

// Seq is a scalar-or-list model parameter.
type Seq struct {
	set    bool
	scalar *float64
	series []float64
}

// UnmarshalJSON accepts a number or a list of numbers.
func (s *Seq) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*s = Seq{set: true, scalar: &f}
		return nil
	}
	var fs []float64
	if err := json.Unmarshal(b, &fs); err != nil {
		return fmt.Errorf("expected a number or a list of numbers, got %s", b)
	}
	*s = Seq{set: true, series: fs}
	return nil
}

// Value converts s into a sequence value. An absent parameter stays unset.
func (s *Seq) Value() sequence.Value {
	switch {
	case s == nil || !s.set:
		return sequence.Value{}
	case s.scalar != nil:
		return sequence.Scalar(*s.scalar)
	}
	return sequence.Of(s.series...)
}

type fileGradient struct {
	Ub    *Seq `json:"ub"`
	Costs *Seq `json:"costs"`
}

type fileNonConvex struct {
	StartupCosts     *Seq `json:"startup_costs"`
	ShutdownCosts    *Seq `json:"shutdown_costs"`
	ActivityCosts    *Seq `json:"activity_costs"`
	InactivityCosts  *Seq `json:"inactivity_costs"`
	MinimumUptime    int  `json:"minimum_uptime"`
	MinimumDowntime  int  `json:"minimum_downtime"`
	MaximumStartups  *int `json:"maximum_startups"`
	MaximumShutdowns *int `json:"maximum_shutdowns"`
	InitialStatus    int  `json:"initial_status"`
}

type fileInvestment struct {
	EPCosts        *Seq               `json:"ep_costs"`
	Offset         *Seq               `json:"offset"`
	Minimum        *Seq               `json:"minimum"`
	Maximum        *Seq               `json:"maximum"`
	Existing       float64            `json:"existing"`
	Age            int                `json:"age"`
	Lifetime       int                `json:"lifetime"`
	InterestRate   *float64           `json:"interest_rate"`
	OverallMaximum *float64           `json:"overall_maximum"`
	OverallMinimum *float64           `json:"overall_minimum"`
	FixedCosts     *Seq               `json:"fixed_costs"`
	NonConvex      bool               `json:"nonconvex"`
	Keywords       []string           `json:"keywords"`
	Custom         map[string]float64 `json:"custom"`
}

type fileFlow struct {
	NominalCapacity  *float64        `json:"nominal_capacity"`
	Investment       *fileInvestment `json:"investment"`
	Min              *Seq            `json:"min"`
	Max              *Seq            `json:"max"`
	Fix              *Seq            `json:"fix"`
	VariableCosts    *Seq            `json:"variable_costs"`
	FullLoadTimeMax  *float64        `json:"full_load_time_max"`
	FullLoadTimeMin  *float64        `json:"full_load_time_min"`
	PositiveGradient *fileGradient   `json:"positive_gradient"`
	NegativeGradient *fileGradient   `json:"negative_gradient"`
	Integer          bool            `json:"integer"`
	NonConvex        *fileNonConvex  `json:"nonconvex"`
	FixedCosts       *Seq            `json:"fixed_costs"`
	Lifetime         int             `json:"lifetime"`
	Age              int             `json:"age"`
	EmissionFactor   *Seq            `json:"emission_factor"`
	Keywords         []string        `json:"keywords"`
	Custom           map[string]*Seq `json:"custom"`
}

type fileCHPPort struct {
	Bus  string    `json:"bus"`
	Flow *fileFlow `json:"flow"`
}

type fileNode struct {
	Kind    string               `json:"kind"`
	Inputs  map[string]*fileFlow `json:"inputs"`
	Outputs map[string]*fileFlow `json:"outputs"`

	Balanced *bool `json:"balanced"`

	ConversionFactors map[string]*Seq `json:"conversion_factors"`
	Slopes            map[string]*Seq `json:"slopes"`
	Offsets           map[string]*Seq `json:"offsets"`

	NominalCapacity              *float64        `json:"nominal_capacity"`
	Investment                   *fileInvestment `json:"investment"`
	InitialStorageLevel          *float64        `json:"initial_storage_level"`
	LossRate                     *Seq            `json:"loss_rate"`
	FixedLossesRelative          *Seq            `json:"fixed_losses_relative"`
	FixedLossesAbsolute          *Seq            `json:"fixed_losses_absolute"`
	InflowConversionFactor       *Seq            `json:"inflow_conversion_factor"`
	OutflowConversionFactor      *Seq            `json:"outflow_conversion_factor"`
	MinStorageLevel              *Seq            `json:"min_storage_level"`
	MaxStorageLevel              *Seq            `json:"max_storage_level"`
	InvestRelationInputCapacity  *float64        `json:"invest_relation_input_capacity"`
	InvestRelationOutputCapacity *float64        `json:"invest_relation_output_capacity"`
	InvestRelationInputOutput    *float64        `json:"invest_relation_input_output"`
	StorageCosts                 *Seq            `json:"storage_costs"`
	Lifetime                     int             `json:"lifetime"`
	Age                          int             `json:"age"`
	FixedCosts                   *Seq            `json:"fixed_costs"`

	Fuel         *fileCHPPort `json:"fuel"`
	Electrical   *fileCHPPort `json:"electrical"`
	Heat         *fileCHPPort `json:"heat"`
	HLFGShareMax *Seq         `json:"h_l_fg_share_max"`
	HLFGShareMin *Seq         `json:"h_l_fg_share_min"`
	PMaxWoDH     *Seq         `json:"p_max_wo_dh"`
	PMinWoDH     *Seq         `json:"p_min_wo_dh"`
	EtaElMaxWoDH *Seq         `json:"eta_el_max_wo_dh"`
	EtaElMinWoDH *Seq         `json:"eta_el_min_wo_dh"`
	QCWMin       *Seq         `json:"q_cw_min"`
	Beta         *Seq         `json:"beta"`
	BackPressure bool         `json:"back_pressure"`

	InBreakpoints  []float64 `json:"in_breakpoints"`
	OutBreakpoints []float64 `json:"out_breakpoints"`
	Encoding       string    `json:"encoding"`

	Approach             string   `json:"approach"`
	Demand               *Seq     `json:"demand"`
	CapacityUp           *Seq     `json:"capacity_up"`
	CapacityDown         *Seq     `json:"capacity_down"`
	MaxDemand            *Seq     `json:"max_demand"`
	MaxCapacityUp        *Seq     `json:"max_capacity_up"`
	MaxCapacityDown      *Seq     `json:"max_capacity_down"`
	ShiftInterval        int      `json:"shift_interval"`
	DelayTime            int      `json:"delay_time"`
	DelayTimes           []int    `json:"delay_times"`
	ShiftTime            int      `json:"shift_time"`
	ShedTime             int      `json:"shed_time"`
	CostDSMUp            *Seq     `json:"cost_dsm_up"`
	CostDSMDownShift     *Seq     `json:"cost_dsm_down_shift"`
	CostDSMDownShed      *Seq     `json:"cost_dsm_down_shed"`
	Efficiency           *float64 `json:"efficiency"`
	RecoveryTimeShift    int      `json:"recovery_time_shift"`
	RecoveryTimeShed     int      `json:"recovery_time_shed"`
	ShiftEligibility     *bool    `json:"shift_eligibility"`
	ShedEligibility      *bool    `json:"shed_eligibility"`
	ActivateYearLimit    bool     `json:"activate_yearly_limit"`
	ActivateDayLimit     bool     `json:"activate_day_limit"`
	NYearLimitShift      float64  `json:"n_yearly_limit_shift"`
	NYearLimitShed       float64  `json:"n_yearly_limit_shed"`
	TDayLimit            int      `json:"t_dayly_limit"`
	AddLogicalConstraint bool     `json:"add_logical_constraint"`
	Fixes                *bool    `json:"fixes"`
}

type filePeriod struct {
	Timesteps int `json:"timesteps"`
	Year      int `json:"year"`
}

type fileHorizon struct {
	Timesteps         int          `json:"timesteps"`
	Increment         float64      `json:"increment"`
	Start             string       `json:"start"`
	Index             []string     `json:"index"`
	Periods           []filePeriod `json:"periods"`
	Weighting         []float64    `json:"weighting"`
	EndYear           int          `json:"end_year"`
	DiscountRate      float64      `json:"discount_rate"`
	UseRemainingValue bool         `json:"use_remaining_value"`
}

type modelFile struct {
	Horizon fileHorizon          `json:"horizon"`
	Nodes   map[string]*fileNode `json:"nodes"`
}
