package energy

import (
	"github.com/roach88/enmod/internal/sequence"
)

// Kind tags a node variant. The model assembler dispatches on it.
type Kind string

const (
	KindBus                Kind = "bus"
	KindSource             Kind = "source"
	KindSink               Kind = "sink"
	KindConverter          Kind = "converter"
	KindStorage            Kind = "storage"
	KindOffsetConverter    Kind = "offset_converter"
	KindCHP                Kind = "chp"
	KindPiecewiseConverter Kind = "piecewise_converter"
	KindSinkDSM            Kind = "sink_dsm"
)

// Node is a labeled graph vertex. The set of implementations is closed.
type Node interface {
	NodeLabel() string
	Kind() Kind
	InPorts() []Port
	OutPorts() []Port
	sealed()
}

// Port attaches a flow between a component and a neighbouring node.
type Port struct {
	Node Node
	Flow *Flow
}

// In is shorthand for a Port literal.
func In(n Node, f *Flow) Port { return Port{Node: n, Flow: f} }

// Out is shorthand for a Port literal.
func Out(n Node, f *Flow) Port { return Port{Node: n, Flow: f} }

// Bus is a balance node. When Balanced, inflows equal outflows at every
// timestep; otherwise the bus is a free slack.
type Bus struct {
	Label    string
	Balanced bool
	Inputs   []Port
	Outputs  []Port
}

// NewBus returns a balanced bus.
func NewBus(label string) *Bus { return &Bus{Label: label, Balanced: true} }

func (b *Bus) NodeLabel() string { return b.Label }
func (b *Bus) Kind() Kind        { return KindBus }
func (b *Bus) InPorts() []Port   { return b.Inputs }
func (b *Bus) OutPorts() []Port  { return b.Outputs }
func (*Bus) sealed()             {}

// Source has outgoing flows only.
type Source struct {
	Label   string
	Outputs []Port
}

func (s *Source) NodeLabel() string { return s.Label }
func (s *Source) Kind() Kind        { return KindSource }
func (s *Source) InPorts() []Port   { return nil }
func (s *Source) OutPorts() []Port  { return s.Outputs }
func (*Source) sealed()             {}

// Sink has incoming flows only.
type Sink struct {
	Label  string
	Inputs []Port
}

func (s *Sink) NodeLabel() string { return s.Label }
func (s *Sink) Kind() Kind        { return KindSink }
func (s *Sink) InPorts() []Port   { return s.Inputs }
func (s *Sink) OutPorts() []Port  { return nil }
func (*Sink) sealed()             {}

// Converter relates every input to every output by fixed conversion
// factors: flow_in·η_out = flow_out·η_in. Factors are keyed by the
// neighbouring node and default to 1.
type Converter struct {
	Label             string
	Inputs            []Port
	Outputs           []Port
	ConversionFactors map[Node]sequence.Value
}

func (c *Converter) NodeLabel() string { return c.Label }
func (c *Converter) Kind() Kind        { return KindConverter }
func (c *Converter) InPorts() []Port   { return c.Inputs }
func (c *Converter) OutPorts() []Port  { return c.Outputs }
func (*Converter) sealed()             {}

// GenericStorage stores energy between timesteps.
type GenericStorage struct {
	Label   string
	Inputs  []Port
	Outputs []Port

	// NominalCapacity is the storage capacity. Exclusive with Investment.
	NominalCapacity *float64
	Investment      *Investment

	// InitialStorageLevel fixes the content before the first timestep,
	// relative to capacity. Unset leaves it to the optimizer.
	InitialStorageLevel *float64

	// LossRate is the relative loss of content per hour.
	LossRate sequence.Value
	// FixedLossesRelative is a loss per hour relative to capacity.
	FixedLossesRelative sequence.Value
	// FixedLossesAbsolute is an absolute loss per hour.
	FixedLossesAbsolute sequence.Value

	InflowConversionFactor  sequence.Value // default 1
	OutflowConversionFactor sequence.Value // default 1
	MinStorageLevel         sequence.Value // default 0
	MaxStorageLevel         sequence.Value // default 1

	// Balanced equates the final content with the initial content.
	Balanced bool

	InvestRelationInputCapacity  *float64
	InvestRelationOutputCapacity *float64
	InvestRelationInputOutput    *float64

	// StorageCosts is a cost per unit of content per timestep.
	StorageCosts sequence.Value

	Lifetime int
	Age      int

	// FixedCosts is a per-period cost on the nominal capacity.
	FixedCosts sequence.Value
}

// NewGenericStorage returns a balanced storage between the given ports.
func NewGenericStorage(label string, in, out Port) *GenericStorage {
	return &GenericStorage{Label: label, Inputs: []Port{in}, Outputs: []Port{out}, Balanced: true}
}

func (s *GenericStorage) NodeLabel() string { return s.Label }
func (s *GenericStorage) Kind() Kind        { return KindStorage }
func (s *GenericStorage) InPorts() []Port   { return s.Inputs }
func (s *GenericStorage) OutPorts() []Port  { return s.Outputs }
func (*GenericStorage) sealed()             {}

// OffsetConverter relates companion flows affinely to its single NonConvex
// reference flow: flow_f = flow_ref·slope_f + status_nominal·offset_f.
// Slopes and offsets are keyed by the companion's neighbouring node.
type OffsetConverter struct {
	Label   string
	Inputs  []Port
	Outputs []Port
	Slopes  map[Node]sequence.Value
	Offsets map[Node]sequence.Value
}

func (c *OffsetConverter) NodeLabel() string { return c.Label }
func (c *OffsetConverter) Kind() Kind        { return KindOffsetConverter }
func (c *OffsetConverter) InPorts() []Port   { return c.Inputs }
func (c *OffsetConverter) OutPorts() []Port  { return c.Outputs }
func (*OffsetConverter) sealed()             {}

// GenericCHP is an extraction or back-pressure combined heat and power
// unit with on/off status.
type GenericCHP struct {
	Label      string
	Fuel       Port
	Electrical Port
	Heat       Port

	// Flue gas loss shares relative to fuel input.
	HLFGShareMax sequence.Value
	HLFGShareMin sequence.Value

	// Electrical operating range without district heating.
	PMaxWoDH     sequence.Value
	PMinWoDH     sequence.Value
	EtaElMaxWoDH sequence.Value
	EtaElMinWoDH sequence.Value

	// QCWMin is the minimal cooling water heat loss.
	QCWMin sequence.Value
	// Beta is the power loss index for heat extraction.
	Beta sequence.Value

	BackPressure bool
}

func (c *GenericCHP) NodeLabel() string { return c.Label }
func (c *GenericCHP) Kind() Kind        { return KindCHP }
func (c *GenericCHP) InPorts() []Port   { return []Port{c.Fuel} }
func (c *GenericCHP) OutPorts() []Port  { return []Port{c.Electrical, c.Heat} }
func (*GenericCHP) sealed()             {}

// Encoding selects the MILP formulation of a piecewise-linear function.
type Encoding string

const (
	EncodingSOS2 Encoding = "SOS2"
	EncodingCC   Encoding = "CC"
	EncodingDCC  Encoding = "DCC"
	EncodingMC   Encoding = "MC"
	EncodingINC  Encoding = "INC"
)

// PiecewiseLinearConverter maps its input to its output through a
// piecewise-linear function sampled at InBreakpoints.
type PiecewiseLinearConverter struct {
	Label   string
	Inputs  []Port
	Outputs []Port

	InBreakpoints      []float64
	ConversionFunction func(float64) float64
	Encoding           Encoding
}

func (c *PiecewiseLinearConverter) NodeLabel() string { return c.Label }
func (c *PiecewiseLinearConverter) Kind() Kind        { return KindPiecewiseConverter }
func (c *PiecewiseLinearConverter) InPorts() []Port   { return c.Inputs }
func (c *PiecewiseLinearConverter) OutPorts() []Port  { return c.Outputs }
func (*PiecewiseLinearConverter) sealed()             {}

// OutBreakpoints evaluates the conversion function at every breakpoint.
func (c *PiecewiseLinearConverter) OutBreakpoints() []float64 {
	out := make([]float64, len(c.InBreakpoints))
	for i, x := range c.InBreakpoints {
		out[i] = c.ConversionFunction(x)
	}
	return out
}
