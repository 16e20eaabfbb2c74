package model

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/horizon"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/sequence"
	"github.com/roach88/enmod/internal/solver"
)

const eps = 1e-6

func build(t *testing.T, es *energy.EnergySystem) *Model {
	t.Helper()
	m, err := Build(es, WithBackend(solver.New()))
	require.NoError(t, err)
	return m
}

func solve(t *testing.T, es *energy.EnergySystem) (*Model, *lp.Solution) {
	t.Helper()
	m := build(t, es)
	sol, err := m.Solve(context.Background(), solver.New(), lp.Options{})
	require.NoError(t, err)
	return m, sol
}

func value(t *testing.T, m *Model, sol *lp.Solution, ref VarRef) float64 {
	t.Helper()
	v, ok := m.Var(ref)
	require.True(t, ok, "no variable %s", ref.Label())
	x, ok := sol.Value(v)
	require.True(t, ok)
	return x
}

func flowValues(t *testing.T, m *Model, sol *lp.Solution, from, to energy.Node) []float64 {
	t.Helper()
	e, ok := m.System().Edge(from, to)
	require.True(t, ok)
	out := make([]float64, m.Horizon().T())
	for i := range out {
		v, ok := m.FlowVar(e, i)
		require.True(t, ok)
		out[i] = sol.Values[v]
	}
	return out
}

func assertSeq(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "index %d", i)
	}
}

// ============================================================================
// Dispatch
// ============================================================================

func gasPlant() (*energy.EnergySystem, *energy.Converter, *energy.Bus, *energy.Bus) {
	es := energy.New(horizon.Uniform(3, 1))
	gas := &energy.Bus{Label: "gas"}
	el := energy.NewBus("el")
	pp := &energy.Converter{
		Label:             "pp",
		Inputs:            []energy.Port{energy.In(gas, &energy.Flow{})},
		Outputs:           []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(50)})},
		ConversionFactors: map[energy.Node]sequence.Value{el: sequence.Scalar(0.5)},
	}
	demand := &energy.Sink{
		Label: "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{
			NominalCapacity: energy.Float(1),
			Fix:             sequence.Of(10, 20, 15),
		})},
	}
	if err := es.Add(gas, el, pp, demand); err != nil {
		panic(err)
	}
	return es, pp, gas, el
}

func TestGasPlantMeetsFixedDemand(t *testing.T) {
	es, pp, gas, el := gasPlant()
	m, sol := solve(t, es)

	assert.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 2250, sol.Objective, eps)
	assertSeq(t, []float64{10, 20, 15}, flowValues(t, m, sol, pp, el))
	assertSeq(t, []float64{20, 40, 30}, flowValues(t, m, sol, gas, pp))

	// The gas bus is unbalanced and gets no rows.
	assert.Equal(t, []*energy.Bus{el}, m.BalancedBuses())
	assert.Len(t, m.BusBalance(el), 3)
	assert.Nil(t, m.BusBalance(gas))
}

func TestBuildNamesVariablesByEntity(t *testing.T) {
	es, pp, _, el := gasPlant()
	m := build(t, es)

	v, ok := m.Var(step(energy.Key{From: pp, To: el}, "flow", 2))
	require.True(t, ok)
	assert.Equal(t, "flow[pp,el,2]", m.Problem().Variable(v).Name)
	assert.Equal(t, "flow", m.Ref(v).Name)
	assert.Equal(t, 2, m.Ref(v).Step)

	_, ok = m.Problem().LookupConstraint("relation[pp,gas,el,1]")
	assert.True(t, ok)
	_, ok = m.Problem().LookupConstraint("bus_balance[el,0]")
	assert.True(t, ok)
}

func TestBuildQuotesLabelsContainingDelimiters(t *testing.T) {
	es := energy.New(horizon.Uniform(1, 1))
	xy, x := &energy.Bus{Label: "x,y"}, &energy.Bus{Label: "x"}
	z := &energy.Sink{Label: "z", Inputs: []energy.Port{energy.In(xy, &energy.Flow{})}}
	yz := &energy.Sink{Label: "y,z", Inputs: []energy.Port{energy.In(x, &energy.Flow{})}}
	br := &energy.Sink{Label: "a]", Inputs: []energy.Port{energy.In(x, &energy.Flow{})}}
	require.NoError(t, es.Add(xy, x, z, yz, br))

	m := build(t, es)

	first, ok := m.Var(step(energy.Key{From: xy, To: z}, "flow", 0))
	require.True(t, ok)
	second, ok := m.Var(step(energy.Key{From: x, To: yz}, "flow", 0))
	require.True(t, ok)
	assert.Equal(t, `flow["x,y",z,0]`, m.Problem().Variable(first).Name)
	assert.Equal(t, `flow[x,"y,z",0]`, m.Problem().Variable(second).Name)

	third, ok := m.Var(step(energy.Key{From: x, To: br}, "flow", 0))
	require.True(t, ok)
	assert.Equal(t, `flow[x,"a]",0]`, m.Problem().Variable(third).Name)
	assert.Equal(t, `relation["x,y","a]",1]`, conName("relation", energy.NodeKey(xy), "a]", 1))
}

func TestBuildFreezesSystem(t *testing.T) {
	es, _, _, _ := gasPlant()
	build(t, es)

	assert.True(t, es.Frozen())
	err := es.Add(energy.NewBus("late"))
	assert.True(t, errs.IsConfigError(err))
}

func TestWriteLPContainsObjectiveAndRows(t *testing.T) {
	es, _, _, _ := gasPlant()
	m := build(t, es)

	var buf bytes.Buffer
	require.NoError(t, m.WriteLP(&buf))
	out := buf.String()
	assert.Contains(t, out, "bus_balance")
	assert.Contains(t, out, "relation")
}

func TestBatteryShavesPeak(t *testing.T) {
	es := energy.New(horizon.Uniform(3, 1))
	el := energy.NewBus("el")
	grid := &energy.Source{
		Label:   "grid",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Of(10, 100, 10)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(1), Fix: sequence.Scalar(1)})},
	}
	battery := energy.NewGenericStorage("battery", energy.In(el, &energy.Flow{}), energy.Out(el, &energy.Flow{}))
	battery.NominalCapacity = energy.Float(2)
	battery.InitialStorageLevel = energy.Float(0)
	require.NoError(t, es.Add(el, grid, demand, battery))

	m, sol := solve(t, es)

	assert.Less(t, sol.Objective, 120.0)
	assert.InDelta(t, 30, sol.Objective, eps)

	charge := flowValues(t, m, sol, el, battery)
	discharge := flowValues(t, m, sol, battery, el)
	assert.GreaterOrEqual(t, charge[0]-discharge[0], 1-eps)
	assert.InDelta(t, 1, discharge[1]-charge[1], eps)
	assert.InDelta(t, 0, flowValues(t, m, sol, grid, el)[1], eps)

	owner := energy.NodeKey(battery)
	initial := value(t, m, sol, scalar(owner, "init_content"))
	last := value(t, m, sol, step(owner, "storage_content", 2))
	assert.InDelta(t, initial, last, eps)
}

func TestStorageLossesDrainContent(t *testing.T) {
	es := energy.New(horizon.Uniform(2, 1))
	el := energy.NewBus("el")
	store := energy.NewGenericStorage("store", energy.In(el, &energy.Flow{}), energy.Out(el, &energy.Flow{}))
	store.NominalCapacity = energy.Float(10)
	store.InitialStorageLevel = energy.Float(0.5)
	store.Balanced = false
	store.LossRate = sequence.Scalar(0.1)
	require.NoError(t, es.Add(el, store))

	m, sol := solve(t, es)
	owner := energy.NodeKey(store)

	assert.InDelta(t, 5, value(t, m, sol, scalar(owner, "init_content")), eps)
	assert.InDelta(t, 4.5, value(t, m, sol, step(owner, "storage_content", 0)), eps)
	assert.InDelta(t, 4.05, value(t, m, sol, step(owner, "storage_content", 1)), eps)
}

// ============================================================================
// Investment
// ============================================================================

func TestPVInvestmentBalancesAnnuityAndSavings(t *testing.T) {
	es := energy.New(horizon.Uniform(5, 1))
	el := energy.NewBus("el")
	grid := &energy.Source{
		Label:   "grid",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(0.30)})},
	}
	feedIn := &energy.Sink{
		Label:  "feed_in",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{VariableCosts: sequence.Scalar(-0.06)})},
	}
	pv := &energy.Source{
		Label: "pv",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{
			Fix:        sequence.Of(0, 0.5, 1, 0.5, 0),
			Investment: &energy.Investment{EPCosts: sequence.Scalar(0.5)},
		})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(1), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, grid, feedIn, pv, demand))

	m, sol := solve(t, es)

	owner := energy.Key{From: pv, To: el}
	assert.InDelta(t, 1, value(t, m, sol, scalar(owner, "invest")), eps)
	assert.InDelta(t, 1, value(t, m, sol, scalar(owner, "total")), eps)
	assert.InDelta(t, 1.4, sol.Objective, eps)
	assertSeq(t, []float64{0, 0.5, 1, 0.5, 0}, flowValues(t, m, sol, pv, el))

	require.Len(t, m.Investments(), 1)
	assert.False(t, m.Investments()[0].Implicit)
}

func TestMultiPeriodRetiresInvestmentAfterLifetime(t *testing.T) {
	periods, err := horizon.PeriodsFromLengths([]int{1, 1, 1}, []int{0, 10, 20})
	require.NoError(t, err)
	h := horizon.Uniform(3, 1)
	h.Periods = periods

	es := energy.New(h)
	el := energy.NewBus("el")
	plant := &energy.Source{
		Label: "plant",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{
			Investment: &energy.Investment{
				EPCosts:  sequence.Scalar(1),
				Minimum:  sequence.Of(100, 0, 0),
				Maximum:  sequence.Of(100, 1000, 1000),
				Lifetime: 20,
			},
		})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(50), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, plant, demand))

	m, sol := solve(t, es)
	owner := energy.Key{From: plant, To: el}
	at := func(name string, p int) float64 { return value(t, m, sol, period(owner, name, p)) }

	assert.InDelta(t, 100, at("invest", 0), eps)
	assert.InDelta(t, 0, at("old_end", 0), eps)
	assert.InDelta(t, 0, at("old_end", 1), eps)
	assert.InDelta(t, 100, at("old_end", 2), eps)
	assert.InDelta(t, at("invest", 0)+at("invest", 1)+at("invest", 2)-100, at("total", 2), eps)
	assert.GreaterOrEqual(t, at("total", 2), 50-eps)
}

func TestNonConvexInvestmentPaysOffset(t *testing.T) {
	es := energy.New(horizon.Uniform(1, 1))
	el := energy.NewBus("el")
	cheap := &energy.Source{
		Label: "cheap",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{
			VariableCosts: sequence.Scalar(1),
			Investment: &energy.Investment{
				EPCosts:   sequence.Scalar(1),
				Offset:    sequence.Scalar(100),
				Maximum:   sequence.Scalar(50),
				NonConvex: true,
			},
		})},
	}
	expensive := &energy.Source{
		Label:   "expensive",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(5)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(10), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, cheap, expensive, demand))

	m, sol := solve(t, es)
	owner := energy.Key{From: cheap, To: el}

	// Building costs 100 + 10 + 10 > 50, so the expensive source wins.
	assert.InDelta(t, 0, value(t, m, sol, scalar(owner, "invest_status")), eps)
	assert.InDelta(t, 50, sol.Objective, eps)
}

func TestAnnuityAndPresentValue(t *testing.T) {
	assert.InDelta(t, 5, annuity(100, 20, 0), eps)
	assert.InDelta(t, 0, annuity(100, 0, 0.05), eps)
	assert.InDelta(t, 8.024258719, annuity(100, 20, 0.05), 1e-8)

	assert.InDelta(t, 10, pvf(10, 0), eps)
	assert.InDelta(t, 0, pvf(0, 0.05), eps)
	want := 0.0
	for k := 1; k <= 10; k++ {
		want += math.Pow(1.05, -float64(k))
	}
	assert.InDelta(t, want, pvf(10, 0.05), 1e-9)
}

// ============================================================================
// Combined heat and power
// ============================================================================

func TestCHPAlpha(t *testing.T) {
	a0, a1, err := chpAlpha(80, 200, 0.43, 0.53)
	require.NoError(t, err)
	assert.InDelta(t, 1.59427, a1, 1e-5)
	assert.InDelta(t, 58.5049, a0, 1e-4)
}

func TestCHPBackPressureFollowsHeatDemand(t *testing.T) {
	es := energy.New(horizon.Uniform(3, 1))
	gas := &energy.Bus{Label: "gas"}
	el := &energy.Bus{Label: "el"}
	heat := energy.NewBus("heat")
	chp := &energy.GenericCHP{
		Label:        "chp",
		Fuel:         energy.In(gas, &energy.Flow{VariableCosts: sequence.Scalar(1)}),
		Electrical:   energy.Out(el, &energy.Flow{}),
		Heat:         energy.Out(heat, &energy.Flow{}),
		HLFGShareMax: sequence.Scalar(0),
		PMaxWoDH:     sequence.Scalar(200),
		PMinWoDH:     sequence.Scalar(80),
		EtaElMaxWoDH: sequence.Scalar(0.53),
		EtaElMinWoDH: sequence.Scalar(0.43),
		QCWMin:       sequence.Scalar(0),
		Beta:         sequence.Scalar(0),
		BackPressure: true,
	}
	demand := &energy.Sink{
		Label:  "heat_demand",
		Inputs: []energy.Port{energy.In(heat, &energy.Flow{NominalCapacity: energy.Float(1), Fix: sequence.Of(0, 120, 150)})},
	}
	require.NoError(t, es.Add(gas, el, heat, chp, demand))

	m, sol := solve(t, es)
	owner := energy.NodeKey(chp)
	at := func(name string, i int) float64 { return value(t, m, sol, step(owner, name, i)) }

	assert.InDelta(t, 0, at("Y", 0), eps)
	assert.InDelta(t, 0, at("P", 0), eps)
	assert.InDelta(t, 0, at("Q", 0), eps)
	assert.InDelta(t, 0, at("H_F", 0), eps)

	for _, i := range []int{1, 2} {
		assert.InDelta(t, 1, at("Y", i), eps)
		assert.InDelta(t, at("H_F", i), at("P", i)+at("Q", i), 1e-5)
	}
	assert.InDelta(t, 120, at("Q", 1), eps)
	assert.InDelta(t, 150, at("Q", 2), eps)
}

// ============================================================================
// Demand response
// ============================================================================

func TestSinkDSMOemofBalancesWindows(t *testing.T) {
	es := energy.New(horizon.Uniform(6, 1))
	el := energy.NewBus("el")
	grid := &energy.Source{
		Label:   "grid",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Of(1, 3, 1, 3, 1, 3)})},
	}
	dsm := energy.NewSinkDSM("dsm", energy.DSMOemof, energy.In(el, &energy.Flow{}))
	dsm.Demand = sequence.Scalar(1)
	dsm.MaxDemand = sequence.Scalar(1)
	dsm.CapacityUp = sequence.Scalar(0.5)
	dsm.CapacityDown = sequence.Scalar(0.5)
	dsm.MaxCapacityUp = sequence.Scalar(1)
	dsm.MaxCapacityDown = sequence.Scalar(1)
	dsm.ShiftInterval = 2
	dsm.ShedEligibility = false
	require.NoError(t, es.Add(el, grid, dsm))

	m, sol := solve(t, es)
	owner := energy.NodeKey(dsm)
	at := func(name string, i int) float64 { return value(t, m, sol, step(owner, name, i)) }

	for start := 0; start < 6; start += 2 {
		up := at("dsm_up", start) + at("dsm_up", start+1)
		down := at("dsm_do_shift", start) + at("dsm_do_shift", start+1)
		assert.InDelta(t, up, down, eps, "window %d", start)
	}
	total := 0.0
	for _, v := range flowValues(t, m, sol, el, dsm) {
		total += v
	}
	assert.InDelta(t, 6, total, eps)
	// Half a unit moves from every expensive step to the cheap one before it.
	assert.InDelta(t, 9, sol.Objective, eps)
}

// ============================================================================
// Errors and extension points
// ============================================================================

func TestSolveInfeasibleModel(t *testing.T) {
	es := energy.New(horizon.Uniform(1, 1))
	el := energy.NewBus("el")
	src := &energy.Source{
		Label:   "src",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{NominalCapacity: energy.Float(5)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(10), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, src, demand))
	m := build(t, es)

	_, err := m.Solve(context.Background(), solver.New(), lp.Options{})
	require.Error(t, err)
	assert.True(t, errs.IsInfeasible(err))
}

func TestSolveWithoutBackend(t *testing.T) {
	es, _, _, _ := gasPlant()
	m := build(t, es)

	_, err := m.Solve(context.Background(), nil, lp.Options{})
	assert.True(t, errs.IsDependencyError(err))
}

func TestBuildRejectsInvestRelationOnFixedFlow(t *testing.T) {
	es := energy.New(horizon.Uniform(1, 1))
	el := energy.NewBus("el")
	store := energy.NewGenericStorage("store",
		energy.In(el, &energy.Flow{}),
		energy.Out(el, &energy.Flow{NominalCapacity: energy.Float(1)}))
	store.Investment = &energy.Investment{EPCosts: sequence.Scalar(1)}
	store.InvestRelationOutputCapacity = energy.Float(0.5)
	require.NoError(t, es.Add(el, store))

	_, err := Build(es)
	require.Error(t, err)
	assert.True(t, errs.IsConfigError(err))
}

func TestAddVariableRejectsDuplicates(t *testing.T) {
	es, pp, _, el := gasPlant()
	m := build(t, es)

	_, err := m.AddVariable(step(energy.Key{From: pp, To: el}, "flow", 0), lp.Continuous, 0, 1)
	assert.True(t, errs.IsConfigError(err))

	ref := scalar(energy.NodeKey(pp), "extra")
	v, err := m.AddVariable(ref, lp.Continuous, 0, 1)
	require.NoError(t, err)
	got, ok := m.Var(ref)
	require.True(t, ok)
	assert.Equal(t, v, got)
}
