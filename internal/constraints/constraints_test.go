package constraints

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/horizon"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
	"github.com/roach88/enmod/internal/sequence"
	"github.com/roach88/enmod/internal/solver"
)

const eps = 1e-6

func solve(t *testing.T, m *model.Model) *lp.Solution {
	t.Helper()
	sol, err := m.Solve(context.Background(), solver.New(), lp.Options{})
	require.NoError(t, err)
	return sol
}

func flowAt(t *testing.T, m *model.Model, sol *lp.Solution, from, to energy.Node, i int) float64 {
	t.Helper()
	e, ok := m.System().Edge(from, to)
	require.True(t, ok)
	v, ok := m.FlowVar(e, i)
	require.True(t, ok)
	return sol.Values[v]
}

type dirtyClean struct {
	m            *model.Model
	el           *energy.Bus
	dirty, clean *energy.Source
}

// dirtyCleanSystem has a cheap emitting source and an expensive clean one
// serving a fixed demand of 10 per step over two steps.
func dirtyCleanSystem(t *testing.T) dirtyClean {
	t.Helper()
	es := energy.New(horizon.Uniform(2, 1))
	el := energy.NewBus("el")
	dirty := &energy.Source{
		Label: "dirty",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{
			VariableCosts:  sequence.Scalar(1),
			EmissionFactor: sequence.Scalar(2),
			Custom:         map[string]sequence.Value{"water": sequence.Scalar(0.5)},
		})},
	}
	clean := &energy.Source{
		Label:   "clean",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(3)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(10), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, dirty, clean, demand))
	m, err := model.Build(es)
	require.NoError(t, err)
	return dirtyClean{m: m, el: el, dirty: dirty, clean: clean}
}

// ============================================================================
// Integral limits
// ============================================================================

func TestEmissionLimitCapsWeightedFlow(t *testing.T) {
	s := dirtyCleanSystem(t)

	lim, err := EmissionLimit(s.m, nil, 24)
	require.NoError(t, err)
	assert.Equal(t, "integral_limit_emission_factor", lim.Name)

	sol := solve(t, s.m)
	assert.InDelta(t, 24, lim.Value(sol), eps)
	dirty := flowAt(t, s.m, sol, s.dirty, s.el, 0) + flowAt(t, s.m, sol, s.dirty, s.el, 1)
	assert.InDelta(t, 12, dirty, eps)
	assert.InDelta(t, 12*1+8*3, sol.Objective, eps)
}

func TestGenericIntegralLimitUsesCustomAttribute(t *testing.T) {
	s := dirtyCleanSystem(t)

	lim, err := GenericIntegralLimit(s.m, "water", nil, 2)
	require.NoError(t, err)

	sol := solve(t, s.m)
	assert.InDelta(t, 2, lim.Value(sol), eps)
}

func TestGenericIntegralLimitRequiresAttributeOnListedFlows(t *testing.T) {
	s := dirtyCleanSystem(t)
	e, ok := s.m.System().Edge(s.clean, s.el)
	require.True(t, ok)

	_, err := GenericIntegralLimit(s.m, "water", []*energy.Edge{e}, 2)
	assert.True(t, errs.IsRequirementError(err))
}

func TestGenericIntegralLimitRejectsForeignEdge(t *testing.T) {
	s := dirtyCleanSystem(t)
	other := dirtyCleanSystem(t)
	e, ok := other.m.System().Edge(other.dirty, other.el)
	require.True(t, ok)
	rows := len(s.m.Problem().Constraints())

	_, err := GenericIntegralLimit(s.m, "water", []*energy.Edge{e}, 2)
	require.True(t, errs.IsRequirementError(err))
	assert.Contains(t, err.Error(), "(dirty, el)")
	assert.Len(t, s.m.Problem().Constraints(), rows)
}

func TestHelpersNeedBuiltModel(t *testing.T) {
	_, err := EmissionLimit(nil, nil, 1)
	assert.True(t, errs.IsDependencyError(err))

	_, err = InvestmentLimit(&model.Model{}, 1)
	assert.True(t, errs.IsDependencyError(err))

	_, err = LimitActiveFlowCountByKeyword(nil, "chp", 0, 1)
	assert.True(t, errs.IsDependencyError(err))
}

// ============================================================================
// Investment limits
// ============================================================================

func investSystem(t *testing.T) (*model.Model, *energy.Source, *energy.Source, *energy.Bus) {
	t.Helper()
	es := energy.New(horizon.Uniform(1, 1))
	el := energy.NewBus("el")
	pv := &energy.Source{
		Label: "pv",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{Investment: &energy.Investment{
			EPCosts: sequence.Scalar(2),
			Custom:  map[string]float64{"area": 3},
		}})},
	}
	grid := &energy.Source{
		Label:   "grid",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(10)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(10), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, pv, grid, demand))
	m, err := model.Build(es)
	require.NoError(t, err)
	return m, pv, grid, el
}

func TestInvestmentLimitCapsSpending(t *testing.T) {
	m, pv, _, el := investSystem(t)

	lim, err := InvestmentLimit(m, 8)
	require.NoError(t, err)

	sol := solve(t, m)
	assert.InDelta(t, 8, lim.Value(sol), eps)
	assert.InDelta(t, 4, flowAt(t, m, sol, pv, el, 0), eps)
}

func TestAdditionalInvestmentFlowLimitUsesKeywordWeight(t *testing.T) {
	m, pv, _, el := investSystem(t)

	_, err := AdditionalInvestmentFlowLimit(m, "area", 6)
	require.NoError(t, err)

	sol := solve(t, m)
	assert.InDelta(t, 2, flowAt(t, m, sol, pv, el, 0), eps)

	_, err = AdditionalInvestmentFlowLimit(m, "height", 1)
	assert.True(t, errs.IsRequirementError(err))
}

func TestInvestmentLimitWithoutInvestments(t *testing.T) {
	s := dirtyCleanSystem(t)

	_, err := InvestmentLimit(s.m, 1)
	assert.True(t, errs.IsRequirementError(err))
}

// ============================================================================
// Coupling
// ============================================================================

func TestEquateVariablesTiesFlows(t *testing.T) {
	s := dirtyCleanSystem(t)
	dirty, _ := s.m.System().Edge(s.dirty, s.el)
	clean, _ := s.m.System().Edge(s.clean, s.el)
	v1, _ := s.m.FlowVar(clean, 0)
	v2, _ := s.m.FlowVar(dirty, 0)

	row, err := EquateVariables(s.m, v1, v2, 0.25, "")
	require.NoError(t, err)
	assert.Equal(t, "equate_flow[clean,el,0]_flow[dirty,el,0]", s.m.Problem().Constraints()[row].Name)

	sol := solve(t, s.m)
	assert.InDelta(t, 2, sol.Values[v1], eps)
	assert.InDelta(t, 8, sol.Values[v2], eps)
}

func TestEquateFlowsPerTimestep(t *testing.T) {
	s := dirtyCleanSystem(t)
	dirty, _ := s.m.System().Edge(s.dirty, s.el)
	clean, _ := s.m.System().Edge(s.clean, s.el)

	rows, err := EquateFlows(s.m, []*energy.Edge{dirty}, []*energy.Edge{clean}, 1, "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	sol := solve(t, s.m)
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 5, flowAt(t, s.m, sol, s.dirty, s.el, i), eps)
		assert.InDelta(t, 5, flowAt(t, s.m, sol, s.clean, s.el, i), eps)
	}
}

func TestSharedLimitBoundsWeightedStorageContent(t *testing.T) {
	es := energy.New(horizon.Uniform(2, 1))
	el := energy.NewBus("el")
	newStorage := func(label string) *energy.GenericStorage {
		s := energy.NewGenericStorage(label, energy.In(el, &energy.Flow{}), energy.Out(el, &energy.Flow{}))
		s.NominalCapacity = energy.Float(10)
		s.Balanced = false
		return s
	}
	a, b := newStorage("a"), newStorage("b")
	// Filling storage earns a bonus, so the shared limit binds.
	a.StorageCosts = sequence.Scalar(-1)
	b.StorageCosts = sequence.Scalar(-1)
	grid := &energy.Source{
		Label:   "grid",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{NominalCapacity: energy.Float(100)})},
	}
	require.NoError(t, es.Add(el, a, b, grid))
	m, err := model.Build(es)
	require.NoError(t, err)

	vars, err := SharedLimit(m, "storage_content", "shared", []energy.Node{a, b}, []float64{1, 1}, 0, 12)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "shared[0]", m.Problem().Variable(vars[0]).Name)

	sol := solve(t, m)
	assert.InDelta(t, 12, sol.Values[vars[0]], eps)
	assert.InDelta(t, 12, sol.Values[vars[1]], eps)

	_, err = SharedLimit(m, "storage_content", "broken", []energy.Node{a}, []float64{1, 2}, 0, 1)
	assert.True(t, errs.IsConfigError(err))
	_, err = SharedLimit(m, "storage_content", "missing", []energy.Node{grid}, []float64{1}, 0, 1)
	assert.True(t, errs.IsRequirementError(err))
}

func TestLimitActiveFlowCountByKeyword(t *testing.T) {
	es := energy.New(horizon.Uniform(1, 1))
	el := energy.NewBus("el")
	unit := func(label string, cost float64) *energy.Source {
		return &energy.Source{
			Label: label,
			Outputs: []energy.Port{energy.Out(el, &energy.Flow{
				NominalCapacity: energy.Float(10),
				VariableCosts:   sequence.Scalar(cost),
				NonConvex:       &energy.NonConvex{},
				Keywords:        []string{"engine"},
			})},
		}
	}
	u1, u2 := unit("u1", 1), unit("u2", 2)
	backup := &energy.Source{
		Label:   "backup",
		Outputs: []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(100)})},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(15), Fix: sequence.Scalar(1)})},
	}
	require.NoError(t, es.Add(el, u1, u2, backup, demand))
	m, err := model.Build(es)
	require.NoError(t, err)

	count, err := LimitActiveFlowCountByKeyword(m, "engine", 0, 1)
	require.NoError(t, err)

	sol := solve(t, m)
	assert.InDelta(t, 1, sol.Values[count[0]], eps)
	assert.InDelta(t, 10, flowAt(t, m, sol, u1, el, 0), eps)
	assert.InDelta(t, 0, flowAt(t, m, sol, u2, el, 0), eps)
	assert.InDelta(t, 10+5*100, sol.Objective, eps)

	_, err = LimitActiveFlowCountByKeyword(m, "turbine", 0, 1)
	assert.True(t, errs.IsRequirementError(err))
}
