package results

import (
	"context"
	"math"
	"testing"
	"time"

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

type plant struct {
	m       *model.Model
	gas, el *energy.Bus
	pp      *energy.Converter
	demand  *energy.Sink
}

func gasPlant(t *testing.T, h *horizon.Horizon) plant {
	t.Helper()
	es := energy.New(h)
	gas := &energy.Bus{Label: "gas"}
	el := energy.NewBus("el")
	pp := &energy.Converter{
		Label:             "pp",
		Inputs:            []energy.Port{energy.In(gas, &energy.Flow{})},
		Outputs:           []energy.Port{energy.Out(el, &energy.Flow{VariableCosts: sequence.Scalar(50)})},
		ConversionFactors: map[energy.Node]sequence.Value{el: sequence.Scalar(0.5)},
	}
	demand := &energy.Sink{
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(1), Fix: sequence.Of(10, 20, 15)})},
	}
	require.NoError(t, es.Add(gas, el, pp, demand))
	m, err := model.Build(es)
	require.NoError(t, err)
	return plant{m: m, gas: gas, el: el, pp: pp, demand: demand}
}

func solve(t *testing.T, m *model.Model, duals bool) *lp.Solution {
	t.Helper()
	sol, err := m.Solve(context.Background(), solver.New(), lp.Options{Duals: duals})
	require.NoError(t, err)
	return sol
}

// ============================================================================
// Extraction
// ============================================================================

func TestExtractKeysFlowsByEdge(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))
	sol := solve(t, p.m, false)

	r, err := Extract(p.m, sol)
	require.NoError(t, err)

	assert.InDelta(t, 2250, r.Objective, eps)
	assert.Equal(t, lp.StatusOptimal, r.Status)
	assert.Equal(t, []string{"0", "1", "2"}, r.TimeIndex)

	flow, err := r.Flow(p.pp, p.el)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10, 20, 15}, flow, eps)

	flow, err = r.Flow(p.gas, p.pp)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{20, 40, 30}, flow, eps)

	// Without duals requested no bus carries them.
	_, err = r.Sequence(energy.NodeKey(p.el), DualsName)
	assert.True(t, errs.IsResultIndexError(err))
}

func TestExtractAttachesBusDuals(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))
	sol := solve(t, p.m, true)

	r, err := Extract(p.m, sol)
	require.NoError(t, err)

	duals, err := r.Sequence(energy.NodeKey(p.el), DualsName)
	require.NoError(t, err)
	require.Len(t, duals, 3)
	for _, d := range duals {
		assert.InDelta(t, 50, math.Abs(d), eps)
	}
	_, err = r.Sequence(energy.NodeKey(p.gas), DualsName)
	assert.True(t, errs.IsResultIndexError(err))
}

func TestExtractRelabelsWithTimeIndex(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h, err := horizon.FromIndex([]time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)})
	require.NoError(t, err)
	p := gasPlant(t, h)

	r, err := Extract(p.m, solve(t, p.m, false))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T01:00:00Z", r.TimeIndex[1])
}

func TestExtractSuffixesExtraIndex(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))
	owner := energy.NodeKey(p.pp)
	_, err := p.m.AddVariable(model.VarRef{Owner: owner, Name: "slack", Step: 1, Period: -1, Extra: "2"}, lp.Continuous, 0, 0)
	require.NoError(t, err)
	_, err = p.m.AddVariable(model.VarRef{Owner: owner, Name: "cap", Step: -1, Period: -1}, lp.Continuous, 7, 7)
	require.NoError(t, err)

	r, err := Extract(p.m, solve(t, p.m, false))
	require.NoError(t, err)

	e := r.Entries[owner]
	require.NotNil(t, e)
	assert.Len(t, e.Sequences["slack_2"], 3)
	assert.InDelta(t, 7, e.Scalars["cap"], eps)
}

func TestExtractMissingValue(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))
	sol := solve(t, p.m, false)
	sol.Values = sol.Values[:2]

	_, err := Extract(p.m, sol)
	require.Error(t, err)
	assert.True(t, errs.IsResultIndexError(err))
}

func TestExtractNeedsSolution(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))

	_, err := Extract(p.m, nil)
	assert.True(t, errs.IsDependencyError(err))
}

// ============================================================================
// Views and meta data
// ============================================================================

func TestNodeViewAndMeta(t *testing.T) {
	p := gasPlant(t, horizon.Uniform(3, 1))
	solvedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r, err := Extract(p.m, solve(t, p.m, false),
		WithIDGenerator(NewFixedGenerator("run-1")),
		WithClock(func() time.Time { return solvedAt }))
	require.NoError(t, err)

	view := r.Node("pp")
	assert.Len(t, view, 2)
	assert.Contains(t, view, energy.Key{From: p.gas, To: p.pp})
	assert.Contains(t, view, energy.Key{From: p.pp, To: p.el})

	assert.Equal(t, "run-1", r.Meta.RunID)
	assert.Equal(t, "simplex", r.Meta.Solver)
	assert.Equal(t, solvedAt, r.Meta.SolvedAt)
	assert.InDelta(t, 2250, r.Meta.Objective, eps)
	assert.Equal(t, "(el, demand)", r.Keys()[0].String())
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{10, 20, 15})
	assert.InDelta(t, 45, s.Sum, eps)
	assert.InDelta(t, 15, s.Mean, eps)
	assert.InDelta(t, 10, s.Min, eps)
	assert.InDelta(t, 20, s.Max, eps)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestFixedGeneratorExhausts(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
}
