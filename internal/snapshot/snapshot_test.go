package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/horizon"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
	"github.com/roach88/enmod/internal/results"
	"github.com/roach88/enmod/internal/sequence"
	"github.com/roach88/enmod/internal/solver"
)

var solvedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func gasPlant() *energy.EnergySystem {
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
		Label:  "demand",
		Inputs: []energy.Port{energy.In(el, &energy.Flow{NominalCapacity: energy.Float(1), Fix: sequence.Of(10, 20, 15)})},
	}
	if err := es.Add(gas, el, pp, demand); err != nil {
		panic(err)
	}
	return es
}

func solved(t *testing.T, runID string) (*energy.EnergySystem, *results.Results) {
	t.Helper()
	es := gasPlant()
	m, err := model.Build(es)
	require.NoError(t, err)
	sol, err := m.Solve(context.Background(), solver.New(), lp.Options{Duals: true})
	require.NoError(t, err)
	r, err := results.Extract(m, sol,
		results.WithIDGenerator(results.NewFixedGenerator(runID)),
		results.WithClock(func() time.Time { return solvedAt }))
	require.NoError(t, err)
	return es, r
}

// ============================================================================
// Round trip
// ============================================================================

func TestEncodeDecodeRestore(t *testing.T) {
	es, r := solved(t, "run-1")

	s, err := New(es, r, WithDefinition(map[string]any{"horizon": map[string]any{"timesteps": 3.0}}))
	require.NoError(t, err)
	assert.Equal(t, []NodeRecord{{"gas", "bus"}, {"el", "bus"}, {"pp", "converter"}, {"demand", "sink"}}, s.Nodes)
	assert.Len(t, s.Edges, 3)

	data, err := Encode(s)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "run-1", decoded.RunID)
	assert.True(t, solvedAt.Equal(decoded.SolvedAt))
	assert.Equal(t, 3.0, decoded.Definition["horizon"].(map[string]any)["timesteps"])

	restored, err := Restore(decoded, es)
	require.NoError(t, err)
	pp, _ := es.Node("pp")
	el, _ := es.Node("el")
	flow, err := restored.Flow(pp, el)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 15}, roundAll(flow))
	duals, err := restored.Sequence(energy.NodeKey(el), results.DualsName)
	require.NoError(t, err)
	assert.Len(t, duals, 3)
	assert.Equal(t, lp.StatusOptimal, restored.Status)
	assert.Equal(t, r.Keys(), restored.Keys())
}

func TestRestoreRejectsForeignSystem(t *testing.T) {
	es, r := solved(t, "run-1")
	s, err := New(es, r)
	require.NoError(t, err)

	other := energy.New(horizon.Uniform(3, 1))
	require.NoError(t, other.Add(energy.NewBus("el")))
	_, err = Restore(s, other)
	assert.True(t, errs.IsConfigError(err))

	short := energy.New(horizon.Uniform(2, 1))
	_, err = Restore(s, short)
	assert.True(t, errs.IsBadSequenceLength(err))
}

func TestDecodeRejectsUnknownVersionAndFields(t *testing.T) {
	_, err := Decode([]byte(`{"version":"9","entries":[]}`))
	assert.True(t, errs.IsConfigError(err))

	_, err = Decode([]byte(`{"version":"1","colour":"red"}`))
	require.Error(t, err)
}

func TestContentHashIgnoresRunIdentity(t *testing.T) {
	es1, r1 := solved(t, "run-1")
	es2, r2 := solved(t, "run-2")
	s1, err := New(es1, r1)
	require.NoError(t, err)
	s2, err := New(es2, r2)
	require.NoError(t, err)
	s2.SolvedAt = solvedAt.Add(time.Hour)

	h1, err := ContentHash(s1)
	require.NoError(t, err)
	h2, err := ContentHash(s2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	s2.Objective++
	h3, err := ContentHash(s2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestNewNeedsInputs(t *testing.T) {
	_, err := New(nil, nil)
	assert.True(t, errs.IsDependencyError(err))
}

func roundAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(int64(x*1e6+0.5)) / 1e6
	}
	return out
}
