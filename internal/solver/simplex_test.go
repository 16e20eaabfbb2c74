package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
)

const eps = 1e-7

var inf = math.Inf(1)

func addVar(t *testing.T, p *lp.Problem, name string, d lp.Domain, lo, hi float64) lp.Var {
	t.Helper()
	v, err := p.AddVariable(name, d, lo, hi)
	require.NoError(t, err)
	return v
}

func addCon(t *testing.T, p *lp.Problem, name string, lhs *lp.Expr, s lp.Sense, rhs float64) int {
	t.Helper()
	i, err := p.AddConstraint(name, lhs, s, lp.Const(rhs))
	require.NoError(t, err)
	return i
}

// ============================================================================
// Linear programs
// ============================================================================

func TestSolveLPOptimumAndDuals(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, inf)
	y := addVar(t, p, "y", lp.Continuous, 0, inf)
	c1 := addCon(t, p, "c1", lp.V(x, 1).Add(y, 2), lp.LE, 4)
	c2 := addCon(t, p, "c2", lp.V(x, 3).Add(y, 1), lp.LE, 6)
	p.SetObjective(lp.V(x, -1).Add(y, -1))

	sol, err := New().Solve(context.Background(), p, lp.Options{Duals: true})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)

	assert.InDelta(t, -2.8, sol.Objective, eps)
	assert.InDelta(t, 1.6, sol.Values[x], eps)
	assert.InDelta(t, 1.2, sol.Values[y], eps)

	d1, ok := sol.Dual(c1)
	require.True(t, ok)
	d2, _ := sol.Dual(c2)
	assert.InDelta(t, -0.4, d1, eps)
	assert.InDelta(t, -0.2, d2, eps)
}

func TestSolveFreeVariableWithNegativeRHS(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, math.Inf(-1), inf)
	c := addCon(t, p, "floor", lp.V(x, 1), lp.GE, -5)
	p.SetObjective(lp.V(x, 1))

	sol, err := New().Solve(context.Background(), p, lp.Options{Duals: true})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, -5, sol.Values[x], eps)

	d, _ := sol.Dual(c)
	assert.InDelta(t, 1, d, eps)
}

func TestSolveBalanceDualIsMarginalCost(t *testing.T) {
	p := lp.NewProblem()
	cheap := addVar(t, p, "cheap", lp.Continuous, 0, 6)
	dear := addVar(t, p, "dear", lp.Continuous, 0, inf)
	bal := addCon(t, p, "balance", lp.Sum(cheap, dear), lp.EQ, 10)
	p.SetObjective(lp.V(cheap, 2).Add(dear, 5))

	sol, err := New().Solve(context.Background(), p, lp.Options{Duals: true})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)

	assert.InDelta(t, 6, sol.Values[cheap], eps)
	assert.InDelta(t, 4, sol.Values[dear], eps)
	assert.InDelta(t, 32, sol.Objective, eps)
	d, _ := sol.Dual(bal)
	assert.InDelta(t, 5, d, eps)
}

func TestSolveUpperBoundOnlyVariable(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, math.Inf(-1), 3)
	p.SetObjective(lp.V(x, -1))

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 3, sol.Values[x], eps)
}

func TestSolveObjectiveConstant(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 1, 2)
	p.SetObjective(lp.V(x, 1).AddConst(10))

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 11, sol.Objective, eps)
}

func TestSolveInfeasible(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, inf)
	addCon(t, p, "hi", lp.V(x, 1), lp.LE, 1)
	addCon(t, p, "lo", lp.V(x, 1), lp.GE, 2)
	p.SetObjective(lp.V(x, 1))

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	assert.Equal(t, lp.StatusInfeasible, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestSolveInconsistentBounds(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, 1)
	p.SetBounds(x, 2, 1)

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	assert.Equal(t, lp.StatusInfeasible, sol.Status)
}

func TestSolveUnbounded(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, inf)
	addCon(t, p, "min", lp.V(x, 1), lp.GE, 1)
	p.SetObjective(lp.V(x, -1))

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	assert.Equal(t, lp.StatusUnbounded, sol.Status)
}

func TestSolveRedundantEquality(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, inf)
	y := addVar(t, p, "y", lp.Continuous, 0, inf)
	addCon(t, p, "a", lp.Sum(x, y), lp.EQ, 2)
	addCon(t, p, "b", lp.V(x, 2).Add(y, 2), lp.EQ, 4)
	p.SetObjective(lp.V(x, 1).Add(y, 3))

	sol, err := New().Solve(context.Background(), p, lp.Options{Duals: true})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 2, sol.Values[x], eps)
	assert.InDelta(t, 2, sol.Objective, eps)
}

// ============================================================================
// Mixed-integer programs
// ============================================================================

func TestSolveMILP(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Integer, 0, inf)
	y := addVar(t, p, "y", lp.Integer, 0, inf)
	addCon(t, p, "c1", lp.V(x, 6).Add(y, 4), lp.LE, 24)
	addCon(t, p, "c2", lp.V(x, 1).Add(y, 2), lp.LE, 6)
	p.SetObjective(lp.V(x, -5).Add(y, -4))

	sol, err := New().Solve(context.Background(), p, lp.Options{})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.Equal(t, 4.0, sol.Values[x])
	assert.Equal(t, 0.0, sol.Values[y])
	assert.InDelta(t, -20, sol.Objective, eps)
	assert.Greater(t, sol.Nodes, 1)
}

func TestSolveBinaryStatusWithFixedCost(t *testing.T) {
	// A unit with activity costs only runs when the load needs it.
	p := lp.NewProblem()
	gen := addVar(t, p, "gen", lp.Continuous, 0, inf)
	on := addVar(t, p, "on", lp.Binary, 0, 1)
	imp := addVar(t, p, "import", lp.Continuous, 0, 3)
	addCon(t, p, "cap", lp.V(gen, 1).Add(on, -10), lp.LE, 0)
	bal := addCon(t, p, "balance", lp.Sum(gen, imp), lp.EQ, 5)
	p.SetObjective(lp.V(gen, 1).Add(on, 4).Add(imp, 2))

	sol, err := New().Solve(context.Background(), p, lp.Options{Duals: true})
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.Equal(t, 1.0, sol.Values[on])
	assert.InDelta(t, 5, sol.Values[gen], eps)
	assert.InDelta(t, 9, sol.Objective, eps)

	d, ok := sol.Dual(bal)
	require.True(t, ok)
	assert.InDelta(t, 1, d, eps)
}

func TestSolveNodeLimitWithoutIncumbent(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Integer, 0, 10)
	addCon(t, p, "c", lp.V(x, 2), lp.LE, 7)
	p.SetObjective(lp.V(x, -1))

	sol, err := New().Solve(context.Background(), p, lp.Options{MaxNodes: 1})
	require.NoError(t, err)
	assert.Equal(t, lp.StatusAborted, sol.Status)
}

func TestSolveCanceledContext(t *testing.T) {
	p := lp.NewProblem()
	x := addVar(t, p, "x", lp.Continuous, 0, 1)
	p.SetObjective(lp.V(x, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := New().Solve(ctx, p, lp.Options{})
	require.NoError(t, err)
	assert.Equal(t, lp.StatusAborted, sol.Status)
}

func TestSolveRejectsSOS2(t *testing.T) {
	p := lp.NewProblem()
	a := addVar(t, p, "a", lp.Continuous, 0, 1)
	b := addVar(t, p, "b", lp.Continuous, 0, 1)
	require.NoError(t, p.AddSOS2("s", []lp.Var{a, b}, []float64{1, 2}))

	s := New()
	assert.False(t, s.SupportsSOS2())
	_, err := s.Solve(context.Background(), p, lp.Options{})
	assert.True(t, errs.IsSolverError(err))
}
