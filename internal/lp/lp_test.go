package lp

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enmod/internal/errs"
)

// ============================================================================
// Expressions
// ============================================================================

func TestCanonicalMergesAndSorts(t *testing.T) {
	e := NewExpr(Term{Var: 2, Coef: 1}, Term{Var: 0, Coef: 3}, Term{Var: 2, Coef: -1}, Term{Var: 1, Coef: 0.5})
	e.AddConst(4)

	c := e.Canonical()
	assert.Equal(t, []Term{{Var: 0, Coef: 3}, {Var: 1, Coef: 0.5}}, c.Terms)
	assert.Equal(t, 4.0, c.Constant)
}

func TestExprBuilders(t *testing.T) {
	e := Sum(0, 1).AddExpr(V(2, 2).AddConst(1), 3).Scale(2)

	assert.Equal(t, 2.0, e.Terms[0].Coef)
	assert.Equal(t, 12.0, e.Terms[2].Coef)
	assert.Equal(t, 6.0, e.Constant)
	assert.Equal(t, 6.0+2*1+2*2+12*3, e.Eval([]float64{1, 2, 3}))
	assert.True(t, (*Expr)(nil).IsZero())
	assert.False(t, Const(1).IsZero())
}

func TestCloneIsIndependent(t *testing.T) {
	e := V(0, 1)
	cp := e.Clone()
	cp.Add(1, 2)
	assert.Len(t, e.Terms, 1)
}

// ============================================================================
// Problem
// ============================================================================

func TestAddVariableRejectsDuplicates(t *testing.T) {
	p := NewProblem()
	_, err := p.AddVariable("x", Continuous, 0, 1)
	require.NoError(t, err)

	_, err = p.AddVariable("x", Continuous, 0, 1)
	assert.True(t, errs.IsConfigError(err))
}

func TestBinaryBoundsAreClamped(t *testing.T) {
	p := NewProblem()
	v, err := p.AddVariable("y", Binary, -3, 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Variable(v).Lower)
	assert.Equal(t, 1.0, p.Variable(v).Upper)
	assert.True(t, p.IsMIP())
}

func TestAddConstraintMovesConstantsRight(t *testing.T) {
	p := NewProblem()
	x, _ := p.AddVariable("x", Continuous, 0, math.Inf(1))
	y, _ := p.AddVariable("y", Continuous, 0, math.Inf(1))

	idx, err := p.AddConstraint("c", V(x, 2).AddConst(3), LE, V(y, 1).AddConst(10))
	require.NoError(t, err)

	c := p.Constraints()[idx]
	assert.Equal(t, []Term{{Var: x, Coef: 2}, {Var: y, Coef: -1}}, c.Terms)
	assert.Equal(t, 7.0, c.RHS)
	assert.Equal(t, LE, c.Sense)

	found, ok := p.LookupConstraint("c")
	assert.True(t, ok)
	assert.Equal(t, idx, found)
}

func TestAddConstraintRejectsUnknownVariable(t *testing.T) {
	p := NewProblem()
	_, err := p.AddConstraint("c", V(5, 1), EQ, Const(0))
	assert.True(t, errs.IsConfigError(err))
}

func TestStats(t *testing.T) {
	p := NewProblem()
	_, _ = p.AddVariable("a", Integer, 0, 3)
	_, _ = p.AddVariable("b", Continuous, 0, 3)
	_, _ = p.AddConstraint("c", Sum(0, 1), LE, Const(2))

	assert.Equal(t, "2 variables (1 integer), 1 constraints", p.Stats().String())
}

// ============================================================================
// Options
// ============================================================================

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte("time_limit: 30s\nmip_gap: 0.01\nmax_nodes: 500\nduals: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.TimeLimit)
	assert.Equal(t, 0.01, opts.MIPGap)
	assert.Equal(t, 500, opts.MaxNodes)
	assert.True(t, opts.Duals)
}

func TestParseOptionsRejectsUnknownFields(t *testing.T) {
	_, err := ParseOptions([]byte("threads: 4\n"))
	assert.Error(t, err)
}

func TestParseOptionsEmpty(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, Options{}, opts)
}

// ============================================================================
// LP writer
// ============================================================================

func TestLPName(t *testing.T) {
	assert.Equal(t, "flow(a,b,0)", LPName("flow[a,b,0]"))
	assert.Equal(t, "_1x", LPName("1x"))
	assert.Equal(t, "a_b", LPName("a b"))
}

func TestWriteLPGolden(t *testing.T) {
	p := NewProblem()
	x, err := p.AddVariable("flow[gas,pp,0]", Continuous, 0, math.Inf(1))
	require.NoError(t, err)
	y, err := p.AddVariable("flow[pp,el,0]", Continuous, 0, 10)
	require.NoError(t, err)
	b, err := p.AddVariable("status[pp,0]", Binary, 0, 1)
	require.NoError(t, err)
	_, err = p.AddVariable("n", Integer, math.Inf(-1), math.Inf(1))
	require.NoError(t, err)

	_, err = p.AddConstraint("conversion[pp,0]", V(x, 0.5), EQ, V(y, 1))
	require.NoError(t, err)
	_, err = p.AddConstraint("cap[pp,0]", Sum(y), LE, V(b, 10))
	require.NoError(t, err)
	_, err = p.AddConstraint("fixed", V(y, 1).AddConst(2), GE, Const(5))
	require.NoError(t, err)
	p.SetObjective(V(x, 50).AddConst(7))

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, p))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "small_problem", buf.Bytes())
}
