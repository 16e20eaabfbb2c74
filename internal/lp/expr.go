package lp

import (
	"sort"
)

// Var is the handle of a variable within one Problem.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is an affine expression Σ coef·var + constant. The zero value is the
// empty expression. Builder methods mutate the receiver and return it.
type Expr struct {
	Terms    []Term
	Constant float64
}

// NewExpr returns an expression holding the given terms.
func NewExpr(terms ...Term) *Expr {
	e := &Expr{}
	e.Terms = append(e.Terms, terms...)
	return e
}

// Const returns a constant expression.
func Const(c float64) *Expr { return &Expr{Constant: c} }

// V returns the expression coef·v.
func V(v Var, coef float64) *Expr { return &Expr{Terms: []Term{{Var: v, Coef: coef}}} }

// Sum returns Σ vars with unit coefficients.
func Sum(vars ...Var) *Expr {
	e := &Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

// Add appends coef·v.
func (e *Expr) Add(v Var, coef float64) *Expr {
	if coef != 0 {
		e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	}
	return e
}

// AddConst adds a constant.
func (e *Expr) AddConst(c float64) *Expr {
	e.Constant += c
	return e
}

// AddExpr appends scale·o.
func (e *Expr) AddExpr(o *Expr, scale float64) *Expr {
	if o == nil || scale == 0 {
		return e
	}
	for _, t := range o.Terms {
		e.Add(t.Var, t.Coef*scale)
	}
	e.Constant += o.Constant * scale
	return e
}

// Scale multiplies the expression by s.
func (e *Expr) Scale(s float64) *Expr {
	for i := range e.Terms {
		e.Terms[i].Coef *= s
	}
	e.Constant *= s
	return e
}

// Clone returns a deep copy.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return &Expr{}
	}
	cp := &Expr{Constant: e.Constant, Terms: make([]Term, len(e.Terms))}
	copy(cp.Terms, e.Terms)
	return cp
}

// IsZero reports whether the expression has no terms and no constant.
func (e *Expr) IsZero() bool {
	return e == nil || (len(e.Terms) == 0 && e.Constant == 0)
}

// Eval evaluates the expression for the given variable values.
func (e *Expr) Eval(values []float64) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}

// Canonical merges duplicate variables, drops zero coefficients and sorts
// terms by variable.
func (e *Expr) Canonical() *Expr {
	if e == nil {
		return &Expr{}
	}
	merged := make(map[Var]float64, len(e.Terms))
	for _, t := range e.Terms {
		merged[t.Var] += t.Coef
	}
	out := &Expr{Constant: e.Constant, Terms: make([]Term, 0, len(merged))}
	for v, c := range merged {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })
	return out
}
