package lp

import (
	"fmt"
	"math"

	"github.com/roach88/enmod/internal/errs"
)

// Domain is the value domain of a variable.
type Domain uint8

const (
	Continuous Domain = iota
	Integer
	Binary
)

func (d Domain) String() string {
	switch d {
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	}
	return "continuous"
}

// Sense is the relation of a constraint.
type Sense uint8

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case GE:
		return ">="
	case EQ:
		return "="
	}
	return "<="
}

// Variable is a decision variable.
type Variable struct {
	Name   string
	Domain Domain
	Lower  float64
	Upper  float64
}

// Constraint is a normalized linear constraint Σ terms (sense) RHS. Terms
// are canonical: one term per variable, sorted, no zeros.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// SOS2 is a special ordered set of type 2: at most two consecutive members
// are nonzero.
type SOS2 struct {
	Name    string
	Vars    []Var
	Weights []float64
}

// Problem is a mixed-integer linear program in minimization form. It is the
// neutral container every backend consumes.
type Problem struct {
	vars      []Variable
	varIndex  map[string]Var
	cons      []Constraint
	conIndex  map[string]int
	objective *Expr
	sos2      []SOS2
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{
		varIndex:  make(map[string]Var),
		conIndex:  make(map[string]int),
		objective: &Expr{},
	}
}

// AddVariable registers a variable. Binary variables are clamped to [0,1].
// Names must be unique.
func (p *Problem) AddVariable(name string, d Domain, lower, upper float64) (Var, error) {
	if _, dup := p.varIndex[name]; dup {
		return -1, errs.Config("lp", "duplicate variable name %q", name)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return -1, errs.Config("lp", "variable %q has NaN bounds", name)
	}
	if d == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	v := Var(len(p.vars))
	p.vars = append(p.vars, Variable{Name: name, Domain: d, Lower: lower, Upper: upper})
	p.varIndex[name] = v
	return v, nil
}

// SetBounds replaces the bounds of v.
func (p *Problem) SetBounds(v Var, lower, upper float64) {
	p.vars[v].Lower = lower
	p.vars[v].Upper = upper
}

// AddConstraint adds lhs (sense) rhs, moving every variable to the left and
// every constant to the right. Names must be unique.
func (p *Problem) AddConstraint(name string, lhs *Expr, s Sense, rhs *Expr) (int, error) {
	if _, dup := p.conIndex[name]; dup {
		return -1, errs.Config("lp", "duplicate constraint name %q", name)
	}
	e := lhs.Clone().AddExpr(rhs, -1).Canonical()
	for _, t := range e.Terms {
		if int(t.Var) < 0 || int(t.Var) >= len(p.vars) {
			return -1, errs.Config("lp", "constraint %q references unknown variable %d", name, t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return -1, errs.Config("lp", "constraint %q has non-finite coefficient for %s", name, p.vars[t.Var].Name)
		}
	}
	if math.IsNaN(e.Constant) || math.IsInf(e.Constant, 0) {
		return -1, errs.Config("lp", "constraint %q has non-finite right-hand side", name)
	}
	rhsValue := -e.Constant
	if rhsValue == 0 {
		rhsValue = 0 // drop negative zero
	}
	idx := len(p.cons)
	p.cons = append(p.cons, Constraint{Name: name, Terms: e.Terms, Sense: s, RHS: rhsValue})
	p.conIndex[name] = idx
	return idx, nil
}

// SetObjective sets the minimization objective.
func (p *Problem) SetObjective(e *Expr) {
	p.objective = e.Canonical()
}

// AddSOS2 registers a special ordered set of type 2.
func (p *Problem) AddSOS2(name string, vars []Var, weights []float64) error {
	if len(vars) != len(weights) {
		return errs.Config("lp", "sos2 %q has %d members but %d weights", name, len(vars), len(weights))
	}
	p.sos2 = append(p.sos2, SOS2{Name: name, Vars: vars, Weights: weights})
	return nil
}

// Variables returns all variables, indexed by Var.
func (p *Problem) Variables() []Variable { return p.vars }

// Variable returns the variable v.
func (p *Problem) Variable(v Var) Variable { return p.vars[v] }

// Constraints returns all constraints in insertion order.
func (p *Problem) Constraints() []Constraint { return p.cons }

// Objective returns the objective expression.
func (p *Problem) Objective() *Expr { return p.objective }

// SOS2Sets returns the registered special ordered sets.
func (p *Problem) SOS2Sets() []SOS2 { return p.sos2 }

// LookupVar finds a variable by name.
func (p *Problem) LookupVar(name string) (Var, bool) {
	v, ok := p.varIndex[name]
	return v, ok
}

// LookupConstraint finds a constraint index by name.
func (p *Problem) LookupConstraint(name string) (int, bool) {
	i, ok := p.conIndex[name]
	return i, ok
}

// IsMIP reports whether the problem has integer variables or SOS2 sets.
func (p *Problem) IsMIP() bool {
	if len(p.sos2) > 0 {
		return true
	}
	for _, v := range p.vars {
		if v.Domain != Continuous {
			return true
		}
	}
	return false
}

// Stats summarizes the problem size.
type Stats struct {
	Variables   int
	Integers    int
	Constraints int
}

// Stats returns the problem size.
func (p *Problem) Stats() Stats {
	s := Stats{Variables: len(p.vars), Constraints: len(p.cons)}
	for _, v := range p.vars {
		if v.Domain != Continuous {
			s.Integers++
		}
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%d variables (%d integer), %d constraints", s.Variables, s.Integers, s.Constraints)
}
