package model

import (
	"math"

	"github.com/roach88/enmod/internal/lp"
)

// capacity is either a fixed value per period or the per-period total of
// an investment. Blocks bound their variables against at(p).
type capacity struct {
	fixed []float64
	total []lp.Var
	// bound is an upper bound on every total, +Inf when unknown.
	bound float64
}

func fixedCapacity(values []float64) capacity {
	b := 0.0
	for _, v := range values {
		b = math.Max(b, v)
	}
	return capacity{fixed: values, bound: b}
}

func (c capacity) invested() bool { return c.total != nil }

// at returns the capacity of period p as an expression.
func (c capacity) at(p int) *lp.Expr {
	if c.invested() {
		return lp.V(c.total[p], 1)
	}
	return lp.Const(c.fixed[p])
}

// value returns the fixed capacity of period p. It must not be called on
// invested capacities.
func (c capacity) value(p int) float64 { return c.fixed[p] }

// scaled returns k·capacity(p) as an expression.
func (c capacity) scaled(p int, k float64) *lp.Expr {
	return c.at(p).Scale(k)
}
