package model

import (
	"github.com/roach88/enmod/internal/sequence"
)

// Parameters are validated against the horizon when the energy system is
// frozen, so resolving them here cannot fail.

func perStep(v sequence.Value, T int) []float64 { return sequence.MustResolve(v, T) }

func perStepOr(v sequence.Value, def float64, T int) []float64 {
	if !v.IsSet() {
		v = sequence.Scalar(def)
	}
	return sequence.MustResolve(v, T)
}

func perPeriod(v sequence.Value, P int) []float64 { return sequence.MustResolve(v, P) }

// periodsOf returns the period of every timestep.
func (m *Model) periodsOf() []int {
	out := make([]int, m.h.T())
	for t := range out {
		out[t] = m.h.PeriodOf(t)
	}
	return out
}

// active reports whether a unit with the given lifetime and age still
// operates in period p. A zero lifetime never retires.
func (m *Model) active(lifetime, age, p int) bool {
	if !m.h.MultiPeriod() || lifetime <= 0 {
		return true
	}
	return m.h.Years()[p] < lifetime-age
}

// fixedOver returns the per-period capacity of a fixed nominal value,
// zero in periods after the unit's lifetime.
func (m *Model) fixedOver(nominal float64, lifetime, age int) []float64 {
	P := m.h.NumPeriods()
	out := make([]float64, P)
	for p := range out {
		if m.active(lifetime, age, p) {
			out[p] = nominal
		}
	}
	return out
}
