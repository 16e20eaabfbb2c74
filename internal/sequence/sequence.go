// Package sequence lifts scalar-or-sequence parameters to dense,
// time-indexed vectors.
//
// Parameters are normalized once, eagerly, when a model is built. After that
// every block works with plain []float64 of the horizon length.
package sequence

import (
	"math"

	"github.com/roach88/enmod/internal/errs"
)

// Value is a parameter that is either unset, a scalar broadcast over the
// horizon, or an explicit sequence.
type Value struct {
	scalar float64
	seq    []float64
	kind   valueKind
}

type valueKind uint8

const (
	unset valueKind = iota
	scalar
	series
)

// Scalar returns a Value broadcasting v over the horizon.
func Scalar(v float64) Value {
	return Value{scalar: v, kind: scalar}
}

// Of returns a Value holding an explicit sequence. The slice is copied.
func Of(vs ...float64) Value {
	cp := make([]float64, len(vs))
	copy(cp, vs)
	return Value{seq: cp, kind: series}
}

// IsSet reports whether the value was given.
func (v Value) IsSet() bool { return v.kind != unset }

// IsScalar reports whether the value is a broadcast scalar.
func (v Value) IsScalar() bool { return v.kind == scalar }

// Len returns the length of an explicit sequence, 1 for scalars and 0 when unset.
func (v Value) Len() int {
	switch v.kind {
	case scalar:
		return 1
	case series:
		return len(v.seq)
	}
	return 0
}

// Raw returns the scalar and sequence payload, for serialization.
func (v Value) Raw() (float64, []float64) {
	return v.scalar, v.seq
}

// At returns the element at index i without resolving. Scalars return
// themselves; unset values return 0.
func (v Value) At(i int) float64 {
	switch v.kind {
	case scalar:
		return v.scalar
	case series:
		if i >= 0 && i < len(v.seq) {
			return v.seq[i]
		}
	}
	return 0
}

// Max returns the largest element, or -Inf when unset.
func (v Value) Max() float64 {
	switch v.kind {
	case scalar:
		return v.scalar
	case series:
		m := math.Inf(-1)
		for _, x := range v.seq {
			m = math.Max(m, x)
		}
		return m
	}
	return math.Inf(-1)
}

// Min returns the smallest element, or +Inf when unset.
func (v Value) Min() float64 {
	switch v.kind {
	case scalar:
		return v.scalar
	case series:
		m := math.Inf(1)
		for _, x := range v.seq {
			m = math.Min(m, x)
		}
		return m
	}
	return math.Inf(1)
}

// Resolve returns a length-n vector for v. A scalar is broadcast; a sequence
// of length n is returned as a copy; any other length fails with
// BAD_SEQUENCE_LENGTH. An unset value resolves to zeros.
func Resolve(v Value, n int) ([]float64, error) {
	out := make([]float64, n)
	switch v.kind {
	case unset:
		return out, nil
	case scalar:
		for i := range out {
			out[i] = v.scalar
		}
		return out, nil
	}
	if len(v.seq) != n {
		return nil, errs.BadSequenceLength(len(v.seq), n)
	}
	copy(out, v.seq)
	return out, nil
}

// ResolveOr resolves v, substituting def when v is unset.
func ResolveOr(v Value, def float64, n int) ([]float64, error) {
	if !v.IsSet() {
		v = Scalar(def)
	}
	return Resolve(v, n)
}

// MustResolve is Resolve for values already validated against n.
func MustResolve(v Value, n int) []float64 {
	out, err := Resolve(v, n)
	if err != nil {
		panic(err)
	}
	return out
}
