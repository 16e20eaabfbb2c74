// Package horizon describes the discrete time axis of a model: timesteps,
// their durations and the optional partition into investment periods.
package horizon

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/enmod/internal/errs"
)

// Period is a contiguous block of timesteps used as the granularity of
// investment decisions.
type Period struct {
	// Start is the first timestep of the period.
	Start int
	// End is one past the last timestep of the period.
	End int
	// Year is the number of years elapsed from the start of period 0.
	Year int
}

// Len returns the number of timesteps in the period.
func (p Period) Len() int { return p.End - p.Start }

// Horizon is the time model of an energy system.
type Horizon struct {
	// Increments holds the duration of every timestep in hours.
	Increments []float64

	// Index optionally labels every timestep with a timestamp. Results are
	// re-labeled with it.
	Index []time.Time

	// Periods partitions the timesteps for multi-period investment
	// models. Empty means a single-period (standard) model.
	Periods []Period

	// Weighting optionally scales the per-timestep objective terms.
	// Defaults to Increments.
	Weighting []float64

	// EndYear is the end of the optimization horizon in years since the
	// start of period 0. Zero derives it from the periods.
	EndYear int

	// DiscountRate discounts costs of later periods in multi-period models.
	DiscountRate float64

	// UseRemainingValue credits the value of investments whose lifetime
	// extends past EndYear.
	UseRemainingValue bool
}

// Uniform returns a single-period horizon of n steps of length dt hours.
func Uniform(n int, dt float64) *Horizon {
	inc := make([]float64, n)
	for i := range inc {
		inc[i] = dt
	}
	return &Horizon{Increments: inc}
}

// FromIndex derives the increments from consecutive timestamps. The last
// step repeats the preceding increment; a single timestamp gets one hour.
func FromIndex(index []time.Time) (*Horizon, error) {
	n := len(index)
	inc := make([]float64, n)
	for i := 0; i+1 < n; i++ {
		d := index[i+1].Sub(index[i]).Hours()
		if d <= 0 {
			return nil, errs.Config("horizon", "time index is not strictly increasing at position %d", i+1)
		}
		inc[i] = d
	}
	if n == 1 {
		inc[0] = 1
	} else if n > 1 {
		inc[n-1] = inc[n-2]
	}
	cp := make([]time.Time, n)
	copy(cp, index)
	return &Horizon{Increments: inc, Index: cp}, nil
}

// PeriodsFromLengths builds consecutive periods of the given step counts
// starting at the given years.
func PeriodsFromLengths(steps []int, years []int) ([]Period, error) {
	if len(steps) != len(years) {
		return nil, errs.Config("horizon", "%d period lengths but %d period years", len(steps), len(years))
	}
	out := make([]Period, len(steps))
	start := 0
	for i, n := range steps {
		out[i] = Period{Start: start, End: start + n, Year: years[i]}
		start += n
	}
	return out, nil
}

// T returns the number of timesteps.
func (h *Horizon) T() int { return len(h.Increments) }

// MultiPeriod reports whether the horizon is partitioned into periods.
func (h *Horizon) MultiPeriod() bool { return len(h.Periods) > 0 }

// NumPeriods returns the number of periods, 1 for standard models.
func (h *Horizon) NumPeriods() int {
	if len(h.Periods) == 0 {
		return 1
	}
	return len(h.Periods)
}

// Validate checks the horizon for consistency.
func (h *Horizon) Validate() error {
	if h.T() == 0 {
		return errs.Config("horizon", "horizon has no timesteps")
	}
	for t, d := range h.Increments {
		if !(d > 0) || math.IsInf(d, 0) {
			return errs.Config("horizon", "timeincrement[%d] = %v must be positive and finite", t, d)
		}
	}
	if h.Index != nil && len(h.Index) != h.T() {
		return errs.BadSequenceLength(len(h.Index), h.T())
	}
	if h.Weighting != nil && len(h.Weighting) != h.T() {
		return errs.BadSequenceLength(len(h.Weighting), h.T())
	}
	if h.DiscountRate < 0 {
		return errs.Config("horizon", "discount rate %v is negative", h.DiscountRate)
	}
	if !h.MultiPeriod() {
		return nil
	}
	next := 0
	for i, p := range h.Periods {
		if p.Start != next || p.End <= p.Start {
			return errs.Config("horizon", "period %d [%d,%d) does not continue the partition at %d", i, p.Start, p.End, next)
		}
		if i == 0 && p.Year != 0 {
			return errs.Config("horizon", "period 0 must start at year 0, got %d", p.Year)
		}
		if i > 0 && p.Year <= h.Periods[i-1].Year {
			return errs.Config("horizon", "period %d year %d is not after year %d", i, p.Year, h.Periods[i-1].Year)
		}
		next = p.End
	}
	if next != h.T() {
		return errs.Config("horizon", "periods cover %d of %d timesteps", next, h.T())
	}
	if h.EndYear != 0 && h.EndYear <= h.Periods[len(h.Periods)-1].Year {
		return errs.Config("horizon", "end year %d is not after the last period year", h.EndYear)
	}
	return nil
}

// PeriodOf returns the period containing timestep t.
func (h *Horizon) PeriodOf(t int) int {
	for i, p := range h.Periods {
		if t >= p.Start && t < p.End {
			return i
		}
	}
	return 0
}

// Steps returns the timesteps of period p.
func (h *Horizon) Steps(p int) []int {
	start, end := 0, h.T()
	if h.MultiPeriod() {
		start, end = h.Periods[p].Start, h.Periods[p].End
	}
	out := make([]int, 0, end-start)
	for t := start; t < end; t++ {
		out = append(out, t)
	}
	return out
}

// Years returns periods_years, the years elapsed from period 0 to each period.
func (h *Horizon) Years() []int {
	if !h.MultiPeriod() {
		return []int{0}
	}
	out := make([]int, len(h.Periods))
	for i, p := range h.Periods {
		out[i] = p.Year
	}
	return out
}

// End returns the end year of the optimization.
func (h *Horizon) End() int {
	if h.EndYear != 0 {
		return h.EndYear
	}
	years := h.Years()
	last := years[len(years)-1]
	if len(years) > 1 {
		return last + (last - years[len(years)-2])
	}
	return last + 1
}

// Increment returns the duration of timestep t.
func (h *Horizon) Increment(t int) float64 { return h.Increments[t] }

// Weight returns the objective weighting of timestep t.
func (h *Horizon) Weight(t int) float64 {
	if h.Weighting != nil {
		return h.Weighting[t]
	}
	return h.Increments[t]
}

// Discount returns the discount factor applied to costs of period p.
// Standard models are undiscounted.
func (h *Horizon) Discount(p int) float64 {
	if !h.MultiPeriod() {
		return 1
	}
	return math.Pow(1+h.DiscountRate, -float64(h.Periods[p].Year))
}

// PeriodsMatrix returns the matrix of year differences, m[i][j] = years[j] - years[i].
func (h *Horizon) PeriodsMatrix() [][]int {
	years := h.Years()
	m := make([][]int, len(years))
	for i := range years {
		m[i] = make([]int, len(years))
		for j := range years {
			m[i][j] = years[j] - years[i]
		}
	}
	return m
}

// DecommissionPeriod returns the first period at which capacity invested
// in period p with the given lifetime has reached its end of life, or -1 if
// that happens after the horizon.
func (h *Horizon) DecommissionPeriod(p, lifetime int) int {
	m := h.PeriodsMatrix()
	for j := p; j < len(m); j++ {
		if m[p][j] >= lifetime {
			return j
		}
	}
	return -1
}

// Label returns the display label of timestep t.
func (h *Horizon) Label(t int) string {
	if h.Index != nil {
		return h.Index[t].UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%d", t)
}
