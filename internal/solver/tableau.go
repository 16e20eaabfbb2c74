package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roach88/enmod/internal/lp"
)

var errIterationLimit = errors.New("simplex iteration limit reached")

// lpStatus is the outcome of one LP relaxation.
type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

// lpResult is the solution of one LP relaxation in original variables.
type lpResult struct {
	status     lpStatus
	x          []float64
	objective  float64
	duals      []float64
	iterations int
}

// colRef maps an original variable onto standard-form columns:
// x = offset + Σ sign·x'.
type colRef struct {
	offset float64
	cols   []int
	signs  []float64
}

// tableau is a dense simplex tableau [B⁻¹A | B⁻¹b] with the reduced cost
// row kept separately. Columns are structural, slack, then artificial.
type tableau struct {
	t        *mat.Dense
	m, ncols int
	basis    []int
	artStart int
	d        []float64
	cost     []float64

	// dualCol is, per row, a column whose original coefficient in the
	// sign-normalized row is +1 and zero elsewhere.
	dualCol []int
	rowSign []float64

	tol     float64
	maxIter int
	iter    int
	bland   bool
}

// solveLP solves the continuous relaxation of p under the given bounds.
func solveLP(p *lp.Problem, lower, upper []float64, wantDuals bool, tol float64, maxIter int) (*lpResult, error) {
	vars := p.Variables()
	refs := make([]colRef, len(vars))
	nStruct := 0
	type boundRow struct {
		col int
		ub  float64
	}
	var bounds []boundRow
	for j := range vars {
		l, u := lower[j], upper[j]
		if l > u+tol {
			return &lpResult{status: lpInfeasible}, nil
		}
		switch {
		case !math.IsInf(l, -1):
			refs[j] = colRef{offset: l, cols: []int{nStruct}, signs: []float64{1}}
			if !math.IsInf(u, 1) {
				bounds = append(bounds, boundRow{col: nStruct, ub: math.Max(u-l, 0)})
			}
			nStruct++
		case !math.IsInf(u, 1):
			refs[j] = colRef{offset: u, cols: []int{nStruct}, signs: []float64{-1}}
			nStruct++
		default:
			refs[j] = colRef{cols: []int{nStruct, nStruct + 1}, signs: []float64{1, -1}}
			nStruct += 2
		}
	}

	cons := p.Constraints()
	m := len(cons) + len(bounds)

	// Structural objective in standard-form columns.
	structCost := make([]float64, nStruct)
	for _, term := range p.Objective().Terms {
		r := refs[term.Var]
		for k, c := range r.cols {
			structCost[c] += term.Coef * r.signs[k]
		}
	}

	if m == 0 {
		for _, c := range structCost {
			if c < -tol {
				return &lpResult{status: lpUnbounded}, nil
			}
		}
		x := make([]float64, len(vars))
		for j, r := range refs {
			x[j] = r.offset
		}
		return &lpResult{status: lpOptimal, x: x, objective: p.Objective().Eval(x)}, nil
	}

	rows := make([][]float64, m)
	rhs := make([]float64, m)
	senses := make([]lp.Sense, m)
	for i, c := range cons {
		row := make([]float64, nStruct)
		b := c.RHS
		for _, term := range c.Terms {
			r := refs[term.Var]
			b -= term.Coef * r.offset
			for k, col := range r.cols {
				row[col] += term.Coef * r.signs[k]
			}
		}
		rows[i], rhs[i], senses[i] = row, b, c.Sense
	}
	for k, br := range bounds {
		i := len(cons) + k
		row := make([]float64, nStruct)
		row[br.col] = 1
		rows[i], rhs[i], senses[i] = row, br.ub, lp.LE
	}

	nSlack := 0
	slackOf := make([]int, m)
	for i := range senses {
		slackOf[i] = -1
		if senses[i] != lp.EQ {
			slackOf[i] = nStruct + nSlack
			nSlack++
		}
	}

	rowSign := make([]float64, m)
	needsArt := make([]bool, m)
	nArt := 0
	for i := range rows {
		rowSign[i] = 1
		if rhs[i] < 0 {
			rowSign[i] = -1
		}
		slackCoef := 0.0
		switch senses[i] {
		case lp.LE:
			slackCoef = rowSign[i]
		case lp.GE:
			slackCoef = -rowSign[i]
		}
		if slackCoef <= 0 {
			needsArt[i] = true
			nArt++
		}
	}

	artStart := nStruct + nSlack
	ncols := artStart + nArt
	tb := &tableau{
		t:        mat.NewDense(m, ncols+1, nil),
		m:        m,
		ncols:    ncols,
		basis:    make([]int, m),
		artStart: artStart,
		dualCol:  make([]int, m),
		rowSign:  rowSign,
		tol:      tol,
		maxIter:  maxIter,
	}
	art := artStart
	for i := range rows {
		dst := tb.t.RawRowView(i)
		s := rowSign[i]
		for c, v := range rows[i] {
			dst[c] = s * v
		}
		if sc := slackOf[i]; sc >= 0 {
			if senses[i] == lp.LE {
				dst[sc] = s
			} else {
				dst[sc] = -s
			}
		}
		dst[ncols] = s * rhs[i]
		if needsArt[i] {
			dst[art] = 1
			tb.basis[i] = art
			tb.dualCol[i] = art
			art++
		} else {
			tb.basis[i] = slackOf[i]
			tb.dualCol[i] = slackOf[i]
		}
	}

	// Phase 1: minimize the sum of artificials.
	if nArt > 0 {
		tb.cost = make([]float64, ncols)
		for c := artStart; c < ncols; c++ {
			tb.cost[c] = 1
		}
		tb.computeReducedCosts()
		status, err := tb.iterate(false)
		if err != nil {
			return nil, err
		}
		if status == lpUnbounded {
			// Phase 1 is bounded below by zero; this only happens on
			// numerical breakdown.
			return nil, errors.New("simplex phase 1 reported unbounded")
		}
		infeas := 0.0
		scale := 1.0
		for i := 0; i < m; i++ {
			scale = math.Max(scale, math.Abs(tb.t.At(i, ncols)))
			if tb.basis[i] >= artStart {
				infeas += tb.t.At(i, ncols)
			}
		}
		if infeas > 1e-7*scale {
			return &lpResult{status: lpInfeasible, iterations: tb.iter}, nil
		}
		tb.driveOutArtificials()
	}

	// Phase 2: the original objective, artificials barred from entering.
	tb.cost = make([]float64, ncols)
	copy(tb.cost, structCost)
	tb.computeReducedCosts()
	status, err := tb.iterate(true)
	if err != nil {
		return nil, err
	}
	if status == lpUnbounded {
		return &lpResult{status: lpUnbounded, iterations: tb.iter}, nil
	}

	colValue := make([]float64, ncols)
	for i, b := range tb.basis {
		colValue[b] = tb.t.At(i, ncols)
	}
	x := make([]float64, len(vars))
	for j, r := range refs {
		v := r.offset
		for k, c := range r.cols {
			v += r.signs[k] * colValue[c]
		}
		x[j] = v
	}
	res := &lpResult{status: lpOptimal, x: x, objective: p.Objective().Eval(x), iterations: tb.iter}
	if wantDuals {
		res.duals = make([]float64, len(cons))
		for i := range cons {
			res.duals[i] = -tb.d[tb.dualCol[i]] * tb.rowSign[i]
		}
	}
	return res, nil
}

func (tb *tableau) computeReducedCosts() {
	tb.d = make([]float64, tb.ncols)
	copy(tb.d, tb.cost)
	for i, b := range tb.basis {
		cb := tb.cost[b]
		if cb == 0 {
			continue
		}
		row := tb.t.RawRowView(i)
		for c := 0; c < tb.ncols; c++ {
			tb.d[c] -= cb * row[c]
		}
	}
}

// iterate runs primal simplex pivots until optimality or unboundedness.
// Dantzig pricing switches to Bland's rule after a run of degenerate pivots.
func (tb *tableau) iterate(barArtificials bool) (lpStatus, error) {
	degenerate := 0
	limit := tb.ncols
	if barArtificials {
		limit = tb.artStart
	}
	for {
		if tb.iter >= tb.maxIter {
			return lpOptimal, errIterationLimit
		}
		enter := -1
		if tb.bland {
			for c := 0; c < limit; c++ {
				if tb.d[c] < -tb.tol {
					enter = c
					break
				}
			}
		} else {
			best := -tb.tol
			for c := 0; c < limit; c++ {
				if tb.d[c] < best {
					best = tb.d[c]
					enter = c
				}
			}
		}
		if enter < 0 {
			return lpOptimal, nil
		}

		leave := -1
		bestRatio := math.Inf(1)
		for i := 0; i < tb.m; i++ {
			a := tb.t.At(i, enter)
			if a <= 1e-9 {
				continue
			}
			ratio := math.Max(tb.t.At(i, tb.ncols), 0) / a
			switch {
			case ratio < bestRatio-1e-12:
				bestRatio, leave = ratio, i
			case ratio <= bestRatio+1e-12 && leave >= 0 && tb.basis[i] < tb.basis[leave]:
				leave = i
			}
		}
		if leave < 0 {
			return lpUnbounded, nil
		}
		if bestRatio < 1e-12 {
			degenerate++
			if degenerate > 50 {
				tb.bland = true
			}
		} else {
			degenerate = 0
		}
		tb.pivot(leave, enter)
		tb.iter++
	}
}

func (tb *tableau) pivot(r, j int) {
	pr := tb.t.RawRowView(r)
	pv := pr[j]
	for k := range pr {
		pr[k] /= pv
	}
	pr[j] = 1
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		row := tb.t.RawRowView(i)
		f := row[j]
		if f == 0 {
			continue
		}
		for k := range row {
			row[k] -= f * pr[k]
		}
		row[j] = 0
	}
	if f := tb.d[j]; f != 0 {
		for k := 0; k < tb.ncols; k++ {
			tb.d[k] -= f * pr[k]
		}
		tb.d[j] = 0
	}
	tb.basis[r] = j
}

// driveOutArtificials pivots basic artificials at zero level out of the
// basis. Rows where no structural or slack column is available are
// redundant and keep their artificial.
func (tb *tableau) driveOutArtificials() {
	for i := 0; i < tb.m; i++ {
		if tb.basis[i] < tb.artStart {
			continue
		}
		row := tb.t.RawRowView(i)
		best, col := 1e-9, -1
		for c := 0; c < tb.artStart; c++ {
			if a := math.Abs(row[c]); a > best {
				best, col = a, c
			}
		}
		if col >= 0 {
			tb.pivot(i, col)
		}
	}
}
