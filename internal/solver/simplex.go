package solver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
)

const (
	defaultTolerance = 1e-9
	defaultMaxIter   = 200000
	defaultMaxNodes  = 100000
	integralityTol   = 1e-6
)

// Simplex is the in-process reference backend: a dense two-phase primal
// simplex with depth-first branch-and-bound for integer variables.
type Simplex struct {
	maxNodes int
	maxIter  int
	tol      float64
	logger   *slog.Logger
}

var _ lp.Backend = (*Simplex)(nil)

// Option configures a Simplex backend.
type Option func(*Simplex)

// WithMaxNodes sets the default branch-and-bound node limit.
func WithMaxNodes(n int) Option {
	return func(s *Simplex) {
		if n > 0 {
			s.maxNodes = n
		}
	}
}

// WithMaxIterations bounds simplex pivots per LP relaxation.
func WithMaxIterations(n int) Option {
	return func(s *Simplex) {
		if n > 0 {
			s.maxIter = n
		}
	}
}

// WithTolerance sets the pricing tolerance.
func WithTolerance(tol float64) Option {
	return func(s *Simplex) {
		if tol > 0 {
			s.tol = tol
		}
	}
}

// WithLogger sets the logger used for solve summaries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simplex) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Simplex backend.
func New(opts ...Option) *Simplex {
	s := &Simplex{
		maxNodes: defaultMaxNodes,
		maxIter:  defaultMaxIter,
		tol:      defaultTolerance,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simplex) Name() string        { return "simplex" }
func (s *Simplex) SupportsDuals() bool { return true }
func (s *Simplex) SupportsSOS2() bool  { return false }

// Solve solves p. SOS2 sets are rejected; callers must reformulate them.
func (s *Simplex) Solve(ctx context.Context, p *lp.Problem, opts lp.Options) (*lp.Solution, error) {
	if len(p.SOS2Sets()) > 0 {
		return nil, errs.Solver(s.Name(), "unsupported", errors.New("SOS2 sets are not supported"))
	}
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}
	maxNodes := s.maxNodes
	if opts.MaxNodes > 0 {
		maxNodes = opts.MaxNodes
	}

	start := time.Now()
	vars := p.Variables()
	lower := make([]float64, len(vars))
	upper := make([]float64, len(vars))
	var ints []int
	for j, v := range vars {
		lower[j], upper[j] = v.Lower, v.Upper
		if v.Domain != lp.Continuous {
			lower[j] = math.Ceil(lower[j] - integralityTol)
			upper[j] = math.Floor(upper[j] + integralityTol)
			ints = append(ints, j)
		}
	}

	sol := &lp.Solution{Backend: s.Name()}
	var (
		incumbent []float64
		bestObj   = math.Inf(1)
		nodes     int
		aborted   bool
	)

	type node struct{ lower, upper []float64 }
	stack := []node{{lower: lower, upper: upper}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			aborted = true
			break
		}
		if nodes >= maxNodes {
			aborted = true
			break
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		res, err := solveLP(p, n.lower, n.upper, false, s.tol, s.maxIter)
		if err != nil {
			return nil, errs.Solver(s.Name(), "error", err)
		}
		sol.Iterations += res.iterations
		switch res.status {
		case lpInfeasible:
			continue
		case lpUnbounded:
			if nodes == 1 {
				sol.Status = lp.StatusUnbounded
				sol.Nodes = nodes
				return sol, nil
			}
			continue
		}
		if incumbent != nil && res.objective >= bestObj-gapAllowance(bestObj, opts.MIPGap) {
			continue
		}

		branch, frac := -1, 0.0
		for _, j := range ints {
			f := math.Abs(res.x[j] - math.Round(res.x[j]))
			if f > integralityTol && f > frac {
				branch, frac = j, f
			}
		}
		if branch < 0 {
			incumbent, bestObj = res.x, res.objective
			continue
		}

		v := res.x[branch]
		down := node{lower: n.lower, upper: cloneWith(n.upper, branch, math.Floor(v))}
		up := node{lower: cloneWith(n.lower, branch, math.Ceil(v)), upper: n.upper}
		// The branch nearer to the relaxation value is explored first.
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}
	sol.Nodes = nodes

	switch {
	case incumbent == nil && aborted:
		sol.Status = lp.StatusAborted
		return sol, nil
	case incumbent == nil:
		sol.Status = lp.StatusInfeasible
		return sol, nil
	case aborted:
		sol.Status = lp.StatusFeasible
	default:
		sol.Status = lp.StatusOptimal
	}

	for _, j := range ints {
		incumbent[j] = math.Round(incumbent[j])
	}
	sol.Values = incumbent
	sol.Objective = p.Objective().Eval(incumbent)

	if opts.Duals {
		duals, err := s.duals(p, incumbent, ints)
		if err != nil {
			return nil, err
		}
		sol.Duals = duals
	}

	s.logger.Debug("simplex solve finished",
		"status", sol.Status,
		"objective", sol.Objective,
		"iterations", sol.Iterations,
		"nodes", sol.Nodes,
		"elapsed", time.Since(start))
	return sol, nil
}

// duals re-solves the LP with every integer variable fixed at its
// incumbent value and returns that LP's constraint duals.
func (s *Simplex) duals(p *lp.Problem, x []float64, ints []int) ([]float64, error) {
	vars := p.Variables()
	lower := make([]float64, len(vars))
	upper := make([]float64, len(vars))
	for j, v := range vars {
		lower[j], upper[j] = v.Lower, v.Upper
	}
	for _, j := range ints {
		lower[j], upper[j] = x[j], x[j]
	}
	res, err := solveLP(p, lower, upper, true, s.tol, s.maxIter)
	if err != nil {
		return nil, errs.Solver(s.Name(), "error", err)
	}
	if res.status != lpOptimal {
		return nil, errs.Solver(s.Name(), "error", errors.New("fixed-integer relaxation for duals is not optimal"))
	}
	return res.duals, nil
}

func gapAllowance(best, gap float64) float64 {
	if gap <= 0 {
		return 1e-9 * math.Max(1, math.Abs(best))
	}
	return gap * math.Max(1, math.Abs(best))
}

func cloneWith(src []float64, j int, v float64) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	out[j] = v
	return out
}
