package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/roach88/enmod/internal/compiler"
	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
	"github.com/roach88/enmod/internal/results"
	"github.com/roach88/enmod/internal/solver"
	"github.com/roach88/enmod/internal/testutil"
)

// Scenario results carry a fixed run id and solve time so they are
// reproducible.
const fixedRunID = "scenario"

var fixedSolvedAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Option configures a run.
type Option func(*Harness)

// WithBackend sets the solver backend. The default is the built-in
// simplex solver.
func WithBackend(b lp.Backend) Option {
	return func(h *Harness) { h.backend = b }
}

// WithLogger sets the logger handed to the model and solver. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness runs scenarios against one backend.
type Harness struct {
	backend lp.Backend
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the CUE model
//  2. Build and solve the optimization model
//  3. Extract results with a fixed run id and solve time
//  4. Check the expectations
//
// A pipeline error is a failed expectation unless the scenario expects
// exactly that error code.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	if scenario == nil {
		return nil, fmt.Errorf("scenario is nil")
	}
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	if h.backend == nil {
		h.backend = solver.New(solver.WithLogger(h.logger))
	}
	return h.run(ctx, scenario), nil
}

func (h *Harness) run(ctx context.Context, s *Scenario) *Result {
	result := NewResult()

	r, err := h.solve(ctx, s)
	if err != nil {
		result.Code = codeOf(err)
		switch {
		case s.Expect.Error == "":
			result.AddError(fmt.Sprintf("run failed: %v", err))
		case !hasCode(err, s.Expect.Error):
			result.AddError(fmt.Sprintf("expected error %s, got %v", s.Expect.Error, err))
		}
		return result
	}

	result.Results = r
	result.Status = r.Status
	result.Objective = r.Objective
	if s.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected error %s, but the model solved", s.Expect.Error))
		return result
	}
	checkExpectations(result, r, s.Expect)
	if s.Golden != "" {
		checkGolden(result, s)
	}
	return result
}

func (h *Harness) solve(ctx context.Context, s *Scenario) (*results.Results, error) {
	compiled, err := compiler.LoadFile(s.Model)
	if err != nil {
		return nil, err
	}
	m, err := model.Build(compiled.System, model.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	sol, err := m.Solve(ctx, h.backend, s.Options)
	if err != nil {
		return nil, err
	}
	return results.Extract(m, sol,
		results.WithIDGenerator(results.NewFixedGenerator(fixedRunID)),
		results.WithClock(testutil.NewClock(fixedSolvedAt, 0).Now))
}

func checkExpectations(result *Result, r *results.Results, e Expect) {
	tol := e.tolerance()

	if want := e.status(); r.Status != want {
		result.AddError(fmt.Sprintf("status: expected %s, got %s", want, r.Status))
	}
	if e.Objective != nil && !within(r.Objective, *e.Objective, tol) {
		result.AddError(fmt.Sprintf("objective: expected %g, got %g", *e.Objective, r.Objective))
	}

	for _, want := range e.Sequences {
		name := want.Name
		if name == "" {
			name = "flow"
		}
		entry, label := lookup(r, want.From, want.To)
		if entry == nil {
			result.AddError(fmt.Sprintf("%s: no such entry", label))
			continue
		}
		got, ok := entry.Sequences[name]
		if !ok {
			result.AddError(fmt.Sprintf("%s: no sequence %q", label, name))
			continue
		}
		if len(got) != len(want.Values) {
			result.AddError(fmt.Sprintf("%s %s: expected %d values, got %d", label, name, len(want.Values), len(got)))
			continue
		}
		for t := range got {
			if !within(got[t], want.Values[t], tol) {
				result.AddError(fmt.Sprintf("%s %s[%s]: expected %g, got %g", label, name, r.TimeIndex[t], want.Values[t], got[t]))
			}
		}
	}

	for _, want := range e.Scalars {
		entry, label := lookup(r, want.From, want.To)
		if entry == nil {
			result.AddError(fmt.Sprintf("%s: no such entry", label))
			continue
		}
		got, ok := entry.Scalars[want.Name]
		if !ok {
			result.AddError(fmt.Sprintf("%s: no scalar %q", label, want.Name))
			continue
		}
		if !within(got, want.Value, tol) {
			result.AddError(fmt.Sprintf("%s %s: expected %g, got %g", label, want.Name, want.Value, got))
		}
	}
}

// lookup finds the entry keyed by node labels. An empty to addresses the
// node entry (from, None).
func lookup(r *results.Results, from, to string) (*results.Entry, string) {
	for k, e := range r.Entries {
		if k.From == nil || k.From.NodeLabel() != from {
			continue
		}
		if (to == "" && k.To == nil) || (k.To != nil && k.To.NodeLabel() == to) {
			return e, k.String()
		}
	}
	if to == "" {
		to = "None"
	}
	return nil, "(" + from + ", " + to + ")"
}

func within(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

// codeOf reports the first error code carried by err: a framework code, or
// the first compiler validation code.
func codeOf(err error) string {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Code
	}
	return string(errs.CodeOf(err))
}

func hasCode(err error, code string) bool {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return slices.Contains(verrs.Codes(), code)
	}
	return string(errs.CodeOf(err)) == code
}

// flowKeys returns the keys carrying a flow sequence, ordered by rendering.
func flowKeys(r *results.Results) []energy.Key {
	var out []energy.Key
	for _, k := range r.Keys() {
		if _, ok := r.Entries[k].Sequences["flow"]; ok {
			out = append(out, k)
		}
	}
	return out
}
