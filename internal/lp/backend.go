package lp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the outcome reported by a backend.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusAborted    Status = "aborted"
)

// Options configures a solve. Backends ignore options they do not know.
type Options struct {
	// TimeLimit bounds the wall-clock time of the solve. Zero means none.
	TimeLimit time.Duration `yaml:"time_limit,omitempty"`

	// MIPGap is the relative optimality gap at which branch-and-bound stops.
	MIPGap float64 `yaml:"mip_gap,omitempty"`

	// MaxNodes bounds the number of branch-and-bound nodes. Zero uses the
	// backend default.
	MaxNodes int `yaml:"max_nodes,omitempty"`

	// Duals requests dual values when the backend supports them.
	Duals bool `yaml:"duals,omitempty"`
}

// LoadOptions reads solver options from a YAML file. Unknown fields are
// rejected.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read solver options: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes solver options from YAML.
func ParseOptions(data []byte) (Options, error) {
	var opts Options
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse solver options: %w", err)
	}
	if opts.MIPGap < 0 || opts.MaxNodes < 0 || opts.TimeLimit < 0 {
		return Options{}, fmt.Errorf("solver options must be nonnegative")
	}
	return opts, nil
}

// Solution holds the values read back from a backend.
type Solution struct {
	Status    Status
	Objective float64

	// Values holds one primal value per variable, indexed by Var.
	Values []float64

	// Duals holds one dual value per constraint, or nil when the backend
	// does not support duals or they were not requested.
	Duals []float64

	Iterations int
	Nodes      int
	Backend    string
}

// Value returns the primal value of v.
func (s *Solution) Value(v Var) (float64, bool) {
	if s == nil || int(v) < 0 || int(v) >= len(s.Values) {
		return 0, false
	}
	return s.Values[v], true
}

// Dual returns the dual value of constraint i.
func (s *Solution) Dual(i int) (float64, bool) {
	if s == nil || s.Duals == nil || i < 0 || i >= len(s.Duals) {
		return 0, false
	}
	return s.Duals[i], true
}

// Backend solves problems. Implementations must not retain the problem.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// SupportsDuals reports whether Solve can return constraint duals.
	SupportsDuals() bool

	// SupportsSOS2 reports whether Solve honours SOS2 sets natively.
	SupportsSOS2() bool

	// Solve runs the backend. A non-nil error means the backend failed;
	// infeasibility and unboundedness are reported through the status.
	Solve(ctx context.Context, p *Problem, opts Options) (*Solution, error)
}
