package harness

import (
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/results"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation holds.
	Pass bool `json:"pass"`

	// Errors contains the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Status    lp.Status `json:"status,omitempty"`
	Objective float64   `json:"objective"`

	// Code is the error code the pipeline stopped with, if any.
	Code string `json:"code,omitempty"`

	// Results holds the solution when the model solved.
	Results *results.Results `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
