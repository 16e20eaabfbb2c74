// Package errs defines the error taxonomy shared by every stage of the
// model pipeline.
//
// Every error raised by the framework is an *Error carrying a Code. Callers
// branch on the code with the Is* predicates, which see through wrapping:
//
//	if errs.IsInfeasible(err) {
//	    // relax the model
//	}
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes framework errors.
type Code string

const (
	// CodeConfig indicates an invalid parameter combination detected at build time.
	CodeConfig Code = "CONFIG_ERROR"

	// CodeDuplicateLabel indicates two entities share a label within one energy system.
	CodeDuplicateLabel Code = "DUPLICATE_LABEL"

	// CodeBadSequenceLength indicates a sequence parameter does not match the horizon.
	CodeBadSequenceLength Code = "BAD_SEQUENCE_LENGTH"

	// CodeMissingParameter indicates a required parameter is absent.
	CodeMissingParameter Code = "MISSING_PARAMETER"

	// CodeRequirement indicates a helper was applied to entities lacking a required attribute.
	CodeRequirement Code = "REQUIREMENT_ERROR"

	// CodeDependency indicates an operation ran before the stage it depends on.
	CodeDependency Code = "DEPENDENCY_ERROR"

	// CodeInfeasible indicates the backend proved the problem infeasible.
	CodeInfeasible Code = "INFEASIBLE_MODEL"

	// CodeSolver indicates the backend failed for a reason other than infeasibility.
	CodeSolver Code = "SOLVER_ERROR"

	// CodeResultIndex indicates a solved model is missing an expected value.
	CodeResultIndex Code = "RESULT_INDEX_ERROR"
)

// Error is the structured error type used across the framework.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity names the offending entity or tuple, if any.
	Entity string

	// Details contains additional context (solver status, parameter names).
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	if e.Entity != "" {
		b.WriteString(e.Entity)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e with an added detail.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Config creates a CONFIG_ERROR for entity.
func Config(entity, format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// DuplicateLabel creates a DUPLICATE_LABEL error.
func DuplicateLabel(label string) *Error {
	return &Error{Code: CodeDuplicateLabel, Entity: label, Message: "label already registered in energy system"}
}

// BadSequenceLength creates a BAD_SEQUENCE_LENGTH error.
func BadSequenceLength(got, want int) *Error {
	return &Error{
		Code:    CodeBadSequenceLength,
		Message: fmt.Sprintf("sequence has length %d, horizon has %d", got, want),
		Details: map[string]string{
			"got":  fmt.Sprintf("%d", got),
			"want": fmt.Sprintf("%d", want),
		},
	}
}

// MissingParameter creates a MISSING_PARAMETER error.
func MissingParameter(entity, param string) *Error {
	return &Error{
		Code:    CodeMissingParameter,
		Entity:  entity,
		Message: fmt.Sprintf("required parameter %q is not set", param),
		Details: map[string]string{"parameter": param},
	}
}

// Requirement creates a REQUIREMENT_ERROR.
func Requirement(entity, format string, args ...any) *Error {
	return &Error{Code: CodeRequirement, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Dependency creates a DEPENDENCY_ERROR.
func Dependency(format string, args ...any) *Error {
	return &Error{Code: CodeDependency, Message: fmt.Sprintf(format, args...)}
}

// Infeasible creates an INFEASIBLE_MODEL error preserving the backend status.
func Infeasible(backend, status string) *Error {
	return &Error{
		Code:    CodeInfeasible,
		Message: "backend reported the problem infeasible",
		Details: map[string]string{"backend": backend, "status": status},
	}
}

// Solver creates a SOLVER_ERROR preserving the backend status.
func Solver(backend, status string, cause error) *Error {
	return &Error{
		Code:    CodeSolver,
		Message: "backend failed",
		Details: map[string]string{"backend": backend, "status": status},
		Err:     cause,
	}
}

// ResultIndex creates a RESULT_INDEX_ERROR pointing at the offending tuple.
func ResultIndex(tuple, variable string) *Error {
	return &Error{
		Code:    CodeResultIndex,
		Entity:  tuple,
		Message: fmt.Sprintf("no value for variable %q", variable),
		Details: map[string]string{"variable": variable},
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigError reports whether err is a CONFIG_ERROR.
func IsConfigError(err error) bool { return CodeOf(err) == CodeConfig }

// IsDuplicateLabel reports whether err is a DUPLICATE_LABEL error.
func IsDuplicateLabel(err error) bool { return CodeOf(err) == CodeDuplicateLabel }

// IsBadSequenceLength reports whether err is a BAD_SEQUENCE_LENGTH error.
func IsBadSequenceLength(err error) bool { return CodeOf(err) == CodeBadSequenceLength }

// IsMissingParameter reports whether err is a MISSING_PARAMETER error.
func IsMissingParameter(err error) bool { return CodeOf(err) == CodeMissingParameter }

// IsRequirementError reports whether err is a REQUIREMENT_ERROR.
func IsRequirementError(err error) bool { return CodeOf(err) == CodeRequirement }

// IsDependencyError reports whether err is a DEPENDENCY_ERROR.
func IsDependencyError(err error) bool { return CodeOf(err) == CodeDependency }

// IsInfeasible reports whether err is an INFEASIBLE_MODEL error.
func IsInfeasible(err error) bool { return CodeOf(err) == CodeInfeasible }

// IsSolverError reports whether err is a SOLVER_ERROR.
func IsSolverError(err error) bool { return CodeOf(err) == CodeSolver }

// IsResultIndexError reports whether err is a RESULT_INDEX_ERROR.
func IsResultIndexError(err error) bool { return CodeOf(err) == CodeResultIndex }
