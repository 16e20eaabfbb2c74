package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Validation error codes (E100-E199)
const (
	ErrSchema         = "E100" // value does not match the model schema
	ErrUnknownField   = "E101" // field not part of the schema or not valid for the node kind
	ErrUnknownKind    = "E102" // node kind not recognized
	ErrMissingTarget  = "E103" // port names a node that does not exist
	ErrInvalidValue   = "E104" // value well-typed but not acceptable
	ErrSystemRejected = "E105" // the energy system refused the nodes
)

// ValidationError is a single problem found in a model file.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors collects every problem of a model file. Loading does
// not stop at the first one.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Codes returns the error codes in order.
func (es ValidationErrors) Codes() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Code
	}
	return out
}

func newValidationError(code, field string, pos token.Pos, format string, args ...any) ValidationError {
	ve := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
	if pos.IsValid() {
		ve.Line = pos.Line()
	}
	return ve
}

// CompileError is a CUE syntax or evaluation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// schemaErrors turns the errors of unifying a file with #Model into
// validation errors. Closedness violations map to E101. Positions prefer
// the model file over the embedded schema.
func schemaErrors(err error, filename string) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		field := strings.Join(errors.Path(e), ".")
		if field == "" {
			field = "model"
		}
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		code := ErrSchema
		if strings.Contains(msg, "not allowed") {
			code = ErrUnknownField
		}
		var pos token.Pos
		for _, p := range errors.Positions(e) {
			if p.Filename() == filename {
				pos = p
				break
			}
		}
		out = append(out, newValidationError(code, field, pos, "%s", msg))
	}
	return out
}
