package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Nodes     int                        `json:"nodes,omitempty"`
	Flows     int                        `json:"flows,omitempty"`
	Timesteps int                        `json:"timesteps,omitempty"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <model.cue>",
		Short: "Validate a model file without solving it",
		Long: `Validate a CUE model file.

Checks the file against the model schema, rejects unknown fields and node
kinds, resolves flow targets and builds the energy system. Nothing is
solved.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	m, err := compiler.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("model file not found: %s", path), nil)
		}
		return outputValidationErrors(f, asValidationErrors(err))
	}

	es := m.System
	result := ValidationResult{
		Valid:     true,
		Nodes:     len(es.Nodes()),
		Flows:     len(es.Edges()),
		Timesteps: es.Horizon.T(),
	}
	f.VerboseLog("compiled %s", m.Name)
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s valid: %d nodes, %d flows, %d timesteps\n", path, result.Nodes, result.Flows, result.Timesteps)
	})
}

// asValidationErrors flattens a compiler error into validation errors.
func asValidationErrors(err error) []compiler.ValidationError {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		line := 0
		if cerr.Pos.IsValid() {
			line = cerr.Pos.Line()
		}
		return []compiler.ValidationError{{Field: cerr.Field, Message: cerr.Message, Code: compiler.ErrSchema, Line: line}}
	}
	return []compiler.ValidationError{{Field: "model", Message: err.Error(), Code: ErrCodeGeneric}}
}

// outputValidationErrors outputs validation errors. Validation failures
// exit with code 1.
func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	exit := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if f.JSON() {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return exit
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exit
}
