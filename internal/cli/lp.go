package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/compiler"
	"github.com/roach88/enmod/internal/model"
)

// LPOptions holds flags for the lp command.
type LPOptions struct {
	*RootOptions
	Output string
}

// NewLPCommand creates the lp command.
func NewLPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LPOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lp <model.cue>",
		Short: "Write the optimization problem in LP format",
		Long: `Build a model and write its problem in CPLEX LP format without solving
it, for inspection or for solving with an external solver.

Examples:
  enmod lp model.cue
  enmod lp model.cue -o model.lp`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLP(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runLP(opts *LPOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	compiled, err := compiler.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("model file not found: %s", path), nil)
		}
		return outputValidationErrors(f, asValidationErrors(err))
	}
	m, err := model.Build(compiled.System, model.WithLogger(opts.logger(cmd.ErrOrStderr())))
	if err != nil {
		return f.Fail(ExitFailure, codeOf(err), "build failed", err)
	}

	if opts.Output == "" {
		return m.WriteLP(cmd.OutOrStdout())
	}

	out, err := os.Create(opts.Output)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create output file", err)
	}
	if err := m.WriteLP(out); err != nil {
		out.Close()
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write LP", err)
	}
	if err := out.Close(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write LP", err)
	}

	stats := m.Problem().Stats()
	return f.Success(map[string]any{"output": opts.Output, "stats": stats}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ wrote %s\n", opts.Output)
	})
}
