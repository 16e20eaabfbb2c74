package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/solver"
)

// SolverEnv names the environment variable selecting the solver backend.
const SolverEnv = "ENMOD_SOLVER"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the enmod CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "enmod",
		Short: "enmod - energy system optimization models",
		Long: `Build, solve and inspect energy system models.

Models are CUE files declaring a horizon and the nodes of the system. enmod
turns them into a linear or mixed-integer program, solves it and stores the
results in a SQLite run database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSolveCommand(opts))
	cmd.AddCommand(NewResultsCommand(opts))
	cmd.AddCommand(NewLPCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// formatter returns the output formatter of cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns a text logger on w: Debug with --verbose, Warn otherwise.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newBackend returns the backend named by ENMOD_SOLVER.
func newBackend(logger *slog.Logger) (lp.Backend, error) {
	switch name := os.Getenv(SolverEnv); name {
	case "", "simplex":
		return solver.New(solver.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown solver %q in %s (available: simplex)", name, SolverEnv)
	}
}
