package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/compiler"
	"github.com/roach88/enmod/internal/errs"
	"github.com/roach88/enmod/internal/lp"
	"github.com/roach88/enmod/internal/model"
	"github.com/roach88/enmod/internal/results"
	"github.com/roach88/enmod/internal/snapshot"
	"github.com/roach88/enmod/internal/store"
)

// SolveOptions holds flags for the solve command.
type SolveOptions struct {
	*RootOptions
	Database string
	Options  string // solver options YAML
	Duals    bool
}

// FlowSummary is one flow of a solve result.
type FlowSummary struct {
	From string `json:"from"`
	To   string `json:"to"`
	results.Summary
}

// SolveResult is the output of the solve command.
type SolveResult struct {
	RunID     string        `json:"run_id"`
	Status    lp.Status     `json:"status"`
	Objective float64       `json:"objective"`
	Solver    string        `json:"solver"`
	Database  string        `json:"database,omitempty"`
	Flows     []FlowSummary `json:"flows"`
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve <model.cue>",
		Short: "Solve a model and report its flows",
		Long: `Compile and solve a CUE model.

The backend is chosen by ENMOD_SOLVER (default simplex). With --db the run
is stored as a snapshot together with the model definition.

Exit codes:
  0 - Solved
  1 - Invalid model, infeasible model or solver failure
  2 - Command error (missing files, unknown solver, database errors)

Examples:
  enmod solve model.cue
  enmod solve model.cue --db runs.db --options solver.yaml
  ENMOD_SOLVER=simplex enmod solve model.cue --duals --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "store the run in this SQLite database")
	cmd.Flags().StringVar(&opts.Options, "options", "", "solver options YAML file")
	cmd.Flags().BoolVar(&opts.Duals, "duals", false, "extract bus balance duals")

	return cmd
}

func runSolve(opts *SolveOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	var solveOpts lp.Options
	if opts.Options != "" {
		var err error
		if solveOpts, err = lp.LoadOptions(opts.Options); err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid solver options", err)
		}
	}
	solveOpts.Duals = solveOpts.Duals || opts.Duals

	backend, err := newBackend(logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "no solver", err)
	}

	compiled, err := compiler.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("model file not found: %s", path), nil)
		}
		return outputValidationErrors(f, asValidationErrors(err))
	}

	m, err := model.Build(compiled.System, model.WithLogger(logger))
	if err != nil {
		return f.Fail(ExitFailure, codeOf(err), "build failed", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sol, err := m.Solve(ctx, backend, solveOpts)
	if err != nil {
		return f.Fail(ExitFailure, codeOf(err), "solve failed", err)
	}
	r, err := results.Extract(m, sol)
	if err != nil {
		return f.Fail(ExitFailure, codeOf(err), "result extraction failed", err)
	}

	out := SolveResult{
		RunID:     r.Meta.RunID,
		Status:    r.Status,
		Objective: r.Objective,
		Solver:    r.Meta.Solver,
		Flows:     flowSummaries(r),
	}

	if opts.Database != "" {
		if err := storeRun(ctx, opts.Database, compiled, r, logger); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to store run", err)
		}
		out.Database = opts.Database
	}

	return f.Success(out, func(w io.Writer) { writeSolveText(w, out) })
}

func storeRun(ctx context.Context, path string, compiled *compiler.Model, r *results.Results, logger *slog.Logger) error {
	st, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := snapshot.New(compiled.System, r, snapshot.WithDefinition(compiled.Definition))
	if err != nil {
		return err
	}
	_, err = st.Save(ctx, snap)
	return err
}

func flowSummaries(r *results.Results) []FlowSummary {
	var out []FlowSummary
	for _, k := range r.Keys() {
		seq, ok := r.Entries[k].Sequences["flow"]
		if !ok || k.From == nil || k.To == nil {
			continue
		}
		out = append(out, FlowSummary{
			From:    k.From.NodeLabel(),
			To:      k.To.NodeLabel(),
			Summary: results.Summarize(seq),
		})
	}
	return out
}

func writeSolveText(w io.Writer, out SolveResult) {
	fmt.Fprintf(w, "✓ %s, objective %.6g (%s)\n", out.Status, out.Objective, out.Solver)
	if out.Database != "" {
		fmt.Fprintf(w, "stored run %s in %s\n", out.RunID, out.Database)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tSUM\tMEAN\tMIN\tMAX")
	for _, fl := range out.Flows {
		fmt.Fprintf(tw, "%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\n", fl.From, fl.To, fl.Sum, fl.Mean, fl.Min, fl.Max)
	}
	tw.Flush()
}

// codeOf returns the framework error code of err, or the generic code.
func codeOf(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return ErrCodeGeneric
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
