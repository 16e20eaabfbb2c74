package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/results"
	"github.com/roach88/enmod/internal/snapshot"
	"github.com/roach88/enmod/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Hash   string
	Delete bool
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results <db> [run-id]",
		Short: "List stored runs or show one",
		Long: `Inspect a run database written by solve --db.

Without a run id all runs are listed in creation order. The run id
"latest" selects the most recent run. Stored snapshots are checked against
their content hash when loaded.

Examples:
  enmod results runs.db
  enmod results runs.db latest
  enmod results runs.db 01927c4e-... --format json
  enmod results runs.db --hash 3f2a...
  enmod results runs.db 01927c4e-... --delete`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			return runResults(opts, args[0], id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Hash, "hash", "", "list runs with this content hash")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the given run")

	return cmd
}

func runResults(opts *ResultsOptions, dbPath, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath), nil)
	}
	st, err := store.Open(dbPath, store.WithLogger(opts.logger(cmd.ErrOrStderr())))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.Delete:
		if id == "" || id == "latest" {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "--delete needs an explicit run id", nil)
		}
		if err := st.Delete(ctx, id); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to delete run", err)
		}
		return f.Success(map[string]string{"deleted": id}, func(w io.Writer) {
			fmt.Fprintf(w, "✓ deleted run %s\n", id)
		})

	case id == "":
		var runs []store.RunInfo
		if opts.Hash != "" {
			runs, err = st.FindByHash(ctx, opts.Hash)
		} else {
			runs, err = st.List(ctx)
		}
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to list runs", err)
		}
		if runs == nil {
			runs = []store.RunInfo{}
		}
		return f.Success(runs, func(w io.Writer) { writeRunList(w, runs) })
	}

	var snap *snapshot.Snapshot
	if id == "latest" {
		snap, err = st.Latest(ctx)
	} else {
		snap, err = st.Load(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to load run", err)
	}
	return f.Success(snap, func(w io.Writer) { writeSnapshotText(w, snap) })
}

func writeRunList(w io.Writer, runs []store.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSOLVED\tSTATUS\tOBJECTIVE\tSOLVER")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%s\n", r.ID, r.SolvedAt.Format(time.RFC3339), r.Status, r.Objective, r.Solver)
	}
	tw.Flush()
}

func writeSnapshotText(w io.Writer, s *snapshot.Snapshot) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	fmt.Fprintf(w, "  status:    %s\n", s.Status)
	fmt.Fprintf(w, "  objective: %.6g\n", s.Objective)
	fmt.Fprintf(w, "  solver:    %s\n", s.Solver)
	fmt.Fprintf(w, "  solved at: %s\n", s.SolvedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  nodes:     %d, flows: %d, timesteps: %d\n", len(s.Nodes), len(s.Edges), len(s.TimeIndex))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tNAME\tSUM\tMEAN\tMIN\tMAX")
	for _, e := range s.Entries {
		to := e.To
		if to == "" {
			to = "-"
		}
		for _, name := range sortedKeys(e.Sequences) {
			sum := results.Summarize(e.Sequences[name])
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\n", e.From, to, name, sum.Sum, sum.Mean, sum.Min, sum.Max)
		}
		for _, name := range sortedKeys(e.Scalars) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t\t\t\n", e.From, to, name, e.Scalars[name])
		}
	}
	tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
