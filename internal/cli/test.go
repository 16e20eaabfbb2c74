package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/enmod/internal/harness"
	"github.com/roach88/enmod/internal/lp"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml|dir>...",
		Short: "Run model scenarios",
		Long: `Run scenario files: each names a CUE model, solver options and the
expected status, objective and values. Directories are searched for
.yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unknown solver)

Examples:
  enmod test ./scenarios
  enmod test ./scenarios --filter "storage*"
  enmod test ./scenarios/gas_plant.yaml --update
  enmod test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	backend, err := newBackend(logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "no solver", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(opts, file, backend, logger, cmd)
		if !f.JSON() {
			writeScenarioText(f.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		if result.Total == 0 {
			fmt.Fprintln(f.Writer, "No scenarios found.")
			return nil
		}
		fmt.Fprintln(f.Writer)
		fmt.Fprintf(f.Writer, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	if !f.JSON() {
		fmt.Fprintln(f.Writer, "✓ All scenarios passed")
	}
	return nil
}

// findScenarioFiles returns path itself when it is a file, or every YAML
// file below it when it is a directory.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(p), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func runScenario(opts *TestOptions, file string, backend lp.Backend, logger *slog.Logger, cmd *cobra.Command) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = s.Name

	golden := s.Golden
	if opts.Update {
		s.Golden = ""
	}
	res, err := harness.Run(commandContext(cmd), s, harness.WithBackend(backend), harness.WithLogger(logger))
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}

	if opts.Update && golden != "" && res.Pass {
		if err := updateGoldenFile(golden, s.Name, res); err != nil {
			res.AddError(fmt.Sprintf("failed to update golden file: %v", err))
		}
	}
	sr.Pass = res.Pass
	sr.Errors = res.Errors
	return sr
}

// updateGoldenFile writes the current summary as the golden file.
func updateGoldenFile(path, name string, res *harness.Result) error {
	data, err := harness.GoldenSummary(name, res)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeScenarioText(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
