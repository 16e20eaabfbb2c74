package cli

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "enmod", cmd.Use)
	assert.Contains(t, cmd.Long, "energy system models")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"validate", "solve", "results", "lp", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		command, flag, shorthand string
	}{
		{"solve", "db", ""},
		{"solve", "options", ""},
		{"solve", "duals", ""},
		{"results", "hash", ""},
		{"results", "delete", ""},
		{"lp", "output", "o"},
		{"test", "update", ""},
		{"test", "filter", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "validate", "--format", "xml", "testdata/gas_plant.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestNewBackend(t *testing.T) {
	logger := (&RootOptions{}).logger(io.Discard)
	t.Setenv(SolverEnv, "")

	b, err := newBackend(logger)
	require.NoError(t, err)
	assert.Equal(t, "simplex", b.Name())

	t.Setenv(SolverEnv, "gurobi")
	_, err = newBackend(logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown solver "gurobi"`)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "solve failed", errors.New("boom"))
	assert.Equal(t, "solve failed: boom", wrapped.Error())
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
}
