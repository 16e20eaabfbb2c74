package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

// ============================================================================
// validate
// ============================================================================

func TestValidateCommand_Valid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/gas_plant.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ testdata/gas_plant.cue valid: 4 nodes, 3 flows, 3 timesteps")
}

func TestValidateCommand_JSONGolden(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", "testdata/gas_plant.cue")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "validate_gas_plant", []byte(out))
}

func TestValidateCommand_UnknownField(t *testing.T) {
	out, err := execute(t, "validate", "testdata/typo.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E101")
}

func TestValidateCommand_UnknownFieldJSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", "testdata/typo.cue")
	require.Error(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E101", resp.Error.Code)
	assert.Equal(t, false, dataMap(t, resp)["valid"])
}

func TestValidateCommand_MissingFile(t *testing.T) {
	out, err := execute(t, "validate", "testdata/nope.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

// ============================================================================
// solve and results
// ============================================================================

func TestSolveCommand_Text(t *testing.T) {
	out, err := execute(t, "solve", "testdata/gas_plant.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ optimal, objective 2250 (simplex)")
	assert.Contains(t, out, "FROM")
	assert.Contains(t, out, "demand")
}

func TestSolveCommand_StoresRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "solve", "--format", "json", "--db", db, "testdata/gas_plant.cue")
	require.NoError(t, err)
	data := dataMap(t, decodeResponse(t, out))
	assert.InDelta(t, 2250, data["objective"], 1e-6)
	assert.Equal(t, "optimal", data["status"])
	assert.Equal(t, db, data["database"])
	runID, _ := data["run_id"].(string)
	require.NotEmpty(t, runID)
	flows, _ := data["flows"].([]any)
	assert.Len(t, flows, 3)

	out, err = execute(t, "results", "--format", "json", db)
	require.NoError(t, err)
	runs, ok := decodeResponse(t, out).Data.([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].(map[string]any)["id"])

	out, err = execute(t, "results", "--format", "json", db, "latest")
	require.NoError(t, err)
	snap := dataMap(t, decodeResponse(t, out))
	assert.Equal(t, runID, snap["run_id"])
	assert.InDelta(t, 2250, snap["objective"], 1e-6)
	assert.NotNil(t, snap["definition"])

	out, err = execute(t, "results", db, runID)
	require.NoError(t, err)
	assert.Contains(t, out, "run "+runID)
	assert.Contains(t, out, "objective: 2250")

	out, err = execute(t, "results", db)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
}

func TestResultsCommand_DeleteAndHash(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "solve", "--format", "json", "--db", db, "testdata/gas_plant.cue")
	require.NoError(t, err)
	runID := dataMap(t, decodeResponse(t, out))["run_id"].(string)

	out, err = execute(t, "results", "--format", "json", db)
	require.NoError(t, err)
	hash := decodeResponse(t, out).Data.([]any)[0].(map[string]any)["content_hash"].(string)

	out, err = execute(t, "results", "--format", "json", "--hash", hash, db)
	require.NoError(t, err)
	assert.Len(t, decodeResponse(t, out).Data.([]any), 1)

	out, err = execute(t, "results", "--format", "json", "--hash", "0000", db)
	require.NoError(t, err)
	assert.Empty(t, decodeResponse(t, out).Data.([]any))

	_, err = execute(t, "results", "--delete", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = execute(t, "results", "--delete", db, runID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run "+runID)

	out, err = execute(t, "results", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs stored.")

	_, err = execute(t, "results", db, runID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResultsCommand_MissingDatabase(t *testing.T) {
	_, err := execute(t, "results", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSolveCommand_Infeasible(t *testing.T) {
	out, err := execute(t, "solve", "--format", "json", "testdata/infeasible.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INFEASIBLE_MODEL", resp.Error.Code)
}

func TestSolveCommand_OptionsFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("duals: true\nmax_nodes: 100\n"), 0644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dual: true\n"), 0644))

	_, err := execute(t, "solve", "--options", good, "testdata/gas_plant.cue")
	require.NoError(t, err)

	_, err = execute(t, "solve", "--options", bad, "testdata/gas_plant.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSolveCommand_UnknownSolver(t *testing.T) {
	t.Setenv(SolverEnv, "gurobi")

	_, err := execute(t, "solve", "testdata/gas_plant.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// ============================================================================
// lp
// ============================================================================

func TestLPCommand_Stdout(t *testing.T) {
	out, err := execute(t, "lp", "testdata/gas_plant.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "Minimize")
	assert.Contains(t, out, "Subject To")
	assert.Contains(t, out, "flow(pp,el,0)")
}

func TestLPCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.lp")

	out, err := execute(t, "lp", "-o", path, "testdata/gas_plant.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "End")
}

// ============================================================================
// test
// ============================================================================

func TestTestCommand_Passes(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios/gas_plant.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ gas_plant")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_DirectoryWithFailure(t *testing.T) {
	out, err := execute(t, "test", "--format", "json", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	data := dataMap(t, resp)
	assert.EqualValues(t, 2, data["total"])
	assert.EqualValues(t, 1, data["failed"])
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", "--filter", "gas*", "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
}

func TestTestCommand_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	model, err := filepath.Abs("testdata/gas_plant.cue")
	require.NoError(t, err)
	scenario := filepath.Join(dir, "plant.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(
		"name: gas_plant\nmodel: "+model+"\ngolden: golden/plant.golden\n"), 0644))

	_, err = execute(t, "test", "--update", scenario)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "golden", "plant.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/golden/gas_plant_summary.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, err = execute(t, "test", scenario)
	require.NoError(t, err)
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "test", "testdata/none")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
