package harness

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/enmod/internal/snapshot"
)

// goldenPrecision is the number of decimals kept in golden summaries, so
// solver round-off does not churn the files.
const goldenPrecision = 1e6

// GoldenSummary renders the comparable part of a result: the status, the
// objective and every flow sequence keyed by its edge. A failed pipeline
// renders its error code instead.
func GoldenSummary(name string, result *Result) ([]byte, error) {
	summary := map[string]any{"scenario": name}
	if result.Results == nil {
		summary["code"] = result.Code
		return snapshot.MarshalCanonical(summary)
	}

	r := result.Results
	flows := make(map[string]any)
	for _, k := range flowKeys(r) {
		seq := r.Entries[k].Sequences["flow"]
		rounded := make([]float64, len(seq))
		for i, v := range seq {
			rounded[i] = round(v)
		}
		flows[k.String()] = rounded
	}
	index := make([]any, len(r.TimeIndex))
	for i, label := range r.TimeIndex {
		index[i] = label
	}

	summary["status"] = string(r.Status)
	summary["objective"] = round(r.Objective)
	summary["time_index"] = index
	summary["flows"] = flows
	return snapshot.MarshalCanonical(summary)
}

func round(v float64) float64 {
	return math.Round(v*goldenPrecision) / goldenPrecision
}

// checkGolden compares the summary against the scenario's golden file.
func checkGolden(result *Result, s *Scenario) {
	want, err := os.ReadFile(s.Golden)
	if err != nil {
		result.AddError(fmt.Sprintf("golden: %v", err))
		return
	}
	got, err := GoldenSummary(s.Name, result)
	if err != nil {
		result.AddError(fmt.Sprintf("golden: %v", err))
		return
	}
	if !bytes.Equal(bytes.TrimSpace(want), got) {
		result.AddError(fmt.Sprintf("golden: summary differs from %s\n got: %s", s.Golden, got))
	}
}

// RunWithGolden executes a scenario and compares its summary against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := GoldenSummary(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
