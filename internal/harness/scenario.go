package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/enmod/internal/lp"
)

// DefaultTolerance is the absolute tolerance used when a scenario sets none.
const DefaultTolerance = 1e-6

// Scenario is a model test case loaded from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Model is the path of the CUE model. LoadScenario resolves it relative
	// to the scenario file.
	Model string `yaml:"model"`

	Options lp.Options `yaml:"options,omitempty"`
	Expect  Expect     `yaml:"expect"`

	// Golden is the path of a golden summary to compare against,
	// resolved like Model.
	Golden string `yaml:"golden,omitempty"`
}

// Expect lists what a run must produce.
type Expect struct {
	// Status defaults to optimal when Error is empty.
	Status lp.Status `yaml:"status,omitempty"`

	// Error is the code the run must fail with: a framework code such as
	// INFEASIBLE_MODEL or a model compiler code such as E101.
	Error string `yaml:"error,omitempty"`

	Objective *float64 `yaml:"objective,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`

	Sequences []SequenceExpect `yaml:"sequences,omitempty"`
	Scalars   []ScalarExpect   `yaml:"scalars,omitempty"`
}

// SequenceExpect is an expected time series of the key (from, to). An
// empty To addresses a node entry, an empty Name the flow.
type SequenceExpect struct {
	From   string    `yaml:"from"`
	To     string    `yaml:"to,omitempty"`
	Name   string    `yaml:"name,omitempty"`
	Values []float64 `yaml:"values"`
}

// ScalarExpect is an expected scalar of the key (from, to).
type ScalarExpect struct {
	From  string  `yaml:"from"`
	To    string  `yaml:"to,omitempty"`
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

func (e Expect) tolerance() float64 {
	if e.Tolerance > 0 {
		return e.Tolerance
	}
	return DefaultTolerance
}

func (e Expect) status() lp.Status {
	if e.Status == "" {
		return lp.StatusOptimal
	}
	return e.Status
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos in expectations surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}
	if scenario.Golden != "" && !filepath.IsAbs(scenario.Golden) {
		scenario.Golden = filepath.Join(filepath.Dir(path), scenario.Golden)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}

	e := s.Expect
	if e.Tolerance < 0 {
		return fmt.Errorf("expect.tolerance must be non-negative")
	}
	switch e.Status {
	case "", lp.StatusOptimal, lp.StatusFeasible:
	default:
		return fmt.Errorf("expect.status: %q is not a solved status", e.Status)
	}
	if e.Error != "" && (e.Status != "" || e.Objective != nil || len(e.Sequences) > 0 || len(e.Scalars) > 0) {
		return fmt.Errorf("expect.error excludes status, objective and value expectations")
	}
	for i, seq := range e.Sequences {
		if seq.From == "" {
			return fmt.Errorf("expect.sequences[%d]: from is required", i)
		}
		if len(seq.Values) == 0 {
			return fmt.Errorf("expect.sequences[%d]: values are required", i)
		}
	}
	for i, sc := range e.Scalars {
		if sc.From == "" || sc.Name == "" {
			return fmt.Errorf("expect.scalars[%d]: from and name are required", i)
		}
	}
	return nil
}
