package compiler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/enmod/internal/energy"
)

//go:embed schema.cue
var schemaSrc string

// Model is a loaded model file.
type Model struct {
	// Name is the file name the model was loaded from.
	Name   string
	System *energy.EnergySystem
	// Definition is the evaluated model as a JSON tree, for snapshots.
	Definition map[string]any
}

// LoadFile reads and compiles the model file at path.
func LoadFile(path string) (*Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Compile(path, src)
}

// Compile evaluates src against the model schema and builds its energy
// system. CUE syntax errors return a *CompileError; everything found
// while validating the model is returned together as ValidationErrors.
func Compile(name string, src []byte) (*Model, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(name))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Model")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaErrors(err, name)
	}

	order, pos, verrs := checkNodes(v.LookupPath(cue.ParsePath("nodes")))
	if len(verrs) > 0 {
		return nil, verrs
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var f modelFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, ValidationErrors{{Field: "model", Message: err.Error(), Code: ErrSchema}}
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}

	b := &builder{file: &f, pos: pos}
	es := b.build(order)
	if len(b.errs) > 0 {
		return nil, b.errs
	}

	slog.Debug("model compiled", "file", name, "nodes", len(es.Nodes()), "edges", len(es.Edges()), "timesteps", es.Horizon.T())
	return &Model{Name: name, System: es, Definition: def}, nil
}

// kindFields lists the node fields each kind accepts besides kind.
var kindFields = map[energy.Kind][]string{
	energy.KindBus:       {"balanced", "inputs", "outputs"},
	energy.KindSource:    {"outputs"},
	energy.KindSink:      {"inputs"},
	energy.KindConverter: {"inputs", "outputs", "conversion_factors"},
	energy.KindStorage: {
		"inputs", "outputs", "nominal_capacity", "investment", "initial_storage_level",
		"loss_rate", "fixed_losses_relative", "fixed_losses_absolute",
		"inflow_conversion_factor", "outflow_conversion_factor",
		"min_storage_level", "max_storage_level", "balanced",
		"invest_relation_input_capacity", "invest_relation_output_capacity", "invest_relation_input_output",
		"storage_costs", "lifetime", "age", "fixed_costs",
	},
	energy.KindOffsetConverter: {"inputs", "outputs", "slopes", "offsets"},
	energy.KindCHP: {
		"fuel", "electrical", "heat", "h_l_fg_share_max", "h_l_fg_share_min",
		"p_max_wo_dh", "p_min_wo_dh", "eta_el_max_wo_dh", "eta_el_min_wo_dh",
		"q_cw_min", "beta", "back_pressure",
	},
	energy.KindPiecewiseConverter: {"inputs", "outputs", "in_breakpoints", "out_breakpoints", "encoding"},
	energy.KindSinkDSM: {
		"inputs", "approach", "demand", "capacity_up", "capacity_down",
		"max_demand", "max_capacity_up", "max_capacity_down",
		"shift_interval", "delay_time", "delay_times", "shift_time", "shed_time",
		"cost_dsm_up", "cost_dsm_down_shift", "cost_dsm_down_shed", "efficiency",
		"recovery_time_shift", "recovery_time_shed", "shift_eligibility", "shed_eligibility",
		"activate_yearly_limit", "activate_day_limit", "n_yearly_limit_shift", "n_yearly_limit_shed",
		"t_dayly_limit", "add_logical_constraint", "fixes", "investment", "fixed_costs",
	},
}

// checkNodes walks the nodes in source order, rejecting unknown kinds
// (E102) and fields the kind does not accept (E101).
func checkNodes(nodes cue.Value) ([]string, map[string]token.Pos, ValidationErrors) {
	var (
		order []string
		errs  ValidationErrors
	)
	pos := make(map[string]token.Pos)

	iter, err := nodes.Fields()
	if err != nil {
		return nil, nil, ValidationErrors{{Field: "nodes", Message: err.Error(), Code: ErrSchema}}
	}
	for iter.Next() {
		label := iter.Label()
		nv := iter.Value()
		order = append(order, label)
		pos[label] = nv.Pos()

		kind, _ := nv.LookupPath(cue.ParsePath("kind")).String()
		allowed, ok := kindFields[energy.Kind(kind)]
		if !ok {
			errs = append(errs, newValidationError(ErrUnknownKind, "nodes."+label+".kind", nv.Pos(), "unknown node kind %q", kind))
			continue
		}
		fields, err := nv.Fields()
		if err != nil {
			errs = append(errs, newValidationError(ErrSchema, "nodes."+label, nv.Pos(), "%v", err))
			continue
		}
		for fields.Next() {
			name := fields.Label()
			if name == "kind" || contains(allowed, name) {
				continue
			}
			errs = append(errs, newValidationError(ErrUnknownField, "nodes."+label+"."+name, fields.Value().Pos(),
				"field not allowed for kind %s", kind))
		}
	}
	return order, pos, errs
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}
