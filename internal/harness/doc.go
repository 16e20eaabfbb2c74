// Package harness runs model test scenarios.
//
// A scenario is a YAML file naming a CUE model, solver options and the
// expected outcome:
//
//	name: gas_plant
//	model: ../models/gas_plant.cue
//	options:
//	  duals: true
//	expect:
//	  objective: 2250
//	  sequences:
//	    - from: pp
//	      to: el
//	      values: [10, 20, 15]
//	golden: ../golden/gas_plant.golden
//
// Run compiles the model, solves it and checks every expectation. Values
// are compared with an absolute tolerance, 1e-6 unless the scenario sets
// one. A scenario can instead expect the run to fail with an error code,
// for example INFEASIBLE_MODEL or the compiler code E101.
//
// With golden set, a canonical JSON summary of the flows is compared
// against the named file. Tests use RunWithGolden instead, which keeps the
// files under testdata/golden and rewrites them with -update.
package harness
