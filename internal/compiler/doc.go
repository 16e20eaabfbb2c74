// Package compiler loads energy systems from declarative CUE model files.
//
// A model file has a horizon and a set of labeled nodes:
//
//	horizon: {timesteps: 3, increment: 1, start: "2024-01-01T00:00:00Z"}
//	nodes: {
//		gas: {kind: "bus", balanced: false}
//		el: {kind: "bus"}
//		pp: {
//			kind: "converter"
//			inputs: {gas: {}}
//			outputs: {el: {variable_costs: 50}}
//			conversion_factors: {el: 0.5}
//		}
//	}
//
// Ports are keyed by the label of the neighbouring node. Parameters that
// vary over time accept a number or a list. The file is unified with an
// embedded schema, so misspelled fields are rejected rather than ignored.
//
// Validation codes:
//   - E100: value does not match the schema
//   - E101: unknown field, or field not valid for the node kind
//   - E102: unknown node kind
//   - E103: port or parameter names a missing node
//   - E104: invalid value
//   - E105: the energy system rejected the nodes
package compiler
