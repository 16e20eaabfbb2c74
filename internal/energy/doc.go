// Package energy is the entity graph of an energy system model.
//
// An energy system is a directed graph. Vertices are nodes of a closed set
// of variants (Bus, Source, Sink, Converter, GenericStorage,
// OffsetConverter, GenericCHP, PiecewiseLinearConverter, SinkDSM); edges are
// flows. Components declare their edges as ports: an input port {bus, flow}
// on a converter creates the edge bus→converter carrying flow, an output
// port the edge converter→bus.
//
// Lifecycle:
//
//  1. Construct nodes with plain struct literals (or the New* helpers for
//     variants whose defaults differ from Go zero values).
//  2. Register them with EnergySystem.Add. Labels must be unique.
//  3. Model building freezes the system and validates every invariant.
//     Further Add calls fail.
//  4. After solving, nodes are reused as keys into the result mapping.
//
// Every parameter is an explicit typed field. Time-varying parameters are
// sequence.Value and are resolved to dense vectors by the model builder;
// per-period parameters (investment costs, fixed costs, DSM peak demand)
// resolve against the number of periods instead of timesteps.
package energy
