// Package model compiles a frozen energy system into an lp.Problem.
//
// Build validates and freezes the system, then runs one block per node
// kind in a fixed order. Every block only adds variables, constraints and
// objective terms; no block reads another block's state except through the
// shared flow variables and the capacity handles of the investment engine.
//
// ARCHITECTURE:
//
// Dispatch:
// Nodes are grouped by energy.Kind. The dispatch table maps each kind to
// its block function; kinds are visited in blockOrder so that variable and
// constraint numbering is reproducible across runs.
//
// Capacity:
// A flow or storage capacity is either fixed (a constant) or the per-period
// total of an investment. Blocks write their constraints against the
// capacity handle and never branch on which of the two it is.
//
// Registry:
// Every variable is registered with a VarRef naming its owner (an edge or
// a node), its base name and its time, period or extra index. The result
// extractor and the constraint helpers read the problem only through this
// registry.
//
// NAMING:
//
// Variables are named base[owner,index], for example flow[gas,pp,0] or
// invest[pv,el,1]. Constraints follow the same scheme with the constraint
// family as base name, for example bus_balance[el,2].
package model
