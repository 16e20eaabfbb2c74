// Package solver provides the in-process reference backend for lp problems.
//
// Simplex solves the continuous relaxation with a bounded two-phase primal
// simplex on a dense tableau and handles integer and binary variables by
// depth-first branch-and-bound. Duals of mixed-integer problems are taken
// from the relaxation with all integer variables fixed at the incumbent.
// SOS2 sets are not supported; the model reformulates them before solving.
//
// The tableau is a dense rows×columns matrix, with one row per variable
// bound besides the constraints, and every branch-and-bound node builds
// and solves a new one. Memory and time grow with rows·cols per node,
// which suits test systems and small studies of a few hundred timesteps.
// Larger models need an external backend behind lp.Backend.
package solver
