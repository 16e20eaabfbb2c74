// Package constraints adds user-side constraints to a built model.
//
// Every helper takes a *model.Model returned by model.Build and appends
// variables and rows to its problem. Helpers fail with a DEPENDENCY_ERROR
// when handed a model that was never built, and with a REQUIREMENT_ERROR
// when the entities they aggregate over are missing, e.g. a flow count
// limit on a keyword that no nonconvex flow carries.
//
// Most helpers return a Limit describing the aggregated expression so
// callers can evaluate it against a solution:
//
//	lim, err := constraints.EmissionLimit(m, nil, 1000)
//	...
//	emitted := lim.Expr.Eval(sol.Values)
package constraints
