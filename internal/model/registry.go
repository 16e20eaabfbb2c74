package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/enmod/internal/energy"
	"github.com/roach88/enmod/internal/lp"
)

// VarRef describes what a problem variable means in terms of the energy
// system. Step and Period are -1 when the variable is not indexed by them.
type VarRef struct {
	Owner  energy.Key
	Name   string
	Step   int
	Period int
	// Extra is an additional index, such as a DLR delay or the partner
	// timestep of a DIW shift. Empty when unused.
	Extra string
}

// Label renders the reference the way variables are named in the problem.
func (r VarRef) Label() string {
	parts := ownerParts(r.Owner)
	if r.Extra != "" {
		parts = append(parts, namePart(r.Extra))
	}
	if r.Period >= 0 {
		parts = append(parts, fmt.Sprintf("p%d", r.Period))
	}
	if r.Step >= 0 {
		parts = append(parts, fmt.Sprintf("%d", r.Step))
	}
	return r.Name + "[" + strings.Join(parts, ",") + "]"
}

type refKey struct {
	owner  energy.Key
	name   string
	step   int
	period int
	extra  string
}

func (r VarRef) key() refKey {
	return refKey{owner: r.Owner, name: r.Name, step: r.Step, period: r.Period, extra: r.Extra}
}

// registry indexes problem variables by their reference.
type registry struct {
	refs  []VarRef
	index map[refKey]lp.Var
}

func newRegistry() *registry {
	return &registry{index: make(map[refKey]lp.Var)}
}

func (r *registry) add(v lp.Var, ref VarRef) {
	for int(v) >= len(r.refs) {
		r.refs = append(r.refs, VarRef{})
	}
	r.refs[v] = ref
	r.index[ref.key()] = v
}

func (r *registry) lookup(ref VarRef) (lp.Var, bool) {
	v, ok := r.index[ref.key()]
	return v, ok
}

// edgeOwner returns the owner key of an edge.
func edgeOwner(e *energy.Edge) energy.Key { return e.Key() }

// step returns a reference indexed by timestep only.
func step(owner energy.Key, name string, t int) VarRef {
	return VarRef{Owner: owner, Name: name, Step: t, Period: -1}
}

// period returns a reference indexed by period only.
func period(owner energy.Key, name string, p int) VarRef {
	return VarRef{Owner: owner, Name: name, Step: -1, Period: p}
}

// scalar returns an unindexed reference.
func scalar(owner energy.Key, name string) VarRef {
	return VarRef{Owner: owner, Name: name, Step: -1, Period: -1}
}

// conName renders a constraint name in the variable naming scheme.
func conName(family string, owner energy.Key, idx ...any) string {
	parts := ownerParts(owner)
	for _, i := range idx {
		parts = append(parts, namePart(fmt.Sprint(i)))
	}
	return family + "[" + strings.Join(parts, ",") + "]"
}

func ownerParts(owner energy.Key) []string {
	parts := []string{}
	if owner.From != nil {
		parts = append(parts, namePart(owner.From.NodeLabel()))
	}
	if owner.To != nil {
		parts = append(parts, namePart(owner.To.NodeLabel()))
	}
	return parts
}

// namePart quotes an index part containing a delimiter of the naming
// scheme, so flow[x,y,z,0] and flow["x,y",z,0] stay distinct.
func namePart(s string) string {
	if strings.ContainsAny(s, `,[]"`) {
		return strconv.Quote(s)
	}
	return s
}
