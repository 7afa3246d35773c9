package pipeline

import (
	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/dag"
)

// Scope is the root of the app or the body of one map block.
type Scope struct {
	Parent *Scope
	// Map and Reduce delimit the body; both are nil at the root.
	Map    *block.Spec
	Reduce *block.Spec
	// Units are the scope's schedulable members in declaration order.
	Units []*Unit
	// Graph has one node per unit, keyed by Unit.Name.
	Graph *dag.Graph
	// Final names the block whose value a branch contributes to the
	// reduce. It is empty for a body without blocks, in which case the
	// branch contributes its element.
	Final string

	units map[string]*Unit
}

// Unit is one node of a scope graph.
type Unit struct {
	// Name is the block name, or the map name for a child scope.
	Name string
	// Spec is set for a single block.
	Spec *block.Spec
	// Scope is set for a child map scope.
	Scope *Scope
}

// IsMap reports whether the unit is a child map scope.
func (u *Unit) IsMap() bool { return u.Scope != nil }

func newScope(parent *Scope, mapSpec *block.Spec) *Scope {
	return &Scope{
		Parent: parent,
		Map:    mapSpec,
		Graph:  dag.New(),
		units:  make(map[string]*Unit),
	}
}

// Unit returns the unit called name.
func (s *Scope) Unit(name string) (*Unit, bool) {
	u, ok := s.units[name]
	return u, ok
}

// Depth is 0 at the root and grows by one per enclosing map.
func (s *Scope) Depth() int {
	d := 0
	for cur := s; cur.Parent != nil; cur = cur.Parent {
		d++
	}
	return d
}

// Blocks returns the names of every block whose output lives in this
// scope's frames: the scope's own blocks and, recursively, the blocks of
// its child scopes. Map and reduce blocks of a child belong to this scope.
func (s *Scope) Blocks() []string {
	var out []string
	for _, u := range s.Units {
		if !u.IsMap() {
			out = append(out, u.Name)
			continue
		}
		out = append(out, u.Name)
		out = append(out, u.Scope.Blocks()...)
		out = append(out, u.Scope.Reduce.Name)
	}
	return out
}

func (s *Scope) add(u *Unit) {
	s.Units = append(s.Units, u)
	s.units[u.Name] = u
	s.Graph.AddNode(u.Name)
}
