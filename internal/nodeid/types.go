package nodeid

// PathSegment is one component of an address, e.g. `name[index]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// HasIndex returns true if the segment names a branch.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address identifies one block instance.
type Address struct {
	Path []PathSegment
}

// Root returns the address of a top-level block.
func Root(name string) *Address {
	return &Address{Path: []PathSegment{NewPathSegment(name)}}
}

// Child returns a copy of a with name appended. A nil receiver yields a
// root address.
func (a *Address) Child(name string) *Address {
	if a == nil {
		return Root(name)
	}
	return &Address{Path: append(a.clonePath(), NewPathSegment(name))}
}

// Branch returns a copy of a whose last segment carries index.
func (a *Address) Branch(index int) *Address {
	path := a.clonePath()
	path[len(path)-1].Index = index
	return &Address{Path: path}
}

// Name returns the name of the last segment.
func (a *Address) Name() string {
	if a == nil || len(a.Path) == 0 {
		return ""
	}
	return a.Path[len(a.Path)-1].Name
}

// Branches returns the branch indices along the path, outermost first.
func (a *Address) Branches() []int {
	if a == nil {
		return nil
	}
	var out []int
	for _, seg := range a.Path {
		if seg.HasIndex() {
			out = append(out, seg.Index)
		}
	}
	return out
}

func (a *Address) clonePath() []PathSegment {
	path := make([]PathSegment, len(a.Path), len(a.Path)+1)
	copy(path, a.Path)
	return path
}
