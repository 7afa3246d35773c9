package runstate

import (
	"sync"

	"github.com/specialistvlad/llmgrid/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Each is the element a Map branch was opened for.
type Each struct {
	Index int
	Value cty.Value
}

// Frame is one scope of the output table.
type Frame struct {
	parent *Frame
	// prefix addresses the branch this frame belongs to; nil at the root.
	prefix *nodeid.Address
	each   *Each

	outputs sync.Map // Key: block name, Value: cty.Value
	errors  sync.Map // Key: block name, Value: error
}

// NewRoot returns an empty top-level frame.
func NewRoot() *Frame {
	return &Frame{}
}

// Push opens the frame for branch index of the Map called mapName.
func (f *Frame) Push(mapName string, index int, value cty.Value) *Frame {
	return &Frame{
		parent: f,
		prefix: f.prefix.Child(mapName).Branch(index),
		each:   &Each{Index: index, Value: value},
	}
}

// Each returns the branch element of the innermost enclosing Map.
func (f *Frame) Each() (Each, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.each != nil {
			return *cur.each, true
		}
	}
	return Each{}, false
}

// Address returns the address of block name evaluated in this frame.
func (f *Frame) Address(name string) *nodeid.Address {
	return f.prefix.Child(name)
}

// Set records the output of block name in this frame.
func (f *Frame) Set(name string, v cty.Value) {
	f.outputs.Store(name, v)
}

// SetError records the failure of block name in this frame.
func (f *Frame) SetError(name string, err error) {
	f.errors.Store(name, err)
}

// Lookup finds the output of block name in this frame or its ancestors.
func (f *Frame) Lookup(name string) (cty.Value, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.outputs.Load(name); ok {
			return v.(cty.Value), true
		}
	}
	return cty.NilVal, false
}

// Local returns the output of block name from this frame only.
func (f *Frame) Local(name string) (cty.Value, bool) {
	v, ok := f.outputs.Load(name)
	if !ok {
		return cty.NilVal, false
	}
	return v.(cty.Value), true
}

// Err returns the recorded failure of block name in this frame, if any.
func (f *Frame) Err(name string) error {
	err, ok := f.errors.Load(name)
	if !ok {
		return nil
	}
	return err.(error)
}
