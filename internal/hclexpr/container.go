// Package hclexpr collects HCL expressions and reports what they reference:
// variable traversals, their root names and the functions they call.
package hclexpr

import (
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2"
)

// Container is a thread-safe helper that gathers HCL expressions and provides
// analysis results, such as variable references and function calls.
type Container struct {
	// analyzeOnce ensures the extraction logic runs exactly once.
	analyzeOnce sync.Once

	mu          sync.RWMutex
	expressions []hcl.Expression

	references      []hcl.Traversal
	calledFunctions []string
}

// NewContainer creates a new, empty expression container.
func NewContainer() *Container {
	return &Container{}
}

// Add adds one or more expressions to the container for analysis.
// It safely ignores any nil expressions.
func (c *Container) Add(exprs ...hcl.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// NOTE: resetting the Once is safe as long as Add is not called
	// concurrently with the getters. All Adds happen while loading, which
	// is single-threaded.
	c.analyzeOnce = sync.Once{}

	for _, expr := range exprs {
		if expr != nil {
			c.expressions = append(c.expressions, expr)
		}
	}
}

// Expressions returns the collected expressions in the order they were added.
func (c *Container) Expressions() []hcl.Expression {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]hcl.Expression(nil), c.expressions...)
}

func (c *Container) analyze() {
	c.analyzeOnce.Do(func() {
		c.mu.RLock()
		refs, funcs := extractReferencesAndFunctions(c.expressions...)
		c.mu.RUnlock()

		c.mu.Lock()
		c.references = refs
		c.calledFunctions = funcs
		c.mu.Unlock()
	})
}

// References returns all unique variable traversals found in the expressions.
func (c *Container) References() []hcl.Traversal {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.references
}

// CalledFunctions returns all unique function calls found in the expressions.
func (c *Container) CalledFunctions() []string {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calledFunctions
}

// RootNames returns the sorted, unique root names of every reference,
// leaving out the reserved names given in exclude.
func (c *Container) RootNames(exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	seen := make(map[string]struct{})
	var names []string
	for _, ref := range c.References() {
		root := ref.RootName()
		if _, reserved := skip[root]; reserved {
			continue
		}
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		names = append(names, root)
	}
	sort.Strings(names)
	return names
}

// FirstReference returns the first reference rooted at name, for pointing
// diagnostics at the offending source.
func (c *Container) FirstReference(name string) (hcl.Traversal, bool) {
	for _, ref := range c.References() {
		if ref.RootName() == name {
			return ref, true
		}
	}
	return nil, false
}
