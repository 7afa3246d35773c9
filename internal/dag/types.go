package dag

import (
	"fmt"
	"sync"
)

// Graph is a collection of nodes and their dependencies. All operations on
// the graph are concurrency-safe.
type Graph struct {
	// mutex protects nodes and order.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*node
	// order records insertion order; ties in scheduling and reporting
	// follow it.
	order []string
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs).
type node struct {
	id string
	// seq is the node's position in insertion order.
	seq int
	// deps holds the nodes this node depends on (predecessors).
	deps map[string]*node
	// dependents holds the nodes that depend on this node (successors).
	dependents map[string]*node
}

// CycleError reports a cycle through Node.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving node '%s'", e.Node)
}
