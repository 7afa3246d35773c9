// Package search holds the backends the Search block queries. A backend
// turns a text query into ranked results; the block never sees the wire
// format.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Query is one search request.
type Query struct {
	Text  string
	Limit int
	// Class selects the collection for backends that have several.
	Class string
}

// Result is one ranked hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Backend is a search engine.
type Backend interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Registry maps backend names to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under its name.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.Name()]; exists {
		return fmt.Errorf("search backend %q is already registered", b.Name())
	}
	r.backends[b.Name()] = b
	return nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("no search backend registered under %q", name)
	}
	return b, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rank sorts results by descending score, keeping backend order for ties,
// and truncates to limit.
func rank(results []Result, limit int) []Result {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
