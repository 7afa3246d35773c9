package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/contenthash"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dag"
	"github.com/specialistvlad/llmgrid/internal/model"
)

// App is a validated plan.
type App struct {
	// Specs holds every block in declaration order.
	Specs []*block.Spec
	Root  *Scope
	// Input is the app's input block, or nil.
	Input *block.Spec
	// Hash identifies the app's source.
	Hash string

	byName map[string]*block.Spec
	// home maps a block to the scope its unit belongs to; unit maps it to
	// the unit's name in that scope. Map and reduce blocks live in the
	// enclosing scope under the map's unit.
	home map[string]*Scope
	unit map[string]string
}

// Spec returns the block called name.
func (a *App) Spec(name string) (*block.Spec, bool) {
	s, ok := a.byName[name]
	return s, ok
}

// DataBlocks returns the data blocks that name a stored dataset.
func (a *App) DataBlocks() []*block.Spec {
	var out []*block.Spec
	for _, s := range a.Specs {
		if s.Variant != block.Data {
			continue
		}
		if cfg := s.Config.(*block.DataConfig); cfg.DatasetID != "" {
			out = append(out, s)
		}
	}
	return out
}

// New validates m and compiles it into a plan.
func New(ctx context.Context, m *model.App) (*App, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting plan construction.", "block_count", len(m.Blocks))

	app := &App{
		byName: make(map[string]*block.Spec, len(m.Blocks)),
		home:   make(map[string]*Scope, len(m.Blocks)),
		unit:   make(map[string]string, len(m.Blocks)),
	}

	// First pass: decode specs and check names.
	index := make(map[string]int, len(m.Blocks))
	for i, b := range m.Blocks {
		if prev, dup := index[b.Name]; dup {
			return nil, dagErrorf(b.Name, "duplicate block name, first declared as block #%d", prev+1)
		}
		index[b.Name] = i

		spec, diags := block.NewSpec(b, m.Sources[b.FSInformation.FilePath])
		if diags.HasErrors() {
			return nil, fmt.Errorf("error decoding block %s in file %s: %w", b.Name, b.FSInformation.FilePath, diags)
		}
		app.Specs = append(app.Specs, spec)
		app.byName[spec.Name] = spec
	}
	logger.Debug("Build: Specs decoded.")

	// Second pass: link every reference and reject cycles and forward
	// references.
	if err := app.checkReferences(index); err != nil {
		return nil, err
	}
	logger.Debug("Build: Reference check passed.")

	// Third pass: match maps with reduces.
	if err := app.buildScopes(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Scopes built.")

	// Fourth pass: unit graphs.
	if err := app.linkUnits(app.Root); err != nil {
		return nil, err
	}
	logger.Debug("Build: Unit graphs linked.")

	hash, err := sourceHash(m)
	if err != nil {
		return nil, err
	}
	app.Hash = hash

	logger.Info("Build: Plan construction successful.", "blocks", len(app.Specs), "app_hash", app.Hash)
	return app, nil
}

func (a *App) checkReferences(index map[string]int) error {
	g := dag.New()
	for _, s := range a.Specs {
		g.AddNode(s.Name)
	}
	for _, s := range a.Specs {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return dagErrorf(s.Name, "unresolved dependency on %q: no such block (%s)", dep, s.ReferenceRange(dep))
			}
			if dep == s.Name {
				return dagErrorf(s.Name, "cycle detected: block depends on itself")
			}
			if err := g.AddEdge(dep, s.Name); err != nil {
				return fmt.Errorf("failed to link %s to %s: %w", dep, s.Name, err)
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			return dagErrorf(cycle.Node, "%s", err)
		}
		return err
	}

	for _, s := range a.Specs {
		for _, dep := range s.DependsOn {
			if index[dep] > index[s.Name] {
				return dagErrorf(s.Name, "unresolved dependency on %q: it is declared later (%s)", dep, s.ReferenceRange(dep))
			}
		}
	}
	return nil
}

func (a *App) buildScopes() error {
	a.Root = newScope(nil, nil)
	cur := a.Root
	last := make(map[*Scope]string)

	for _, s := range a.Specs {
		switch s.Variant {
		case block.Input:
			if cur != a.Root {
				return dagErrorf(s.Name, "input block cannot be declared inside map %s", cur.Map.Name)
			}
			if a.Input != nil {
				return dagErrorf(s.Name, "input block declared more than once, first as %s", a.Input.Name)
			}
			a.Input = s
			continue

		case block.Map:
			child := newScope(cur, s)
			cur.add(&Unit{Name: s.Name, Scope: child})
			a.home[s.Name], a.unit[s.Name] = cur, s.Name
			cur = child
			continue

		case block.Reduce:
			if cur == a.Root {
				return dagErrorf(s.Name, "reduce block without an open map")
			}
			cur.Reduce = s
			cur.Final = last[cur]
			parent := cur.Parent
			a.home[s.Name], a.unit[s.Name] = parent, cur.Map.Name
			last[parent] = s.Name
			cur = parent
			continue
		}

		cur.add(&Unit{Name: s.Name, Spec: s})
		a.home[s.Name], a.unit[s.Name] = cur, s.Name
		last[cur] = s.Name
	}

	if cur != a.Root {
		return dagErrorf(cur.Map.Name, "map block is never closed by a reduce block")
	}
	return nil
}

// lift returns the unit of scope s that contains block name, or "" when
// the block lies outside s.
func (a *App) lift(s *Scope, name string) string {
	cur, unit := a.home[name], a.unit[name]
	if cur == nil {
		// The input block has no unit; it is available everywhere.
		return ""
	}
	for cur != s {
		if cur.Parent == nil {
			return ""
		}
		unit = cur.Map.Name
		cur = cur.Parent
	}
	return unit
}

// specsOf returns every spec a unit runs.
func specsOf(u *Unit) []*block.Spec {
	if !u.IsMap() {
		return []*block.Spec{u.Spec}
	}
	out := []*block.Spec{u.Scope.Map}
	for _, child := range u.Scope.Units {
		out = append(out, specsOf(child)...)
	}
	return append(out, u.Scope.Reduce)
}

func (a *App) linkUnits(s *Scope) error {
	for _, u := range s.Units {
		for _, spec := range specsOf(u) {
			for _, dep := range spec.DependsOn {
				from := a.lift(s, dep)
				if from == "" || from == u.Name {
					continue
				}
				if err := s.Graph.AddEdge(from, u.Name); err != nil {
					return fmt.Errorf("failed to link unit %s to %s: %w", from, u.Name, err)
				}
			}
		}
		if u.IsMap() {
			if err := a.linkUnits(u.Scope); err != nil {
				return err
			}
		}
	}
	if err := s.Graph.DetectCycles(); err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			return dagErrorf(cycle.Node, "%s", err)
		}
		return err
	}
	return nil
}

// sourceHash digests the app's files in load order.
func sourceHash(m *model.App) (string, error) {
	sources := make([]string, len(m.Files))
	for i, f := range m.Files {
		sources[i] = string(m.Sources[f])
	}
	hash, err := contenthash.CacheKey(map[string]any{"app_sources": sources})
	if err != nil {
		return "", fmt.Errorf("failed to hash app: %w", err)
	}
	return hash, nil
}
