package run

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dag"
	"github.com/specialistvlad/llmgrid/internal/pipeline"
	"github.com/specialistvlad/llmgrid/internal/runstate"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// recordRun executes the app for one input record.
type recordRun struct {
	*execution
	index int
	input cty.Value
}

// runScope runs the units of s against frame.
func (rr *recordRun) runScope(ctx context.Context, s *pipeline.Scope, frame *runstate.Frame) error {
	exec := dag.NewExecutor(s.Graph, rr.opts.workers)
	err := exec.Run(ctx, func(ctx context.Context, id string) error {
		u, _ := s.Unit(id)
		if u.IsMap() {
			return rr.runMap(ctx, u.Scope, frame)
		}
		return rr.runBlock(ctx, u.Spec, frame, nil)
	})

	for _, u := range s.Units {
		if _, uerr := exec.Outcome(u.Name); errors.Is(uerr, dag.ErrSkipped) {
			if u.IsMap() {
				rr.skip(ctx, rr.index, u.Scope.Map, frame, uerr)
				continue
			}
			rr.skip(ctx, rr.index, u.Spec, frame, uerr)
		}
	}
	return err
}

// runBlock executes one block instance and stores its value in frame.
// branches is set for a reduce.
func (rr *recordRun) runBlock(ctx context.Context, spec *block.Spec, frame *runstate.Frame, branches []cty.Value) error {
	addr := frame.Address(spec.Name).String()
	logger := ctxlog.FromContext(ctx).With("block", addr)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Executing block", "variant", spec.Variant)
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return rr.fail(ctx, rr.index, spec, frame, start, err)
	}

	env := &block.Env{
		Frame:     frame,
		Input:     rr.input,
		Providers: rr.opts.providers,
		Search:    rr.opts.search,
		HTTP:      rr.opts.http,
		Retry:     rr.opts.retry,
		Datasets:  rr.datasets,
		Branches:  branches,
	}
	value, o, err := rr.execute(ctx, env, spec)
	if err != nil {
		return rr.fail(ctx, rr.index, spec, frame, start, err)
	}
	frame.Set(spec.Name, value)
	rr.succeedWith(ctx, rr.index, spec, frame, start, o)
	return nil
}

// runMap expands a map scope: it evaluates the map block, runs every
// branch, publishes body outputs to frame as arrays in branch order and
// executes the reduce. Failed branches leave nulls in the arrays and keep
// the reduce from running.
func (rr *recordRun) runMap(ctx context.Context, s *pipeline.Scope, frame *runstate.Frame) error {
	mapName := s.Map.Name
	logger := ctxlog.FromContext(ctx).With("map", frame.Address(mapName).String())
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := rr.runBlock(ctx, s.Map, frame, nil); err != nil {
		return err
	}
	elemsVal, _ := frame.Local(mapName)
	var elems []cty.Value
	for it := elemsVal.ElementIterator(); it.Next(); {
		_, v := it.Element()
		elems = append(elems, v)
	}

	limit := rr.opts.workers
	if cfg := s.Map.Config.(*block.MapConfig); cfg.Concurrency > 0 {
		limit = cfg.Concurrency
	}
	logger.Info("▶️ Expanding map", "branches", len(elems), "max_concurrency", limit, "depth", s.Depth())

	branchFrames := make([]*runstate.Frame, len(elems))
	errs := make([]error, len(elems))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, elem := range elems {
		branchFrames[i] = frame.Push(mapName, i, elem)
		g.Go(func() error {
			errs[i] = rr.runScope(ctx, s, branchFrames[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range s.Blocks() {
		frame.Set(name, collect(branchFrames, name))
	}

	for _, err := range errs {
		if err == nil {
			continue
		}
		var blockErr *BlockError
		if errors.As(err, &blockErr) {
			err = blockErr
		}
		logger.Warn("Branches failed, skipping reduce.", "reduce", s.Reduce.Name, "failed", failedInstances(branchFrames, s.Blocks()))
		rr.skip(ctx, rr.index, s.Reduce, frame, err)
		return err
	}

	finals := make([]cty.Value, len(elems))
	for i, bf := range branchFrames {
		finals[i] = elems[i]
		if s.Final == "" {
			continue
		}
		v, ok := bf.Local(s.Final)
		if !ok {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		finals[i] = v
	}
	if err := rr.runBlock(ctx, s.Reduce, frame, finals); err != nil {
		return err
	}
	logger.Info("✅ Map finished", "branches", len(elems))
	return nil
}

// collect gathers name from every branch in creation order. Branches where
// it is missing contribute null.
func collect(frames []*runstate.Frame, name string) cty.Value {
	if len(frames) == 0 {
		return cty.EmptyTupleVal
	}
	vals := make([]cty.Value, len(frames))
	for i, f := range frames {
		v, ok := f.Local(name)
		if !ok {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		vals[i] = v
	}
	return cty.TupleVal(vals)
}

// failedInstances lists the addresses of the named blocks that failed or
// were skipped in frames, in branch order.
func failedInstances(frames []*runstate.Frame, names []string) []string {
	var out []string
	for _, f := range frames {
		for _, name := range names {
			if f.Err(name) != nil {
				out = append(out, f.Address(name).String())
			}
		}
	}
	return out
}
