package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/events"
	"github.com/specialistvlad/llmgrid/internal/metrics"
	"github.com/specialistvlad/llmgrid/internal/pipeline"
	"github.com/specialistvlad/llmgrid/internal/runstate"
	"github.com/specialistvlad/llmgrid/internal/store"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Runner executes one app. It is safe to call Run concurrently.
type Runner struct {
	app   *pipeline.App
	opts  options
	order map[string]int

	// flights collapses concurrent cache misses on the same key.
	flights singleflight.Group
}

// New returns a runner for app.
func New(app *pipeline.App, opts ...Option) *Runner {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	order := make(map[string]int, len(app.Specs))
	for i, s := range app.Specs {
		order[s.Name] = i
	}
	return &Runner{app: app, opts: o, order: order}
}

// execution is the state of one Run call.
type execution struct {
	*Runner
	runID    string
	datasets map[string]cty.Value

	mu          sync.Mutex
	blocks      []BlockMeta
	storeErrors []string
}

// Run executes the app once per input record; an app without an input
// block runs once. The result is returned even when the run fails, holding
// everything that was computed. The error is a *BlockError naming the root
// cause, or the setup failure that prevented execution.
func (r *Runner) Run(ctx context.Context, inputs []any) (*Result, error) {
	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "run_id", runID)
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	records := inputs
	if r.app.Input == nil {
		if len(inputs) > 0 {
			logger.Warn("App has no input block, ignoring records.", "records", len(inputs))
		}
		records = []any{nil}
	}

	logger.Info("🚀 Starting run", "app_hash", r.app.Hash, "records", len(records), "workers", r.opts.workers)
	r.opts.publisher.Publish(ctx, events.Event{Type: events.RunStart, RunID: runID, AppHash: r.app.Hash, Time: start})

	ex := &execution{Runner: r, runID: runID}
	result := &Result{RunID: runID, AppHash: r.app.Hash, Outputs: make(map[string][]any)}

	datasets, err := r.loadDatasets(ctx)
	if err != nil {
		ex.finish(ctx, start, err)
		return result, err
	}
	ex.datasets = datasets

	frames := make([]*runstate.Frame, len(records))
	errs := make([]error, len(records))
	var g errgroup.Group
	g.SetLimit(r.opts.workers)
	for i, record := range records {
		frames[i] = runstate.NewRoot()
		g.Go(func() error {
			errs[i] = ex.runRecord(ctx, i, record, frames[i])
			return nil
		})
	}
	_ = g.Wait()

	var runErr error
	for _, err := range errs {
		if err != nil {
			runErr = err
			break
		}
	}

	for _, s := range r.app.Specs {
		values := make([]any, len(records))
		for i, frame := range frames {
			if v, ok := frame.Local(s.Name); ok {
				native, err := block.FromValue(v)
				if err != nil {
					logger.Warn("Output is not representable as JSON.", "block", s.Name, "error", err)
					continue
				}
				values[i] = native
			}
		}
		result.Outputs[s.Name] = values
	}

	ex.mu.Lock()
	sortBlocks(ex.blocks)
	result.Blocks = ex.blocks
	result.StoreErrors = ex.storeErrors
	ex.mu.Unlock()

	ex.finish(ctx, start, runErr)
	return result, runErr
}

func (ex *execution) finish(ctx context.Context, start time.Time, err error) {
	logger := ctxlog.FromContext(ctx)
	d := time.Since(start)
	metrics.RecordRun(err != nil, d)

	e := events.Event{Type: events.RunEnd, RunID: ex.runID, AppHash: ex.app.Hash, Status: StatusSuccess, Time: time.Now()}
	if err != nil {
		e.Status, e.Error = StatusFailed, err.Error()
		logger.Error("🏁 Run failed", "duration", d, "error", err)
	} else {
		logger.Info("🏁 Run finished", "duration", d)
	}
	ex.opts.publisher.Publish(ctx, e)
}

// loadDatasets resolves every data block that names a stored dataset.
func (r *Runner) loadDatasets(ctx context.Context) (map[string]cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	specs := r.app.DataBlocks()
	out := make(map[string]cty.Value, len(specs))
	for _, s := range specs {
		cfg := s.Config.(*block.DataConfig)
		if r.opts.store == nil {
			return nil, fmt.Errorf("block %s reads dataset %q but no store is configured", s.Name, cfg.DatasetID)
		}

		var d *dataset.Dataset
		var err error
		if cfg.Hash != "" {
			d, err = r.opts.store.LoadDataset(ctx, cfg.DatasetID, cfg.Hash)
		} else {
			d, err = store.LoadLatest(ctx, r.opts.store, cfg.DatasetID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset %q for block %s: %w", cfg.DatasetID, s.Name, err)
		}
		if d == nil {
			return nil, fmt.Errorf("dataset %q for block %s is not registered", cfg.DatasetID, s.Name)
		}

		v, err := block.DatasetValue(d)
		if err != nil {
			return nil, fmt.Errorf("failed to convert dataset %q: %w", cfg.DatasetID, err)
		}
		out[s.Name] = v
		logger.Debug("Dataset loaded.", "block", s.Name, "dataset", cfg.DatasetID)
	}
	return out, nil
}

// runRecord executes the root scope for one input record.
func (ex *execution) runRecord(ctx context.Context, idx int, record any, frame *runstate.Frame) error {
	ctx = ctxlog.With(ctx, "record", idx)

	input := cty.NullVal(cty.DynamicPseudoType)
	if spec := ex.app.Input; spec != nil {
		start := time.Now()
		v, err := block.ToValue(record)
		if err != nil {
			err = &block.ExecutionError{Block: spec.Name, Variant: block.Input, Err: err}
			return ex.fail(ctx, idx, spec, frame, start, err)
		}
		input = v
		frame.Set(spec.Name, v)
		ex.succeed(ctx, idx, spec, frame, start, CacheSkip, block.Meta{})
	}

	rec := &recordRun{execution: ex, index: idx, input: input}
	err := rec.runScope(ctx, ex.app.Root, frame)
	var blockErr *BlockError
	if errors.As(err, &blockErr) {
		return blockErr
	}
	return err
}
