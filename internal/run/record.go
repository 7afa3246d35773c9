package run

import (
	"context"
	"time"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/events"
	"github.com/specialistvlad/llmgrid/internal/metrics"
	"github.com/specialistvlad/llmgrid/internal/runstate"
)

// outcome is how a successful block instance was produced.
type outcome struct {
	cache    string
	meta     block.Meta
	storeErr string
}

func (ex *execution) newMeta(idx int, spec *block.Spec, frame *runstate.Frame, start time.Time) BlockMeta {
	addr := frame.Address(spec.Name)
	return BlockMeta{
		Block:   spec.Name,
		Address: addr.String(),
		Input:   idx,
		Latency: time.Since(start),
		order:   ex.order[spec.Name],
		branch:  addr.Branches(),
	}
}

func (ex *execution) record(ctx context.Context, m BlockMeta) {
	ex.mu.Lock()
	ex.blocks = append(ex.blocks, m)
	ex.mu.Unlock()

	ex.opts.publisher.Publish(ctx, events.Event{
		Type:    events.BlockDone,
		RunID:   ex.runID,
		Block:   m.Block,
		Address: m.Address,
		Cache:   m.Cache,
		Latency: m.Latency,
		Status:  m.Status,
		Error:   m.Error,
		Time:    time.Now(),
	})
}

func (ex *execution) succeed(ctx context.Context, idx int, spec *block.Spec, frame *runstate.Frame, start time.Time, cache string, meta block.Meta) {
	ex.succeedWith(ctx, idx, spec, frame, start, outcome{cache: cache, meta: meta})
}

func (ex *execution) succeedWith(ctx context.Context, idx int, spec *block.Spec, frame *runstate.Frame, start time.Time, o outcome) {
	m := ex.newMeta(idx, spec, frame, start)
	m.Status = StatusSuccess
	m.Cache = o.cache
	m.Retries = o.meta.Retries
	m.Usage = o.meta.Usage
	m.StoreError = o.storeErr

	status := StatusSuccess
	if o.cache == CacheHit {
		status = "cached"
	}
	metrics.RecordBlock(spec.Variant.String(), status, m.Latency, m.Retries)
	ctxlog.FromContext(ctx).Info("✅ Block finished", "block", m.Address, "cache", m.Cache, "latency", m.Latency, "retries", m.Retries)
	ex.record(ctx, m)
}

// fail records a failed instance and returns its *BlockError.
func (ex *execution) fail(ctx context.Context, idx int, spec *block.Spec, frame *runstate.Frame, start time.Time, err error) error {
	frame.SetError(spec.Name, err)

	m := ex.newMeta(idx, spec, frame, start)
	m.Status = StatusFailed
	m.Cache = CacheSkip
	m.Error = err.Error()

	metrics.RecordBlock(spec.Variant.String(), StatusFailed, m.Latency, 0)
	ctxlog.FromContext(ctx).Error("❌ Block failed", "block", m.Address, "error", err)
	ex.record(ctx, m)

	return &BlockError{
		Block:   spec.Name,
		Address: m.Address,
		Branch:  m.branch,
		Record:  idx,
		Kind:    KindOf(err),
		Err:     err,
	}
}

// skip records instances that never ran because something upstream failed.
func (ex *execution) skip(ctx context.Context, idx int, spec *block.Spec, frame *runstate.Frame, reason error) {
	frame.SetError(spec.Name, reason)

	m := ex.newMeta(idx, spec, frame, time.Now())
	m.Status = StatusSkipped
	m.Cache = CacheSkip
	m.Latency = 0
	m.Error = reason.Error()

	ctxlog.FromContext(ctx).Debug("Block skipped.", "block", m.Address, "reason", reason)
	ex.record(ctx, m)
}
