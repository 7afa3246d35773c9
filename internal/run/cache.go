package run

import (
	"context"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/metrics"
	"github.com/zclconf/go-cty/cty"
)

// flight is the shared result of one deduplicated execution.
type flight struct {
	value    cty.Value
	meta     block.Meta
	storeErr string
}

// execute runs spec, serving it from the store when possible.
func (rr *recordRun) execute(ctx context.Context, env *block.Env, spec *block.Spec) (cty.Value, outcome, error) {
	logger := ctxlog.FromContext(ctx)

	if rr.opts.store == nil || rr.opts.noCache {
		res, err := block.Execute(ctx, env, spec)
		return res.Value, outcome{cache: CacheSkip, meta: res.Meta}, err
	}

	material, ok, err := block.CacheKeyMaterial(env, spec)
	if err != nil {
		return cty.NilVal, outcome{}, err
	}
	if !ok {
		res, err := block.Execute(ctx, env, spec)
		return res.Value, outcome{cache: CacheSkip, meta: res.Meta}, err
	}
	key, err := material.Key()
	if err != nil {
		return cty.NilVal, outcome{}, err
	}
	logger = logger.With("cache_key", key)

	raw, hit, err := rr.opts.store.GetCachedBlockResult(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		logger.Warn("Cache read failed, treating as a miss.", "error", err)
	case hit:
		v, decodeErr := block.ValueFromJSON(raw)
		if decodeErr == nil {
			metrics.RecordCacheLookup(CacheHit)
			logger.Debug("Cache hit.")
			return v, outcome{cache: CacheHit}, nil
		}
		metrics.RecordCacheLookup("error")
		logger.Warn("Cached value is unreadable, treating as a miss.", "error", decodeErr)
	default:
		metrics.RecordCacheLookup(CacheMiss)
	}

	shared, err, _ := rr.flights.Do(key, func() (any, error) {
		res, err := block.Execute(ctx, env, spec)
		if err != nil {
			return flight{meta: res.Meta}, err
		}
		raw, err := block.ValueJSON(res.Value)
		if err != nil {
			return flight{meta: res.Meta}, err
		}
		// Downstream blocks see the same value whether it came from the
		// cache or not.
		value, err := block.ValueFromJSON(raw)
		if err != nil {
			return flight{meta: res.Meta}, err
		}

		f := flight{value: value, meta: res.Meta}
		if err := rr.opts.store.PutCachedBlockResult(ctx, key, raw); err != nil {
			metrics.RecordCacheWriteError()
			logger.Warn("Cache write failed.", "error", err)
			f.storeErr = err.Error()
			rr.mu.Lock()
			rr.storeErrors = append(rr.storeErrors, spec.Name+": "+err.Error())
			rr.mu.Unlock()
		}
		return f, nil
	})
	f, _ := shared.(flight)
	if err != nil {
		return cty.NilVal, outcome{meta: f.meta}, err
	}
	return f.value, outcome{cache: CacheMiss, meta: f.meta, storeErr: f.storeErr}, nil
}
