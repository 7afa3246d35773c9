package block

import (
	"context"
	"fmt"

	"github.com/specialistvlad/llmgrid/internal/contenthash"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/zclconf/go-cty/cty"
)

// Result is the outcome of one block invocation.
type Result struct {
	Value cty.Value
	Meta  Meta
}

// Meta is what an invocation reports besides its value.
type Meta struct {
	// Retries counts attempts beyond the first.
	Retries int
	// Usage is set by LLM blocks.
	Usage *provider.Usage
}

// Execute runs spec against env.
func Execute(ctx context.Context, env *Env, spec *Spec) (Result, error) {
	switch spec.Variant {
	case Input:
		return Result{Value: executeInput(env)}, nil
	case Data:
		v, err := executeData(env, spec)
		return Result{Value: v}, err
	case Code:
		v, err := executeCode(env, spec)
		return Result{Value: v}, err
	case Map:
		v, err := executeMap(env, spec)
		return Result{Value: v}, err
	case Reduce:
		return Result{Value: executeReduce(env)}, nil
	case LLM:
		req, err := resolveLLM(env, spec)
		if err != nil {
			return Result{}, err
		}
		return executeLLM(ctx, env, spec, req)
	case Search:
		req, err := resolveSearch(env, spec)
		if err != nil {
			return Result{}, err
		}
		return executeSearch(ctx, env, spec, req)
	case Curl:
		req, err := resolveCurl(env, spec)
		if err != nil {
			return Result{}, err
		}
		return executeCurl(ctx, env, spec, req)
	case Browser:
		req, err := resolveBrowser(env, spec)
		if err != nil {
			return Result{}, err
		}
		return executeBrowser(ctx, env, spec, req)
	}
	return Result{}, fmt.Errorf("block: no executor for variant %s", spec.Variant)
}

// Material is everything a cached value depends on.
type Material struct {
	Variant string `json:"variant"`
	// Config is the variant's configuration after evaluation.
	Config any `json:"config"`
	// Inputs are the values of the block's dependencies, plus `each` when
	// the block reads it.
	Inputs map[string]any `json:"inputs"`
}

// Key hashes the material into a store cache key.
func (m Material) Key() (string, error) {
	return contenthash.CacheKey(m)
}

// CacheKeyMaterial returns what identifies spec's result in env. ok is
// false when the block is not cached, either because its variant never is
// or because it opted out.
func CacheKeyMaterial(env *Env, spec *Spec) (m Material, ok bool, err error) {
	if !spec.Cache {
		return Material{}, false, nil
	}

	var config any
	switch spec.Variant {
	case Code:
		config = codeMaterial(spec)
	case LLM:
		config, err = resolveLLM(env, spec)
	case Search:
		config, err = resolveSearch(env, spec)
	case Curl:
		config, err = resolveCurl(env, spec)
	case Browser:
		config, err = resolveBrowser(env, spec)
	default:
		return Material{}, false, nil
	}
	if err != nil {
		return Material{}, false, err
	}

	inputs, err := env.inputs(spec)
	if err != nil {
		return Material{}, false, execErr(spec, err)
	}
	return Material{Variant: spec.Variant.String(), Config: config, Inputs: inputs}, true, nil
}
