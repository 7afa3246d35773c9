package block

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/httpclient"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/specialistvlad/llmgrid/internal/search"
	"github.com/zclconf/go-cty/cty"
)

// SearchConfig queries a configured search backend.
//
//	block "search" "DOCS" {
//	  backend = "weaviate"
//	  query   = INPUT.question
//	  limit   = 5
//	}
type SearchConfig struct {
	Backend hcl.Expression `hcl:"backend"`
	Query   hcl.Expression `hcl:"query"`
	Limit   hcl.Expression `hcl:"limit,optional"`
	Class   hcl.Expression `hcl:"class,optional"`
}

type searchRequest struct {
	Backend string `json:"backend"`
	Query   string `json:"query"`
	Limit   int    `json:"limit,omitempty"`
	Class   string `json:"class,omitempty"`
}

func resolveSearch(env *Env, spec *Spec) (*searchRequest, error) {
	cfg := spec.Config.(*SearchConfig)
	ev := newEvaluator(env, spec)

	req := &searchRequest{
		Backend: ev.requiredString(cfg.Backend, "backend"),
		Query:   ev.requiredString(cfg.Query, "query"),
		Class:   ev.string(cfg.Class, "class"),
	}
	if n, ok := ev.int(cfg.Limit, "limit"); ok {
		if n < 1 {
			ev.fail(cfg.Limit, "limit", "The \"limit\" attribute must be positive.")
		}
		req.Limit = n
	}
	if err := ev.err(); err != nil {
		return nil, execErr(spec, err)
	}
	return req, nil
}

func executeSearch(ctx context.Context, env *Env, spec *Spec, req *searchRequest) (Result, error) {
	if env.Search == nil {
		return Result{}, execErrf(spec, "no search backends are configured")
	}
	backend, err := env.Search.Get(req.Backend)
	if err != nil {
		return Result{}, execErr(spec, err)
	}

	results, retries, err := retry.Do(ctx, spec.Policy(env.Retry), httpclient.RetryDecision, func(ctx context.Context) ([]search.Result, error) {
		return backend.Search(ctx, search.Query{Text: req.Query, Limit: req.Limit, Class: req.Class})
	})
	if err != nil {
		return Result{Meta: Meta{Retries: retries}}, execErr(spec, err)
	}

	hits := make([]cty.Value, len(results))
	for i, r := range results {
		hits[i] = cty.ObjectVal(map[string]cty.Value{
			"title":   cty.StringVal(r.Title),
			"url":     cty.StringVal(r.URL),
			"snippet": cty.StringVal(r.Snippet),
			"score":   cty.NumberFloatVal(r.Score),
		})
	}
	return Result{Value: tupleVal(hits), Meta: Meta{Retries: retries}}, nil
}
