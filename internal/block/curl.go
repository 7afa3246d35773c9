package block

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/httpclient"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/zclconf/go-cty/cty"
)

// CurlConfig issues one HTTP request.
//
//	block "curl" "WEATHER" {
//	  url     = "https://api.example.com/weather?city=${INPUT.city}"
//	  method  = "GET"
//	  headers = { Accept = "application/json" }
//	}
//
// A body that is not a string is sent as JSON.
type CurlConfig struct {
	URL     hcl.Expression `hcl:"url"`
	Method  hcl.Expression `hcl:"method,optional"`
	Headers hcl.Expression `hcl:"headers,optional"`
	Body    hcl.Expression `hcl:"body,optional"`
}

var curlMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func resolveCurl(env *Env, spec *Spec) (*httpclient.Request, error) {
	cfg := spec.Config.(*CurlConfig)
	ev := newEvaluator(env, spec)

	req := &httpclient.Request{
		Method:  http.MethodGet,
		URL:     ev.requiredString(cfg.URL, "url"),
		Headers: ev.stringMap(cfg.Headers, "headers"),
	}
	if m := ev.string(cfg.Method, "method"); m != "" {
		req.Method = strings.ToUpper(m)
		if !curlMethods[req.Method] {
			ev.fail(cfg.Method, "method", "The \"method\" attribute must be one of GET, HEAD, POST, PUT, PATCH or DELETE.")
		}
	}
	if body, ok := ev.value(cfg.Body, "body", cty.DynamicPseudoType); ok {
		if body.Type() == cty.String {
			req.Body = body.AsString()
		} else {
			raw, err := ValueJSON(body)
			if err != nil {
				ev.fail(cfg.Body, "body", err.Error())
			}
			req.Body = string(raw)
			if !hasHeader(req.Headers, "Content-Type") {
				if req.Headers == nil {
					req.Headers = make(map[string]string)
				}
				req.Headers["Content-Type"] = "application/json"
			}
		}
	}
	if err := ev.err(); err != nil {
		return nil, execErr(spec, err)
	}
	return req, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func executeCurl(ctx context.Context, env *Env, spec *Spec, req *httpclient.Request) (Result, error) {
	resp, retries, err := retry.Do(ctx, spec.Policy(env.Retry), httpclient.RetryDecision, func(ctx context.Context) (*httpclient.Response, error) {
		return httpclient.Do(ctx, env.HTTP, *req)
	})
	if err != nil {
		return Result{Meta: Meta{Retries: retries}}, execErr(spec, err)
	}

	value := cty.ObjectVal(map[string]cty.Value{
		"status":  cty.NumberIntVal(int64(resp.Status)),
		"headers": headerVal(resp.Headers),
		"body":    bodyVal(resp.Body),
	})
	return Result{Value: value, Meta: Meta{Retries: retries}}, nil
}

// headerVal joins repeated headers with ", " under their canonical name.
func headerVal(h http.Header) cty.Value {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := make(map[string]string, len(keys))
	for _, k := range keys {
		m[k] = strings.Join(h[k], ", ")
	}
	return stringMapVal(m)
}

// bodyVal decodes a JSON body and falls back to the raw text.
func bodyVal(body []byte) cty.Value {
	if json.Valid(body) {
		if v, err := ValueFromJSON(body); err == nil {
			return v
		}
	}
	return cty.StringVal(string(body))
}
