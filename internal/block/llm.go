package block

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/zclconf/go-cty/cty"
)

// FillContext as max_tokens asks for every token the model's context
// window has left after the prompt.
const FillContext = -1

// LLMConfig calls a provider with a prompt or a list of chat messages.
//
//	block "llm" "ANSWER" {
//	  provider    = "openai"
//	  model       = "gpt-4o-mini"
//	  prompt      = "Answer briefly: ${INPUT.question}"
//	  temperature = 0.2
//	  max_tokens  = -1
//	}
type LLMConfig struct {
	Provider    hcl.Expression `hcl:"provider"`
	Model       hcl.Expression `hcl:"model"`
	Prompt      hcl.Expression `hcl:"prompt,optional"`
	Messages    hcl.Expression `hcl:"messages,optional"`
	Temperature hcl.Expression `hcl:"temperature,optional"`
	TopP        hcl.Expression `hcl:"top_p,optional"`
	MaxTokens   hcl.Expression `hcl:"max_tokens,optional"`
	Stop        hcl.Expression `hcl:"stop,optional"`
}

func (c *LLMConfig) validate(spec *Spec) hcl.Diagnostics {
	if isSet(c.Prompt) == isSet(c.Messages) {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid llm block",
			Detail:   "An llm block needs exactly one of \"prompt\" or \"messages\".",
			Subject:  spec.Range.Ptr(),
		}}
	}
	return nil
}

// llmRequest is an LLMConfig after evaluation. It doubles as cache key
// material, so its JSON form must be stable.
type llmRequest struct {
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Prompt      string             `json:"prompt,omitempty"`
	Messages    []provider.Message `json:"messages,omitempty"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
}

func resolveLLM(env *Env, spec *Spec) (*llmRequest, error) {
	cfg := spec.Config.(*LLMConfig)
	ev := newEvaluator(env, spec)

	req := &llmRequest{
		Provider:    ev.requiredString(cfg.Provider, "provider"),
		Model:       ev.requiredString(cfg.Model, "model"),
		Prompt:      ev.string(cfg.Prompt, "prompt"),
		Temperature: ev.float32(cfg.Temperature, "temperature"),
		TopP:        ev.float32(cfg.TopP, "top_p"),
		Stop:        ev.strings(cfg.Stop, "stop"),
	}
	if n, ok := ev.int(cfg.MaxTokens, "max_tokens"); ok {
		if n < FillContext {
			ev.fail(cfg.MaxTokens, "max_tokens", "The \"max_tokens\" attribute must be -1 or a positive number.")
		}
		req.MaxTokens = n
	}
	if isSet(cfg.Messages) {
		req.Messages = messages(ev, cfg.Messages)
	}
	if err := ev.err(); err != nil {
		return nil, execErr(spec, err)
	}
	return req, nil
}

// messages evaluates a list of {role, content} objects.
func messages(ev *evaluator, expr hcl.Expression) []provider.Message {
	msgType := cty.List(cty.Object(map[string]cty.Type{"role": cty.String, "content": cty.String}))
	v, ok := ev.value(expr, "messages", msgType)
	if !ok {
		return nil
	}
	out := make([]provider.Message, 0, v.LengthInt())
	it := v.ElementIterator()
	for it.Next() {
		_, m := it.Element()
		role, content := m.GetAttr("role"), m.GetAttr("content")
		if role.IsNull() || content.IsNull() {
			ev.fail(expr, "messages", "Every message needs a role and a content.")
			return nil
		}
		out = append(out, provider.Message{Role: role.AsString(), Content: content.AsString()})
	}
	if len(out) == 0 {
		ev.fail(expr, "messages", "The \"messages\" attribute must not be empty.")
	}
	return out
}

func executeLLM(ctx context.Context, env *Env, spec *Spec, req *llmRequest) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	p, err := env.Providers.Get(req.Provider)
	if err != nil {
		return Result{}, execErr(spec, err)
	}

	params := provider.Params{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if req.MaxTokens == FillContext {
		params.MaxTokens, err = remainingTokens(p, req)
		if err != nil {
			return Result{}, execErr(spec, err)
		}
		logger.Debug("Filling remaining context.", "block", spec.Name, "max_tokens", params.MaxTokens)
	}

	policy := spec.Policy(env.Retry)
	var completion *provider.Completion
	var retries int
	if len(req.Messages) > 0 {
		completion, retries, err = provider.Call(ctx, policy, func(ctx context.Context) (*provider.Completion, error) {
			return p.Chat(ctx, provider.ChatRequest{Model: req.Model, Messages: req.Messages, Params: params})
		})
	} else {
		completion, retries, err = provider.Call(ctx, policy, func(ctx context.Context) (*provider.Completion, error) {
			return p.Complete(ctx, provider.CompletionRequest{Model: req.Model, Prompt: req.Prompt, Params: params})
		})
	}
	if err != nil {
		return Result{Meta: Meta{Retries: retries}}, execErr(spec, err)
	}

	usage := completion.Usage
	value := cty.ObjectVal(map[string]cty.Value{
		"text":          cty.StringVal(completion.Text),
		"finish_reason": cty.StringVal(completion.FinishReason),
		"usage": cty.ObjectVal(map[string]cty.Value{
			"prompt_tokens":     cty.NumberIntVal(int64(usage.PromptTokens)),
			"completion_tokens": cty.NumberIntVal(int64(usage.CompletionTokens)),
		}),
	})
	return Result{Value: value, Meta: Meta{Retries: retries, Usage: &usage}}, nil
}

// remainingTokens counts the prompt with the provider's tokenizer and
// returns what is left of the model's context window.
func remainingTokens(p provider.Provider, req *llmRequest) (int, error) {
	tok, ok := provider.TokenizerOf(p)
	if !ok {
		return 0, fmt.Errorf("provider %q cannot count tokens; set max_tokens explicitly", p.Name())
	}
	size := tok.ContextSize(req.Model)
	if size <= 0 {
		return 0, fmt.Errorf("context size of model %q is unknown; set max_tokens explicitly", req.Model)
	}

	text := req.Prompt
	if len(req.Messages) > 0 {
		parts := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			parts[i] = m.Content
		}
		text = strings.Join(parts, "\n")
	}
	ids, err := tok.Encode(req.Model, text)
	if err != nil {
		return 0, fmt.Errorf("failed to count prompt tokens: %w", err)
	}
	remaining := size - len(ids)
	if remaining <= 0 {
		return 0, fmt.Errorf("prompt uses %d tokens, which fills the %d-token context of %q", len(ids), size, req.Model)
	}
	return remaining, nil
}
