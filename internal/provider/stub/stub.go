// Package stub is a deterministic in-process provider. Tests use it in place
// of a real backend and `type = "stub"` in the config uses it for dry runs.
package stub

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/specialistvlad/llmgrid/internal/provider"
)

// Func answers one prompt.
type Func func(ctx context.Context, model, prompt string) (string, error)

// Echo returns the prompt unchanged.
func Echo(_ context.Context, _, prompt string) (string, error) {
	return prompt, nil
}

// Provider answers every call through a Func and counts calls.
type Provider struct {
	name  string
	fn    Func
	calls atomic.Int64
}

var (
	_ provider.Provider  = (*Provider)(nil)
	_ provider.Tokenizer = (*Provider)(nil)
)

// New returns a stub named name. A nil fn means Echo.
func New(name string, fn Func) *Provider {
	if fn == nil {
		fn = Echo
	}
	return &Provider{name: name, fn: fn}
}

func (p *Provider) Name() string { return p.name }

// Calls returns how many Complete, Chat and Embed calls were made.
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	p.calls.Add(1)
	text, err := p.fn(ctx, req.Model, req.Prompt)
	if err != nil {
		return nil, err
	}
	return &provider.Completion{
		Text:         text,
		FinishReason: "stop",
		Usage:        provider.Usage{PromptTokens: countWords(req.Prompt), CompletionTokens: countWords(text)},
	}, nil
}

// Chat answers the last message's content.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.Completion, error) {
	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return p.Complete(ctx, provider.CompletionRequest{Model: req.Model, Prompt: last, Params: req.Params})
}

// Embed returns a vector of word lengths for each input.
func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) (*provider.Embedding, error) {
	p.calls.Add(1)
	out := &provider.Embedding{Vectors: make([][]float32, len(req.Inputs))}
	for i, in := range req.Inputs {
		for _, w := range strings.Fields(in) {
			out.Vectors[i] = append(out.Vectors[i], float32(len(w)))
		}
		out.Usage.PromptTokens += countWords(in)
	}
	return out, nil
}

// Encode treats every whitespace-separated word as one token.
func (p *Provider) Encode(_, text string) ([]int, error) {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i, w := range words {
		tokens[i] = len(w)
	}
	return tokens, nil
}

// ContextSize is fixed for every model.
func (p *Provider) ContextSize(string) int { return 2048 }

func countWords(s string) int {
	return len(strings.Fields(s))
}
