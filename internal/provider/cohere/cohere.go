// Package cohere is the Cohere backend, built on langchaingo's cohere model.
// It supports single-prompt generation only: chat requests are flattened to
// a prompt and embeddings are rejected.
package cohere

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	lccohere "github.com/tmc/langchaingo/llms/cohere"

	"github.com/specialistvlad/llmgrid/internal/provider"
)

// Config configures the client.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
}

// Provider talks to the Cohere generate API.
type Provider struct {
	name string
	cfg  Config

	mu     sync.Mutex
	models map[string]*lccohere.LLM
}

var _ provider.Provider = (*Provider)(nil)

// New builds a provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere: an API key is required")
	}
	name := cfg.Name
	if name == "" {
		name = "cohere"
	}
	return &Provider{name: name, cfg: cfg, models: make(map[string]*lccohere.LLM)}, nil
}

func (p *Provider) Name() string { return p.name }

// model returns the client bound to one model; the underlying client fixes
// the model at construction.
func (p *Provider) model(name string) (*lccohere.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if llm, ok := p.models[name]; ok {
		return llm, nil
	}
	opts := []lccohere.Option{lccohere.WithToken(p.cfg.APIKey), lccohere.WithModel(name)}
	if p.cfg.BaseURL != "" {
		opts = append(opts, lccohere.WithBaseURL(p.cfg.BaseURL))
	}
	llm, err := lccohere.New(opts...)
	if err != nil {
		return nil, &provider.Error{Kind: provider.InvalidRequest, Provider: p.name, Err: err}
	}
	p.models[name] = llm
	return llm, nil
}

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	llm, err := p.model(req.Model)
	if err != nil {
		return nil, err
	}

	var opts []llms.CallOption
	if req.Params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*req.Params.Temperature)))
	}
	if req.Params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*req.Params.TopP)))
	}
	if req.Params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.Params.MaxTokens))
	}
	if len(req.Params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.Params.Stop))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, llm, req.Prompt, opts...)
	if err != nil {
		return nil, p.classify(err)
	}
	return &provider.Completion{Text: text, FinishReason: "stop"}, nil
}

// Chat flattens the conversation into one prompt.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.Completion, error) {
	var b strings.Builder
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("assistant:")
	return p.Complete(ctx, provider.CompletionRequest{Model: req.Model, Prompt: b.String(), Params: req.Params})
}

func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) (*provider.Embedding, error) {
	return nil, &provider.Error{Kind: provider.InvalidRequest, Provider: p.name, Err: errors.New("embeddings are not supported")}
}

func (p *Provider) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return provider.Classify(p.name, err)
	}
	mapped := lccohere.MapError(err)
	var lerr *llms.Error
	if errors.As(mapped, &lerr) && lerr.Code == llms.ErrCodeResourceNotFound {
		return &provider.Error{Kind: provider.InvalidRequest, Provider: p.name, Err: err}
	}
	switch {
	case llms.IsRateLimitError(mapped), llms.IsQuotaExceededError(mapped):
		return &provider.Error{Kind: provider.RateLimited, Provider: p.name, Err: err}
	case llms.IsAuthenticationError(mapped), llms.IsInvalidRequestError(mapped), llms.IsTokenLimitError(mapped):
		return &provider.Error{Kind: provider.InvalidRequest, Provider: p.name, Err: err}
	case llms.IsTimeoutError(mapped):
		return &provider.Error{Kind: provider.Timeout, Provider: p.name, Err: err}
	}
	return provider.Classify(p.name, err)
}
