// Package openai is the OpenAI backend, built on go-openai. It also counts
// tokens locally with tiktoken so LLM blocks can size max_tokens to the
// remaining context window.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/specialistvlad/llmgrid/internal/provider"
)

// Config configures the client.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

// Provider talks to the OpenAI API.
type Provider struct {
	name   string
	client *goopenai.Client

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

var (
	_ provider.Provider  = (*Provider)(nil)
	_ provider.Tokenizer = (*Provider)(nil)
)

// New builds a provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: an API key is required")
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{
		name:      name,
		client:    goopenai.NewClientWithConfig(clientCfg),
		encodings: make(map[string]*tiktoken.Tiktoken),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	r := goopenai.CompletionRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		MaxTokens: req.Params.MaxTokens,
		Stop:      req.Params.Stop,
	}
	if req.Params.Temperature != nil {
		r.Temperature = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		r.TopP = *req.Params.TopP
	}

	resp, err := p.client.CreateCompletion(ctx, r)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.Error{Kind: provider.Unavailable, Provider: p.name, Err: errors.New("no choices returned")}
	}
	return &provider.Completion{
		Text:         resp.Choices[0].Text,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        provider.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.Completion, error) {
	r := goopenai.ChatCompletionRequest{
		Model:               req.Model,
		MaxCompletionTokens: req.Params.MaxTokens,
		Stop:                req.Params.Stop,
	}
	for _, m := range req.Messages {
		r.Messages = append(r.Messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if req.Params.Temperature != nil {
		r.Temperature = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		r.TopP = *req.Params.TopP
	}

	resp, err := p.client.CreateChatCompletion(ctx, r)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.Error{Kind: provider.Unavailable, Provider: p.name, Err: errors.New("no choices returned")}
	}
	return &provider.Completion{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        provider.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) (*provider.Embedding, error) {
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: req.Inputs,
		Model: goopenai.EmbeddingModel(req.Model),
	})
	if err != nil {
		return nil, p.classify(err)
	}
	vectors := make([][]float32, len(req.Inputs))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return &provider.Embedding{
		Vectors: vectors,
		Usage:   provider.Usage{PromptTokens: resp.Usage.PromptTokens},
	}, nil
}

// classify maps go-openai's error types onto provider kinds.
func (p *Provider) classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return statusError(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(p.name, reqErr.HTTPStatusCode, err)
	}
	return provider.Classify(p.name, err)
}

func statusError(name string, status int, err error) error {
	kind, ok := provider.KindForStatus(status)
	if !ok {
		return provider.Classify(name, err)
	}
	return &provider.Error{Kind: kind, Provider: name, StatusCode: status, Err: err}
}

// Encode tokenizes text with the model's BPE encoding.
func (p *Provider) Encode(model, text string) ([]int, error) {
	enc, err := p.encoding(model)
	if err != nil {
		return nil, err
	}
	return enc.Encode(text, nil, nil), nil
}

func (p *Provider) encoding(model string) (*tiktoken.Tiktoken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if enc, ok := p.encodings[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("openai: no tokenizer for model %q: %w", model, err)
	}
	p.encodings[model] = enc
	return enc, nil
}

// contextSizes lists context windows by model prefix, longest prefix first.
var contextSizes = []struct {
	prefix string
	size   int
}{
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4-32k", 32768},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo-instruct", 4096},
	{"gpt-3.5-turbo", 16385},
	{"text-davinci-003", 4097},
	{"text-davinci-002", 4097},
	{"code-davinci-002", 8001},
}

// ContextSize returns the context window of model, or 0 if unknown.
func (p *Provider) ContextSize(model string) int {
	for _, c := range contextSizes {
		if strings.HasPrefix(model, c.prefix) {
			return c.size
		}
	}
	return 0
}
