// Package provider is the normalized interface over LLM backends.
//
// Blocks never talk to a vendor SDK directly. They look a Provider up by name
// in a Registry and call one of the three primitives with a normalized request.
// Every backend classifies its failures into the four kinds in errors.go so the
// caller can decide what to retry.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider is one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Chat(ctx context.Context, req ChatRequest) (*Completion, error)
	Embed(ctx context.Context, req EmbedRequest) (*Embedding, error)
}

// Tokenizer is implemented by providers that can count tokens locally.
type Tokenizer interface {
	Encode(model, text string) ([]int, error)
	// ContextSize returns the model's context window in tokens, or 0 if
	// unknown.
	ContextSize(model string) int
}

// Params are the sampling parameters shared by completion and chat.
type Params struct {
	Temperature *float32
	TopP        *float32
	// MaxTokens of 0 leaves the backend default in place.
	MaxTokens int
	Stop      []string
}

// CompletionRequest is a single-prompt request.
type CompletionRequest struct {
	Model  string
	Prompt string
	Params Params
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a multi-turn request.
type ChatRequest struct {
	Model    string
	Messages []Message
	Params   Params
}

// EmbedRequest asks for one vector per input.
type EmbedRequest struct {
	Model  string
	Inputs []string
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is the normalized response of Complete and Chat.
type Completion struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Embedding is the normalized response of Embed.
type Embedding struct {
	Vectors [][]float32
	Usage   Usage
}

// Registry maps provider names to providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under its name. Registering a name twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q is already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, &Error{Kind: InvalidRequest, Provider: name, Err: fmt.Errorf("no provider registered under %q", name)}
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TokenizerOf returns p's tokenizer, looking through instrumentation
// wrappers.
func TokenizerOf(p Provider) (Tokenizer, bool) {
	for p != nil {
		if t, ok := p.(Tokenizer); ok {
			return t, true
		}
		u, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			return nil, false
		}
		p = u.Unwrap()
	}
	return nil, false
}
