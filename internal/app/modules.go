package app

import (
	"fmt"
	"net/http"

	"github.com/specialistvlad/llmgrid/internal/config"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/provider/cohere"
	"github.com/specialistvlad/llmgrid/internal/provider/openai"
	"github.com/specialistvlad/llmgrid/internal/provider/stub"
	"github.com/specialistvlad/llmgrid/internal/search"
)

type providerFactory func(cfg config.Provider, client *http.Client) (provider.Provider, error)

type searchFactory func(cfg config.Search, client *http.Client) (search.Backend, error)

// providerTypes is the definitive list of provider backends compiled into
// the llmgrid binary.
var providerTypes = map[string]providerFactory{
	"openai": func(cfg config.Provider, client *http.Client) (provider.Provider, error) {
		p, err := openai.New(openai.Config{Name: cfg.Name, APIKey: cfg.ResolveAPIKey(), BaseURL: cfg.BaseURL, HTTPClient: client})
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	"cohere": func(cfg config.Provider, _ *http.Client) (provider.Provider, error) {
		p, err := cohere.New(cohere.Config{Name: cfg.Name, APIKey: cfg.ResolveAPIKey(), BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	"stub": func(cfg config.Provider, _ *http.Client) (provider.Provider, error) {
		return stub.New(cfg.Name, nil), nil
	},
}

// searchTypes is the list of search backends compiled into the binary.
var searchTypes = map[string]searchFactory{
	"http": func(cfg config.Search, client *http.Client) (search.Backend, error) {
		b, err := search.NewHTTP(search.HTTPConfig{Name: cfg.Name, URL: cfg.URL, APIKey: cfg.APIKey, Client: client})
		if err != nil {
			return nil, err
		}
		return b, nil
	},
	"weaviate": func(cfg config.Search, client *http.Client) (search.Backend, error) {
		b, err := search.NewWeaviate(search.WeaviateConfig{Name: cfg.Name, URL: cfg.URL, APIKey: cfg.APIKey, Class: cfg.Class, HTTPClient: client})
		if err != nil {
			return nil, err
		}
		return b, nil
	},
}

// buildProviders registers every configured provider, instrumented and
// rate limited.
func buildProviders(cfgs []config.Provider, client *http.Client) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, cfg := range cfgs {
		factory, ok := providerTypes[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
		}
		p, err := factory(cfg, client)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
		}
		if err := reg.Register(provider.Instrument(p, cfg.RequestsPerSecond)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildSearch(cfgs []config.Search, client *http.Client) (*search.Registry, error) {
	reg := search.NewRegistry()
	for _, cfg := range cfgs {
		factory, ok := searchTypes[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("search backend %s: unknown type %q", cfg.Name, cfg.Type)
		}
		b, err := factory(cfg, client)
		if err != nil {
			return nil, fmt.Errorf("search backend %s: %w", cfg.Name, err)
		}
		if err := reg.Register(b); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
