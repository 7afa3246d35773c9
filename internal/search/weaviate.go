package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// WeaviateConfig configures a Weaviate backend.
type WeaviateConfig struct {
	Name string
	// URL is the instance address, e.g. http://localhost:8080.
	URL    string
	APIKey string
	// Class is the default collection; Query.Class overrides it.
	Class string
	// Properties name the object fields mapped to title, url and snippet.
	TitleProperty   string
	URLProperty     string
	SnippetProperty string
	HTTPClient      *http.Client
}

// Weaviate runs nearText queries.
type Weaviate struct {
	cfg    WeaviateConfig
	client *weaviate.Client
}

// NewWeaviate builds a backend from cfg.
func NewWeaviate(cfg WeaviateConfig) (*Weaviate, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("weaviate: invalid url %q", cfg.URL)
	}
	if cfg.Name == "" {
		cfg.Name = "weaviate"
	}
	if cfg.TitleProperty == "" {
		cfg.TitleProperty = "title"
	}
	if cfg.URLProperty == "" {
		cfg.URLProperty = "url"
	}
	if cfg.SnippetProperty == "" {
		cfg.SnippetProperty = "content"
	}

	wcfg := weaviate.Config{Host: u.Host, Scheme: u.Scheme, ConnectionClient: cfg.HTTPClient}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Weaviate{cfg: cfg, client: client}, nil
}

func (w *Weaviate) Name() string { return w.cfg.Name }

// Search ranks objects of the class by semantic similarity to the query.
func (w *Weaviate) Search(ctx context.Context, q Query) ([]Result, error) {
	class := q.Class
	if class == "" {
		class = w.cfg.Class
	}
	if class == "" {
		return nil, errors.New("weaviate: no class given")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	fields := []graphql.Field{
		{Name: w.cfg.TitleProperty},
		{Name: w.cfg.URLProperty},
		{Name: w.cfg.SnippetProperty},
		{Name: "_additional { certainty distance }"},
	}
	nearText := w.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{q.Text})

	result, err := w.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("weaviate search: %s", strings.Join(msgs, "; "))
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []Result{}, nil
	}
	objects, ok := data[class].([]interface{})
	if !ok {
		return []Result{}, nil
	}

	out := make([]Result, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		r := Result{
			Title:   stringField(m, w.cfg.TitleProperty),
			URL:     stringField(m, w.cfg.URLProperty),
			Snippet: stringField(m, w.cfg.SnippetProperty),
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				r.Score = c
			} else if d, ok := add["distance"].(float64); ok {
				r.Score = 1 - d
			}
		}
		out = append(out, r)
	}
	return rank(out, limit), nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
