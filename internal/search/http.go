package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/specialistvlad/llmgrid/internal/httpclient"
)

// HTTPConfig configures a JSON search endpoint.
type HTTPConfig struct {
	Name string
	// URL receives GET requests with q, limit and class query parameters.
	URL    string
	APIKey string
	Client *http.Client
}

// HTTP queries an endpoint that answers with {"results": [...]} or a bare
// array of results.
type HTTP struct {
	cfg HTTPConfig
}

// NewHTTP builds a backend from cfg.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("http search: invalid url %q: %w", cfg.URL, err)
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &HTTP{cfg: cfg}, nil
}

func (h *HTTP) Name() string { return h.cfg.Name }

func (h *HTTP) Search(ctx context.Context, q Query) ([]Result, error) {
	u, err := url.Parse(h.cfg.URL)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("q", q.Text)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Class != "" {
		params.Set("class", q.Class)
	}
	u.RawQuery = params.Encode()

	req := httpclient.Request{URL: u.String(), Headers: map[string]string{"Accept": "application/json"}}
	if h.cfg.APIKey != "" {
		req.Headers["Authorization"] = "Bearer " + h.cfg.APIKey
	}
	resp, err := httpclient.Do(ctx, h.cfg.Client, req)
	if err != nil {
		return nil, err
	}
	if resp.Status >= 300 {
		return nil, fmt.Errorf("http search: %s returned %d", h.cfg.URL, resp.Status)
	}

	var results []Result
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		var wrapped struct {
			Results []Result `json:"results"`
		}
		if err := json.Unmarshal(resp.Body, &wrapped); err != nil {
			return nil, fmt.Errorf("http search: failed to decode response: %w", err)
		}
		results = wrapped.Results
	}
	if results == nil {
		results = []Result{}
	}
	return rank(results, q.Limit), nil
}
