package block

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/httpclient"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BrowserConfig fetches a page and extracts its readable text.
//
//	block "browser" "PAGE" {
//	  url        = SEARCH[0].url
//	  selector   = "article"
//	  chunk_size = 1000
//	}
//
// The selector is a tag name, "#id" or ".class". Without one the whole
// <body> is extracted.
type BrowserConfig struct {
	URL          hcl.Expression `hcl:"url"`
	Selector     hcl.Expression `hcl:"selector,optional"`
	ChunkSize    hcl.Expression `hcl:"chunk_size,optional"`
	ChunkOverlap hcl.Expression `hcl:"chunk_overlap,optional"`
}

type browserRequest struct {
	URL          string `json:"url"`
	Selector     string `json:"selector,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

func resolveBrowser(env *Env, spec *Spec) (*browserRequest, error) {
	cfg := spec.Config.(*BrowserConfig)
	ev := newEvaluator(env, spec)

	req := &browserRequest{
		URL:      ev.requiredString(cfg.URL, "url"),
		Selector: strings.TrimSpace(ev.string(cfg.Selector, "selector")),
	}
	if req.Selector != "" {
		if _, err := parseSelector(req.Selector); err != nil {
			ev.fail(cfg.Selector, "selector", err.Error())
		}
	}
	if n, ok := ev.int(cfg.ChunkSize, "chunk_size"); ok {
		if n < 1 {
			ev.fail(cfg.ChunkSize, "chunk_size", "The \"chunk_size\" attribute must be positive.")
		}
		req.ChunkSize = n
	}
	if n, ok := ev.int(cfg.ChunkOverlap, "chunk_overlap"); ok {
		if n < 0 || (req.ChunkSize > 0 && n >= req.ChunkSize) {
			ev.fail(cfg.ChunkOverlap, "chunk_overlap", "The \"chunk_overlap\" attribute must be between 0 and chunk_size.")
		}
		req.ChunkOverlap = n
	}
	if err := ev.err(); err != nil {
		return nil, execErr(spec, err)
	}
	return req, nil
}

func executeBrowser(ctx context.Context, env *Env, spec *Spec, req *browserRequest) (Result, error) {
	resp, retries, err := retry.Do(ctx, spec.Policy(env.Retry), httpclient.RetryDecision, func(ctx context.Context) (*httpclient.Response, error) {
		return httpclient.Do(ctx, env.HTTP, httpclient.Request{URL: req.URL, Headers: map[string]string{"Accept": "text/html"}})
	})
	if err != nil {
		return Result{Meta: Meta{Retries: retries}}, execErr(spec, err)
	}
	meta := Meta{Retries: retries}
	if resp.Status >= 300 {
		return Result{Meta: meta}, execErrf(spec, "%s returned %d", req.URL, resp.Status)
	}

	page, err := extract(resp.Body, req.Selector)
	if err != nil {
		return Result{Meta: meta}, execErr(spec, err)
	}

	chunks := []string{}
	if page.text != "" {
		chunks = []string{page.text}
	}
	if req.ChunkSize > 0 && page.text != "" {
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(req.ChunkSize),
			textsplitter.WithChunkOverlap(req.ChunkOverlap),
		)
		chunks, err = splitter.SplitText(page.text)
		if err != nil {
			return Result{Meta: meta}, execErrf(spec, "failed to split page text: %w", err)
		}
	}
	chunkVals := make([]cty.Value, len(chunks))
	for i, c := range chunks {
		chunkVals[i] = cty.StringVal(c)
	}

	value := cty.ObjectVal(map[string]cty.Value{
		"url":    cty.StringVal(req.URL),
		"title":  cty.StringVal(page.title),
		"text":   cty.StringVal(page.text),
		"chunks": tupleVal(chunkVals),
	})
	return Result{Value: value, Meta: meta}, nil
}

// selector matches elements by one of tag, id or class.
type selector struct {
	tag   atom.Atom
	id    string
	class string
}

func parseSelector(s string) (selector, error) {
	switch {
	case strings.ContainsAny(s, " >+~[:,"):
		return selector{}, fmt.Errorf("selector %q is not supported; use a tag name, #id or .class", s)
	case strings.HasPrefix(s, "#") && len(s) > 1:
		return selector{id: s[1:]}, nil
	case strings.HasPrefix(s, ".") && len(s) > 1:
		return selector{class: s[1:]}, nil
	}
	a := atom.Lookup([]byte(strings.ToLower(s)))
	if a == 0 {
		return selector{}, fmt.Errorf("unknown HTML tag %q", s)
	}
	return selector{tag: a}, nil
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch {
	case s.tag != 0:
		return n.DataAtom == s.tag
	case s.id != "":
		return attr(n, "id") == s.id
	default:
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				return true
			}
		}
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

type page struct {
	title string
	text  string
}

// extract parses a document and returns its title and the normalized text
// of the matching elements, one element per line.
func extract(body []byte, sel string) (page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	match := selector{tag: atom.Body}
	if sel != "" {
		if match, err = parseSelector(sel); err != nil {
			return page{}, err
		}
	}

	var p page
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title && p.title == "" {
			p.title = normalize(textOf(n))
		}
		if match.matches(n) {
			if t := normalize(textOf(n)); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	p.text = strings.Join(parts, "\n")
	return p, nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
