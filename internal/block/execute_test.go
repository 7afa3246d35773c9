package block_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/provider/stub"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/specialistvlad/llmgrid/internal/runstate"
	"github.com/specialistvlad/llmgrid/internal/search"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// newEnv returns an env whose root frame holds outputs and whose registry
// holds the given providers.
func newEnv(t *testing.T, outputs map[string]any, providers ...provider.Provider) *block.Env {
	t.Helper()

	frame := runstate.NewRoot()
	for name, v := range outputs {
		val, err := block.ToValue(v)
		require.NoError(t, err)
		frame.Set(name, val)
	}
	reg := provider.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	return &block.Env{
		Frame:     frame,
		Input:     cty.NullVal(cty.DynamicPseudoType),
		Providers: reg,
		Search:    search.NewRegistry(),
		HTTP:      http.DefaultClient,
		Retry:     retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}
}

// native converts a block value for comparison.
func native(t *testing.T, v cty.Value) any {
	t.Helper()
	out, err := block.FromValue(v)
	require.NoError(t, err)
	return out
}

func TestExecute_Code(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	specs := parseSpecs(t, `
block "code" "POSITIVE" {
  expression = length([for r in ROWS : r if r.amount > 0])
}
`)
	env := newEnv(t, map[string]any{
		"ROWS": []any{
			map[string]any{"amount": 3},
			map[string]any{"amount": -1},
			map[string]any{"amount": 7},
		},
	})

	// --- Act ---
	res, err := block.Execute(ctx, env, specs["POSITIVE"])

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), native(t, res.Value))
}

func TestExecute_CodeFailure(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	specs := parseSpecs(t, `
block "code" "BROKEN" {
  expression = ROWS.missing
}
`)
	env := newEnv(t, map[string]any{"ROWS": map[string]any{"a": 1}})

	_, err := block.Execute(ctx, env, specs["BROKEN"])

	var execErr *block.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "BROKEN", execErr.Block)
	assert.Equal(t, block.Code, execErr.Variant)
}

func TestExecute_InputAndData(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	specs := parseSpecs(t, `
block "input" "INPUT" {}

block "data" "INLINE" {
  values = [{ q = "a" }, { q = "b" }]
}

block "data" "STORED" {
  dataset = "examples"
}
`)
	env := newEnv(t, nil)
	input, err := block.ToValue(map[string]any{"n": 1})
	require.NoError(t, err)
	env.Input = input
	stored, err := block.ToValue([]any{map[string]any{"x": true}})
	require.NoError(t, err)
	env.Datasets = map[string]cty.Value{"STORED": stored}

	// --- Act ---
	inRes, inErr := block.Execute(ctx, env, specs["INPUT"])
	inlineRes, inlineErr := block.Execute(ctx, env, specs["INLINE"])
	storedRes, storedErr := block.Execute(ctx, env, specs["STORED"])

	// --- Assert ---
	require.NoError(t, inErr)
	require.NoError(t, inlineErr)
	require.NoError(t, storedErr)
	assert.Equal(t, map[string]any{"n": json.Number("1")}, native(t, inRes.Value))
	assert.Equal(t, []any{map[string]any{"q": "a"}, map[string]any{"q": "b"}}, native(t, inlineRes.Value))
	assert.Equal(t, []any{map[string]any{"x": true}}, native(t, storedRes.Value))
	assert.Equal(t, "examples", specs["STORED"].Config.(*block.DataConfig).DatasetID)
}

func TestExecute_LLM(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		wantText string
	}{
		{
			name: "prompt template",
			body: `
  prompt     = "Q: ${INPUT.question}"
  max_tokens = -1`,
			wantText: "Q: WHY",
		},
		{
			name: "chat messages",
			body: `
  messages = [
    { role = "system", content = "be brief" },
    { role = "user", content = "say ${INPUT.question}" },
  ]
  temperature = 0.5
  stop        = ["\n"]`,
			wantText: "SAY WHY",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.NewContext(t)

			// --- Arrange ---
			specs := parseSpecs(t, `
block "llm" "ANSWER" {
  provider = "stub"
  model    = "m"`+tc.body+`
}
`)
			p := stub.New("stub", func(_ context.Context, _, prompt string) (string, error) {
				return strings.ToUpper(prompt), nil
			})
			env := newEnv(t, map[string]any{"INPUT": map[string]any{"question": "why"}}, p)

			// --- Act ---
			res, err := block.Execute(ctx, env, specs["ANSWER"])

			// --- Assert ---
			require.NoError(t, err)
			got := native(t, res.Value).(map[string]any)
			assert.Equal(t, tc.wantText, got["text"])
			assert.Equal(t, "stop", got["finish_reason"])
			assert.Equal(t, map[string]any{"prompt_tokens": json.Number("2"), "completion_tokens": json.Number("2")}, got["usage"])
			require.NotNil(t, res.Meta.Usage)
			assert.Equal(t, 2, res.Meta.Usage.CompletionTokens)
			assert.Equal(t, 1, p.Calls())
		})
	}
}

func TestExecute_LLMRetries(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	specs := parseSpecs(t, `
block "llm" "FLAKY" {
  provider = "stub"
  model    = "m"
  prompt   = "hello"
}
`)
	var attempts atomic.Int32
	p := stub.New("stub", func(_ context.Context, _, prompt string) (string, error) {
		if attempts.Add(1) == 1 {
			return "", &provider.Error{Kind: provider.Unavailable, Provider: "stub", Err: errors.New("overloaded")}
		}
		return prompt, nil
	})
	env := newEnv(t, nil, p)

	// --- Act ---
	res, err := block.Execute(ctx, env, specs["FLAKY"])

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 1, res.Meta.Retries)
	assert.Equal(t, 2, p.Calls())
}

func TestExecute_LLMFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		provider string
		fn       stub.Func
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unknown provider",
			provider: "missing",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), `no provider registered under "missing"`)
			},
		},
		{
			name:     "invalid request is not retried",
			provider: "stub",
			fn: func(context.Context, string, string) (string, error) {
				return "", &provider.Error{Kind: provider.InvalidRequest, Provider: "stub", Err: errors.New("bad model")}
			},
			check: func(t *testing.T, err error) {
				var pe *provider.Error
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, provider.InvalidRequest, pe.Kind)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.NewContext(t)

			specs := parseSpecs(t, `
block "llm" "X" {
  provider = "`+tc.provider+`"
  model    = "m"
  prompt   = "hi"
}
`)
			env := newEnv(t, nil, stub.New("stub", tc.fn))

			res, err := block.Execute(ctx, env, specs["X"])

			var execErr *block.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, 0, res.Meta.Retries)
			tc.check(t, err)
		})
	}
}

func TestExecute_Curl(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		assert.JSONEq(t, `{"city":"Kyiv","days":3}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp":21.5,"tags":["warm"]}`))
	}))
	t.Cleanup(srv.Close)

	specs := parseSpecs(t, `
block "curl" "WEATHER" {
  url     = "`+srv.URL+`/forecast"
  method  = "post"
  headers = { "X-Key" = "k" }
  body    = { city = INPUT.city, days = 3 }
}
`)
	env := newEnv(t, map[string]any{"INPUT": map[string]any{"city": "Kyiv"}})
	env.HTTP = srv.Client()

	// --- Act ---
	res, err := block.Execute(ctx, env, specs["WEATHER"])

	// --- Assert ---
	require.NoError(t, err)
	got := native(t, res.Value).(map[string]any)
	assert.Equal(t, json.Number("200"), got["status"])
	assert.Equal(t, map[string]any{"temp": json.Number("21.5"), "tags": []any{"warm"}}, got["body"])
	assert.Equal(t, "application/json", got["headers"].(map[string]any)["Content-Type"])
}

func TestExecute_CurlRetriesTransientStatus(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("plain text"))
	}))
	t.Cleanup(srv.Close)

	specs := parseSpecs(t, `
block "curl" "PING" {
  url = "`+srv.URL+`"
}
`)
	env := newEnv(t, nil)
	env.HTTP = srv.Client()

	// --- Act ---
	res, err := block.Execute(ctx, env, specs["PING"])

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, res.Meta.Retries)
	assert.Equal(t, "plain text", native(t, res.Value).(map[string]any)["body"])
}

func TestExecute_Browser(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html>
<html>
<head><title> Release notes </title><style>p { color: red }</style></head>
<body>
  <nav>Home | About</nav>
  <div class="content">First   paragraph.<script>track()</script></div>
  <div class="content other">Second paragraph.</div>
  <p id="footer">Footer</p>
</body>
</html>`

	testCases := []struct {
		name      string
		attrs     string
		wantText  string
		wantChunk int
	}{
		{
			name:      "whole body",
			attrs:     "",
			wantText:  "Home | About First paragraph. Second paragraph. Footer",
			wantChunk: 1,
		},
		{
			name:      "class selector",
			attrs:     `selector = ".content"`,
			wantText:  "First paragraph.\nSecond paragraph.",
			wantChunk: 1,
		},
		{
			name:      "id selector",
			attrs:     `selector = "#footer"`,
			wantText:  "Footer",
			wantChunk: 1,
		},
		{
			name: "chunked",
			attrs: `selector   = ".content"
  chunk_size = 18`,
			wantText:  "First paragraph.\nSecond paragraph.",
			wantChunk: 2,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.NewContext(t)

			// --- Arrange ---
			specs := parseSpecs(t, `
block "browser" "PAGE" {
  url = "`+srv.URL+`"
  `+tc.attrs+`
}
`)
			env := newEnv(t, nil)
			env.HTTP = srv.Client()

			// --- Act ---
			res, err := block.Execute(ctx, env, specs["PAGE"])

			// --- Assert ---
			require.NoError(t, err)
			got := native(t, res.Value).(map[string]any)
			assert.Equal(t, "Release notes", got["title"])
			assert.Equal(t, tc.wantText, got["text"])
			assert.Len(t, got["chunks"], tc.wantChunk)
		})
	}
}

func TestExecute_BrowserRejectsBadSelector(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	specs := parseSpecs(t, `
block "browser" "PAGE" {
  url      = "http://localhost/"
  selector = "div > p"
}
`)

	_, err := block.Execute(ctx, newEnv(t, nil), specs["PAGE"])

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestExecute_Search(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go generics", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"title":"a","url":"u1","snippet":"s1","score":0.25},{"title":"b","url":"u2","snippet":"s2","score":0.75}]`))
	}))
	t.Cleanup(srv.Close)

	backend, err := search.NewHTTP(search.HTTPConfig{Name: "web", URL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	env := newEnv(t, map[string]any{"INPUT": map[string]any{"topic": "generics"}})
	require.NoError(t, env.Search.Register(backend))

	specs := parseSpecs(t, `
block "search" "DOCS" {
  backend = "web"
  query   = "go ${INPUT.topic}"
  limit   = 1
}
`)

	// --- Act ---
	res, err := block.Execute(ctx, env, specs["DOCS"])

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"title": "b", "url": "u2", "snippet": "s2", "score": json.Number("0.75")},
	}, native(t, res.Value))
}

func TestExecute_MapAndReduce(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	specs := parseSpecs(t, `
block "map" "ITEMS" {
  from = INPUT.items
}

block "map" "TIMES" {
  from   = INPUT.items
  repeat = 2
}

block "map" "SCALAR" {
  from = INPUT.name
}

block "reduce" "OUT" {}
`)
	env := newEnv(t, map[string]any{"INPUT": map[string]any{"items": []any{1, 2, 3}, "name": "x"}})
	env.Branches = []cty.Value{cty.NumberIntVal(2), cty.NumberIntVal(4)}

	// --- Act ---
	items, itemsErr := block.Execute(ctx, env, specs["ITEMS"])
	times, timesErr := block.Execute(ctx, env, specs["TIMES"])
	_, scalarErr := block.Execute(ctx, env, specs["SCALAR"])
	out, outErr := block.Execute(ctx, env, specs["OUT"])

	// --- Assert ---
	require.NoError(t, itemsErr)
	require.NoError(t, timesErr)
	require.NoError(t, outErr)
	assert.Equal(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, native(t, items.Value))
	three := []any{json.Number("1"), json.Number("2"), json.Number("3")}
	assert.Equal(t, []any{three, three}, native(t, times.Value))
	assert.ErrorContains(t, scalarErr, "from must be a list")
	assert.Equal(t, []any{json.Number("2"), json.Number("4")}, native(t, out.Value))
}
