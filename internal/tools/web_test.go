package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/security"
)

const modelCard = `<html><head><title>x</title><script>track()</script></head>
<body><nav>menu</nav>
<div id="card"><h1>SDXL Base</h1><p>Use <strong>1024x1024</strong> with <code>dpmpp_2m</code>.</p>
<ul><li>cfg 5-7</li><li><a href="https://example.com/vae">fixed VAE</a></li></ul></div>
<footer>legal</footer></body></html>`

func TestHTMLToMarkdown(t *testing.T) {
	out, err := htmlToMarkdown(modelCard, "")
	require.NoError(t, err)
	assert.Contains(t, out, "# SDXL Base")
	assert.Contains(t, out, "**1024x1024**")
	assert.Contains(t, out, "`dpmpp_2m`")
	assert.Contains(t, out, "- cfg 5-7")
	assert.Contains(t, out, "fixed VAE (https://example.com/vae)")
	assert.NotContains(t, out, "track()")
	assert.NotContains(t, out, "menu")
	assert.NotContains(t, out, "legal")

	out, err = htmlToMarkdown(modelCard, "h1")
	require.NoError(t, err)
	assert.Equal(t, "# SDXL Base", out)

	out, err = htmlToMarkdown(`<body><p class="a b">one</p><p id="x">two</p></body>`, ".b")
	require.NoError(t, err)
	assert.Equal(t, "one", out)
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/card":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(modelCard))
		case "/big":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(strings.Repeat("a", maxPageChars+10)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(WebTools(WebConfig{Client: srv.Client()})...)
	_, ok := r.Get("webSearch")
	assert.False(t, ok, "webSearch needs a search backend")
	ctx := context.Background()

	res := r.Dispatch(ctx, "webFetch", map[string]any{"url": srv.URL + "/card", "selector": "#card"})
	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	assert.Contains(t, data["content"], "# SDXL Base")
	assert.Equal(t, false, data["truncated"])

	res = r.Dispatch(ctx, "webFetch", map[string]any{"url": srv.URL + "/big"})
	require.True(t, res.Success, res.Error)
	data = res.Data.(map[string]any)
	assert.Equal(t, true, data["truncated"])
	assert.True(t, strings.HasSuffix(data["content"].(string), "... [truncated]"))

	res = r.Dispatch(ctx, "webFetch", map[string]any{"url": srv.URL + "/nope"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "HTTP 404")

	res = r.Dispatch(ctx, "webFetch", map[string]any{"url": "file:///etc/passwd"})
	assert.False(t, res.Success)
	assert.Equal(t, "url must be an http or https URL", res.Error)
}

func TestWebFetchGuard(t *testing.T) {
	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(WebTools(WebConfig{Guard: security.NewURLGuard()})...)

	res := r.Dispatch(context.Background(), "webFetch", map[string]any{"url": "http://127.0.0.1:8188/object_info"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "url rejected")
}

func TestWebSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		gotQuery = r.URL.Query().Get("q")
		type hit struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		}
		hits := make([]hit, 0, 12)
		for i := 0; i < 12; i++ {
			hits = append(hits, hit{Title: "ControlNet union", URL: "https://example.com/cn", Content: "canny and depth"})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": hits})
	}))
	defer srv.Close()

	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(WebTools(WebConfig{SearchURL: srv.URL + "/", Client: srv.Client()})...)
	ctx := context.Background()

	res := r.Dispatch(ctx, "webSearch", map[string]any{"query": "sdxl controlnet union"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sdxl controlnet union", gotQuery)
	results := res.Data.(map[string]any)["results"].([]searchResult)
	assert.Len(t, results, 5)
	assert.Equal(t, "canny and depth", results[0].Snippet)

	res = r.Dispatch(ctx, "webSearch", map[string]any{"query": "x", "limit": 50.0})
	require.True(t, res.Success)
	assert.Len(t, res.Data.(map[string]any)["results"], 10)
}
