package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/client"
	"comfypilot/internal/config"
)

type echoProvider struct {
	mu       sync.Mutex
	requests []client.Request
}

func (p *echoProvider) Name() string  { return "echo" }
func (p *echoProvider) Model() string { return "echo-1" }

func (p *echoProvider) Stream(ctx context.Context, req client.Request) (<-chan client.Event, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	ch := make(chan client.Event, 2)
	ch <- client.Event{Type: client.EventTextDelta, Text: "Hello there"}
	ch <- client.Event{Type: client.EventFinish, Reason: client.FinishStop}
	close(ch)
	return ch, nil
}

func (p *echoProvider) Requests() []client.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]client.Request(nil), p.requests...)
}

func newComfyServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/object_info":
			w.Write([]byte(`{}`))
		case "/models":
			w.Write([]byte(`["checkpoints"]`))
		case "/models/checkpoints":
			w.Write([]byte(`["sdxl_base.safetensors"]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Comfy.BaseURL = newComfyServer(t).URL
	cfg.Paths = config.PathsConfig{
		InstructionsDir: filepath.Join(dir, "system_context"),
		ModelSkillsDir:  filepath.Join(dir, "model_skills"),
		TemplatesDir:    filepath.Join(dir, "templates"),
		DataDir:         filepath.Join(dir, "data"),
	}
	return cfg
}

func newTestApp(t *testing.T, input string) (*App, *echoProvider, *bytes.Buffer) {
	t.Helper()
	p := &echoProvider{}
	var out bytes.Buffer
	a, err := NewBuilder(testConfig(t)).
		WithVersion("test").
		WithProvider(p).
		WithIO(strings.NewReader(input), &out, true).
		WithoutWatch().
		Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, p, &out
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	a, p, out := newTestApp(t, "/rules add Always use SDXL\nmake a portrait workflow\n/quit\nnever sent\n")

	require.NoError(t, a.Run(ctx))

	assert.Contains(t, out.String(), "Added rule 1")
	assert.Contains(t, out.String(), "Hello there")

	reqs := p.Requests()
	require.Len(t, reqs, 1, "input after /quit is not read")
	system := reqs[0].System()
	assert.Contains(t, system, "- Always use SDXL")
	assert.Contains(t, system, "sdxl_base.safetensors")
	assert.NotEmpty(t, reqs[0].Tools)

	threads, err := a.Store().Threads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, a.Thread().ID, threads[0].ID)
}

func TestNewThreadAndResume(t *testing.T) {
	ctx := context.Background()
	a, p, _ := newTestApp(t, "")

	require.NoError(t, a.HandleInput(ctx, "hello"))
	first := a.Thread().ID
	require.Equal(t, 2, a.Thread().Len())

	require.NoError(t, a.HandleInput(ctx, "/new"))
	assert.NotEqual(t, first, a.Thread().ID)
	assert.Zero(t, a.Thread().Len())

	require.NoError(t, a.ResumeThread(ctx, first))
	assert.Equal(t, first, a.Thread().ID)
	assert.Equal(t, 2, a.Thread().Len())

	// A resumed thread already has an assistant reply, so it continues
	// with the short reminder instead of the full context.
	require.NoError(t, a.HandleInput(ctx, "and now a landscape"))
	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Less(t, len(reqs[1].System()), len(reqs[0].System()))

	assert.Error(t, a.ResumeThread(ctx, "missing"))
}

func TestBuildRejectsBadBackendURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Comfy.BaseURL = "ftp://example.com"

	_, err := NewBuilder(cfg).WithProvider(&echoProvider{}).WithoutWatch().Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid comfy.base_url")
}
