package context

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/config"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/memory"
)

type fakeUser struct {
	uc  memory.UserContext
	err error
}

func (f fakeUser) UserContext(context.Context) (memory.UserContext, error) { return f.uc, f.err }

type fakeEnv struct {
	summary string
	err     error
}

func (f fakeEnv) Summary(context.Context) (string, error) { return f.summary, f.err }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func defaults() config.ContextConfig {
	return config.DefaultConfig().Context
}

func TestTruncate(t *testing.T) {
	t.Run("under the cap", func(t *testing.T) {
		out, cut := Truncate("short", 100)
		assert.Equal(t, "short", out)
		assert.False(t, cut)
	})

	t.Run("disabled", func(t *testing.T) {
		out, cut := Truncate(strings.Repeat("x", 50), 0)
		assert.Len(t, out, 50)
		assert.False(t, cut)
	})

	t.Run("ends with the marker", func(t *testing.T) {
		out, cut := Truncate(strings.Repeat("x", 500), 100)
		assert.True(t, cut)
		assert.LessOrEqual(t, len(out), 100)
		assert.True(t, strings.HasSuffix(out, TruncationMarker))
	})

	t.Run("never splits a rune", func(t *testing.T) {
		text := strings.Repeat("é", 100)
		for max := 20; max < 40; max++ {
			out, cut := Truncate(text, max)
			require.True(t, cut)
			assert.LessOrEqual(t, len(out), max)
			assert.True(t, strings.HasSuffix(out, TruncationMarker))
			assert.True(t, strings.HasPrefix(out, "é"))
			assert.NotContains(t, strings.TrimSuffix(out, TruncationMarker), "�")
			assert.True(t, isValidUTF8(out), "cut at %d produced invalid UTF-8", max)
		}
	})

	t.Run("prefers a late line break", func(t *testing.T) {
		text := strings.Repeat("a", 70) + "\n" + strings.Repeat("b", 100)
		out, _ := Truncate(text, 100)
		assert.Equal(t, strings.Repeat("a", 70)+"\n"+TruncationMarker, out)
	})

	t.Run("cap smaller than the marker", func(t *testing.T) {
		out, cut := Truncate("abcdefghijklmnopqrstuvwxyz", 5)
		assert.True(t, cut)
		assert.Equal(t, "abcde", out)
	})
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "?") == s
}

func TestLoadInstructions(t *testing.T) {
	t.Run("first existing file wins", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "system.md"), "system text")
		writeFile(t, filepath.Join(dir, "instructions.md"), "  core text\n")

		f := NewLoader(dir, defaults(), nil, nil).LoadInstructions()
		assert.Equal(t, "core text", f.Text)
		assert.False(t, f.Fallback)
	})

	t.Run("empty file falls through", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "instructions.md"), "\n\n")
		writeFile(t, filepath.Join(dir, "system.md"), "system text")

		f := NewLoader(dir, defaults(), nil, nil).LoadInstructions()
		assert.Equal(t, "system text", f.Text)
	})

	t.Run("missing directory uses the fallback", func(t *testing.T) {
		f := NewLoader(filepath.Join(t.TempDir(), "nope"), defaults(), nil, nil).LoadInstructions()
		assert.True(t, f.Fallback)
		assert.Contains(t, f.Text, "ComfyUI workflow assistant")
		assert.Contains(t, f.Text, guardrail.Protocol)
	})

	t.Run("unreadable file uses the fallback", func(t *testing.T) {
		dir := t.TempDir()
		// A directory where a file is expected cannot be read.
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "instructions.md"), 0o755))
		f := NewLoader(dir, defaults(), nil, nil).LoadInstructions()
		assert.True(t, f.Fallback)
	})
}

func TestLoadSkillDocs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skills", "02_sampling.md"), "sampling")
	writeFile(t, filepath.Join(dir, "skills", "01_basics.md"), "basics")
	writeFile(t, filepath.Join(dir, "skills", "03_nested", "01_upscale.md"), "upscale")
	writeFile(t, filepath.Join(dir, "skills", "04_empty.md"), "   ")
	writeFile(t, filepath.Join(dir, "skills", "notes.txt"), "ignored")

	docs := NewLoader(dir, defaults(), nil, nil).LoadSkillDocs()
	var got []string
	for _, d := range docs {
		got = append(got, d.Source+"="+d.Text)
	}
	assert.Equal(t, []string{
		"skills/01_basics.md=basics",
		"skills/02_sampling.md=sampling",
		"skills/03_nested/01_upscale.md=upscale",
	}, got)

	assert.Empty(t, NewLoader(filepath.Join(dir, "missing"), defaults(), nil, nil).LoadSkillDocs())
}

func TestLoadUserContext(t *testing.T) {
	ctx := context.Background()

	t.Run("rules over the limit are counted", func(t *testing.T) {
		var rules []string
		for i := 1; i <= 15; i++ {
			rules = append(rules, fmt.Sprintf("rule %d", i))
		}
		f := NewLoader("", defaults(), fakeUser{uc: memory.UserContext{Rules: rules}}, nil).LoadUserContext(ctx)
		assert.Contains(t, f.Text, "- rule 12\n")
		assert.NotContains(t, f.Text, "rule 13")
		assert.Contains(t, f.Text, "(3 more rules omitted)")
	})

	t.Run("narrative is capped", func(t *testing.T) {
		uc := memory.UserContext{
			Persona: strings.Repeat("p", 900),
			Goals:   strings.Repeat("g", 900),
		}
		f := NewLoader("", defaults(), fakeUser{uc: uc}, nil).LoadUserContext(ctx)
		assert.True(t, f.Truncated)
		assert.LessOrEqual(t, len(f.Text), config.DefaultNarrativeMaxChars)
		assert.True(t, strings.HasSuffix(f.Text, TruncationMarker))
		assert.Contains(t, f.Text, "## Persona")
	})

	t.Run("whole block is capped", func(t *testing.T) {
		var rules []string
		for i := 0; i < 12; i++ {
			rules = append(rules, strings.Repeat("r", 300))
		}
		f := NewLoader("", defaults(), fakeUser{uc: memory.UserContext{Rules: rules, Goals: "ship it"}}, nil).LoadUserContext(ctx)
		assert.True(t, f.Truncated)
		assert.LessOrEqual(t, len(f.Text), config.DefaultUserContextMaxChars)
		assert.True(t, strings.HasSuffix(f.Text, TruncationMarker))
	})

	t.Run("source error yields an empty block", func(t *testing.T) {
		f := NewLoader("", defaults(), fakeUser{err: errors.New("database is locked")}, nil).LoadUserContext(ctx)
		assert.True(t, f.Empty())
	})

	t.Run("no source", func(t *testing.T) {
		assert.True(t, NewLoader("", defaults(), nil, nil).LoadUserContext(ctx).Empty())
	})
}

func TestLoadEnvironment(t *testing.T) {
	ctx := context.Background()

	f := NewLoader("", defaults(), nil, fakeEnv{summary: "6 node types installed"}).LoadEnvironment(ctx)
	assert.Equal(t, "## Environment\n6 node types installed", f.Text)

	f = NewLoader("", defaults(), nil, fakeEnv{err: errors.New("connection refused")}).LoadEnvironment(ctx)
	assert.Equal(t, UnavailableEnvironment, f.Text)
	assert.True(t, f.Fallback)

	cfg := defaults()
	cfg.EnvironmentMaxChars = 100
	f = NewLoader("", cfg, nil, fakeEnv{summary: strings.Repeat("model.safetensors, ", 50)}).LoadEnvironment(ctx)
	assert.True(t, f.Truncated)
	assert.LessOrEqual(t, len(f.Text), 100)
}
