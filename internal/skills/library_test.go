package skills

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/watcher"
)

const sdxlDoc = `---
id: sdxl
name: SDXL base
description: Resolution and sampler guidance for SDXL 1.0
models: ["sd_xl_*"]
tags: [checkpoint, sdxl]
---
# SDXL

Use 1024x1024 and 25-30 steps with dpmpp_2m karras.
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	t.Run("front matter", func(t *testing.T) {
		sk, err := Parse("sdxl.md", []byte(sdxlDoc))
		require.NoError(t, err)
		assert.Equal(t, "sdxl", sk.ID)
		assert.Equal(t, "SDXL base", sk.Name)
		assert.Equal(t, []string{"checkpoint", "sdxl"}, sk.Tags)
		assert.Contains(t, sk.Body, "1024x1024")
		assert.NotContains(t, sk.Body, "models:")
	})

	t.Run("plain markdown", func(t *testing.T) {
		sk, err := Parse("dir/flux-dev.md", []byte("# Flux Dev\n\nUse cfg 1.0."))
		require.NoError(t, err)
		assert.Equal(t, "flux-dev", sk.ID)
		assert.Equal(t, "Flux Dev", sk.Name)
	})

	t.Run("unterminated", func(t *testing.T) {
		_, err := Parse("bad.md", []byte("---\nid: x\nno end"))
		assert.Error(t, err)
	})
}

func TestLibrary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sdxl.md"), sdxlDoc)
	writeFile(t, filepath.Join(dir, "video", "wan.md"), "# Wan 2.1\nVideo model.")
	writeFile(t, filepath.Join(dir, "broken.md"), "---\nid: [unclosed\n---\nbody")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	lib := NewLibrary(dir)
	require.NoError(t, lib.Load())
	assert.Equal(t, 2, lib.Len())

	list := lib.List()
	require.Len(t, list, 2)
	assert.Equal(t, "sdxl", list[0].ID)
	assert.Empty(t, list[0].Body)

	sk, err := lib.Get("sd_xl_base_1.0.safetensors")
	require.NoError(t, err)
	assert.Equal(t, "sdxl", sk.ID)
	assert.NotEmpty(t, sk.Body)

	_, err = lib.Get("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryMissingDir(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, lib.Load())
	assert.Equal(t, 0, lib.Len())
	assert.Error(t, lib.Watch(watcher.DefaultConfig()))
}

func TestLibraryHotReload(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)
	require.NoError(t, lib.Load())
	require.NoError(t, lib.Watch(watcher.Config{Debounce: 50 * time.Millisecond}))
	defer lib.Close()

	writeFile(t, filepath.Join(dir, "sdxl.md"), sdxlDoc)
	require.Eventually(t, func() bool {
		_, err := lib.Get("sdxl")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}
