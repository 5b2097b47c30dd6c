package resourceindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestBuildAndResolveByFilename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "assets", "pic.png"))
	writeFile(t, filepath.Join(root, "notes", "a.md"))

	idx, err := Build(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	path, ok := idx.Resolve("pic.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "assets", "pic.png"), path)
}

func TestResolveVaultRelative(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "assets", "pic.png"))

	idx, err := Build(root, nil)
	require.NoError(t, err)

	path, ok := idx.Resolve("assets/pic.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "assets", "pic.png"), path)
}

func TestResolveExcalidrawFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "drawings", "sketch.excalidraw.md"))

	idx, err := Build(root, nil)
	require.NoError(t, err)

	path, ok := idx.Resolve("sketch.excalidraw")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "drawings", "sketch.excalidraw.md"), path)
}

func TestSkipsHiddenAndVendorDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".obsidian", "ignored.png"))
	writeFile(t, filepath.Join(root, "node_modules", "ignored2.png"))
	writeFile(t, filepath.Join(root, "kept.png"))

	idx, err := Build(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestExtensionFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"))
	writeFile(t, filepath.Join(root, "b.txt"))

	idx, err := Build(root, map[string]bool{"png": true})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
