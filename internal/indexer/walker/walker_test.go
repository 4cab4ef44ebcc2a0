package walker

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func collect(w *Walker) []string {
	var out []string
	for {
		path, ok := w.Next()
		if !ok {
			return out
		}
		out = append(out, path)
	}
}

func TestWalkDepthFirst(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":     "a",
		"b/c.txt":   "c",
		"b/d/e.txt": "e",
		"f/g.txt":   "g",
		"z.txt":     "z",
	})

	w := New(root, Filter{})
	got := collect(w)
	require.NoError(t, w.Err())
	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "z.txt"),
		filepath.Join(root, "b", "c.txt"),
		filepath.Join(root, "b", "d", "e.txt"),
		filepath.Join(root, "f", "g.txt"),
	}, got)

	_, ok := w.Next()
	assert.False(t, ok, "walker is single use")
}

func TestExcludePrunesSubtrees(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep/a.txt":          "a",
		"node_modules/x/b.js": "b",
		"keep/skip.log":       "c",
	})

	f, err := NewFilter("", `node_modules|\.log$`)
	require.NoError(t, err)
	got := collect(New(root, f))
	assert.Equal(t, []string{filepath.Join(root, "keep", "a.txt")}, got)
}

func TestIncludeAppliesToFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.go":   "package main",
		"src/README.md": "docs",
		"top.go":        "package top",
	})

	f, err := NewFilter(`\.go$`, "")
	require.NoError(t, err)
	got := collect(New(root, f))
	assert.Equal(t, []string{
		filepath.Join(root, "top.go"),
		filepath.Join(root, "src", "main.go"),
	}, got)
}

func TestExcludeWinsOverInclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"gen/out.go": "x", "main.go": "y"})

	f, err := NewFilter(`\.go$`, `/gen/`)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "main.go")}, collect(New(root, f)))
}

func TestMissingRootFails(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), Filter{})
	assert.Empty(t, collect(w))
	assert.Error(t, w.Err())
}

func TestRootFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"only.txt": "x"})
	path := filepath.Join(root, "only.txt")

	w := New(path, Filter{})
	assert.Equal(t, []string{path}, collect(w))
	assert.NoError(t, w.Err())
}

func TestUnreadableSubdirectoryIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"ok.txt": "x", "locked/hidden.txt": "y"})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	w := New(root, Filter{})
	assert.Equal(t, []string{filepath.Join(root, "ok.txt")}, collect(w))
	assert.NoError(t, w.Err())
	assert.Equal(t, 1, w.Skipped())
}

func TestInvalidPattern(t *testing.T) {
	_, err := NewFilter("(", "")
	assert.Error(t, err)
	_, err = NewFilter("", "[")
	assert.Error(t, err)
}
