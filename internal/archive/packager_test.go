package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>")
	writeFile(t, dir, "css/style.css", "body{}")
	writeFile(t, dir, "js/app.js", "let x = 1")

	m, err := NewPackager("").Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, m.FileCount())
	assert.Equal(t, int64(len("<html>")+len("body{}")+len("let x = 1")), m.TotalSize)
	assert.Equal(t, "index.html", m.EntryPoint)

	paths := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"css/style.css", "index.html", "js/app.js"}, paths)
}

func TestScanEntryPointAtDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", "hi")
	writeFile(t, dir, "public/index.html", "<html>")

	m, err := NewPackager("").Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, "public/index.html", m.EntryPoint)
}

func TestScanEntryPointPrefersShallowest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "deep/nested/index.html", "a")
	writeFile(t, dir, "index.html", "b")

	m, err := NewPackager("").Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, "index.html", m.EntryPoint)
}

func TestScanNoEntryPoint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.css", "x")

	m, err := NewPackager("").Scan(dir)
	require.NoError(t, err)
	assert.Empty(t, m.EntryPoint)
}

func TestScanEmptyDirectory(t *testing.T) {
	m, err := NewPackager("").Scan(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, m.FileCount())
	assert.Equal(t, int64(0), m.TotalSize)
}

func TestScanSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "real.txt", "data")
	if err := os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	m, err := NewPackager("").Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, m.FileCount())
	assert.Equal(t, "real.txt", m.Entries[0].Path)
}

func TestScanRejectsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.txt", "x")

	_, err := NewPackager("").Scan(filepath.Join(dir, "f.txt"))
	assert.Error(t, err)
}

func TestPackRootsContentsAtArchiveRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>")
	writeFile(t, dir, "assets/logo.png", "png-bytes")

	p := NewPackager(t.TempDir())
	m, err := p.Scan(dir)
	require.NoError(t, err)

	artifact, err := p.Pack(context.Background(), dir, m)
	require.NoError(t, err)
	defer artifact.Remove()

	assert.Greater(t, artifact.Size, int64(0))

	f, err := artifact.Open()
	require.NoError(t, err)
	defer f.Close()

	got := map[string]string{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(content)
	}

	// Names are relative to the source root, not nested under its own
	// directory name.
	assert.Equal(t, map[string]string{
		"assets/logo.png": "png-bytes",
		"index.html":      "<html>",
	}, got)
}

func TestArtifactRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")

	p := NewPackager(t.TempDir())
	m, err := p.Scan(dir)
	require.NoError(t, err)
	artifact, err := p.Pack(context.Background(), dir, m)
	require.NoError(t, err)

	artifact.Remove()
	_, statErr := os.Stat(artifact.Path)
	assert.True(t, os.IsNotExist(statErr))

	// A second Remove must not panic or error.
	artifact.Remove()
}
