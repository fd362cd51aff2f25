package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EntryPointName is the file that, when present anywhere under the
// source directory, is advertised as the collection's entry point.
const EntryPointName = "index.html"

// ErrPack indicates the packed artifact could not be produced. Packing
// failures are fatal to the upload, unlike per-file scan errors which
// only omit the affected entry.
var ErrPack = errors.New("packing failed")

// Entry is one regular file found under the scanned directory.
type Entry struct {
	Path string `json:"path"` // relative to the scanned root, slash-separated
	Size int64  `json:"size"`
}

// Manifest describes the content of a directory before any packing work
// happens, so a caller can show file count and total size up front.
type Manifest struct {
	Entries    []Entry
	TotalSize  int64
	EntryPoint string // relative path of the entry point file, empty if none
}

// FileCount returns the number of regular files in the manifest.
func (m *Manifest) FileCount() int {
	return len(m.Entries)
}

// Artifact is a packed byte stream written to a temporary file. The
// owner must call Remove on every exit path; Remove is safe to call
// more than once.
type Artifact struct {
	Path string
	Size int64

	once sync.Once
}

// Open returns a reader over the packed bytes.
func (a *Artifact) Open() (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Remove deletes the temporary artifact file.
func (a *Artifact) Remove() {
	a.once.Do(func() {
		_ = os.Remove(a.Path)
	})
}

// Packager converts a directory tree into a single packed byte stream
// suitable for a collection upload.
type Packager struct {
	tempDir string
}

// NewPackager creates a packager that writes artifacts under tempDir,
// or the system temp directory when tempDir is empty.
func NewPackager(tempDir string) *Packager {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Packager{tempDir: tempDir}
}

// Scan walks dir and returns its manifest: every readable regular file
// with path relative to dir, the summed size, and the detected entry
// point. Symlinks, special files and unreadable files are skipped
// silently. When several entry point candidates exist the shallowest
// one wins, then lexical order.
func (p *Packager) Scan(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	m := &Manifest{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are omitted, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		m.Entries = append(m.Entries, Entry{Path: rel, Size: fi.Size()})
		m.TotalSize += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
	m.EntryPoint = findEntryPoint(m.Entries)
	return m, nil
}

// Pack writes all regular files under dir into a tar artifact. Contents
// are rooted at the archive root rather than nested under the source
// directory's own name, so entry point resolution by relative path
// works downstream. Files that disappear or become unreadable between
// scan and pack are skipped silently.
func (p *Packager) Pack(ctx context.Context, dir string, m *Manifest) (*Artifact, error) {
	artifact := &Artifact{
		Path: filepath.Join(p.tempDir, "porter-"+uuid.NewString()+".tar"),
	}

	out, err := os.Create(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrPack, artifact.Path, err)
	}

	tw := tar.NewWriter(out)
	for _, entry := range m.Entries {
		if err := ctx.Err(); err != nil {
			out.Close()
			artifact.Remove()
			return nil, fmt.Errorf("%w: %v", ErrPack, err)
		}
		if err := addFile(tw, dir, entry.Path); err != nil {
			out.Close()
			artifact.Remove()
			return nil, fmt.Errorf("%w: %s: %v", ErrPack, entry.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		out.Close()
		artifact.Remove()
		return nil, fmt.Errorf("%w: %v", ErrPack, err)
	}
	if err := out.Close(); err != nil {
		artifact.Remove()
		return nil, fmt.Errorf("%w: %v", ErrPack, err)
	}

	fi, err := os.Stat(artifact.Path)
	if err != nil {
		artifact.Remove()
		return nil, fmt.Errorf("%w: %v", ErrPack, err)
	}
	artifact.Size = fi.Size()
	return artifact, nil
}

func addFile(tw *tar.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		// Vanished or unreadable since the scan: omit the entry.
		return nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return nil
	}

	hdr := &tar.Header{
		Name:    rel,
		Mode:    0o644,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.CopyN(tw, f, fi.Size()); err != nil {
		return err
	}
	return nil
}

func findEntryPoint(entries []Entry) string {
	best := ""
	bestDepth := -1
	for _, e := range entries {
		if filepath.Base(e.Path) != EntryPointName {
			continue
		}
		depth := strings.Count(e.Path, "/")
		if bestDepth == -1 || depth < bestDepth || (depth == bestDepth && e.Path < best) {
			best = e.Path
			bestDepth = depth
		}
	}
	return best
}
