// Package resourceindex implements the Resource Index (C2): a one-shot
// recursive scan of the vault keyed by bare filename, giving O(1)
// lookup instead of re-walking the tree for every reference the
// Markdown parser resolves.
package resourceindex

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var skipDirNames = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
}

// Index is a filename -> first-seen-path map built once per vault.
type Index struct {
	vaultRoot  string
	extensions map[string]bool // nil means "index everything"
	byName     map[string]string
}

// Build walks vaultRoot and indexes every file whose extension is in
// extensions (nil indexes all files), skipping hidden directories and
// the usual non-asset directories. Only the first occurrence of a
// given filename is kept, mirroring Obsidian's shortest-path resolution.
func Build(vaultRoot string, extensions map[string]bool) (*Index, error) {
	abs, err := filepath.Abs(vaultRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve vault root %s", vaultRoot)
	}
	idx := &Index{vaultRoot: abs, extensions: extensions, byName: make(map[string]string)}

	err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != abs && (strings.HasPrefix(name, ".") || skipDirNames[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.shouldIndex(name) {
			return nil
		}
		if _, seen := idx.byName[name]; !seen {
			idx.byName[name] = path
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan vault %s", abs)
	}
	return idx, nil
}

func (idx *Index) shouldIndex(filename string) bool {
	if idx.extensions == nil {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return idx.extensions[ext]
}

// Len reports the number of indexed files.
func (idx *Index) Len() int { return len(idx.byName) }

// Resolve implements markdown.ResourceResolver: it finds ref's local
// path by, in order, treating it as an absolute path, a vault-relative
// path, a bare filename lookup, and (for Obsidian's Excalidraw plugin)
// the ".excalidraw.md" sibling of a ".excalidraw" reference.
func (idx *Index) Resolve(ref string) (string, bool) {
	if decoded, err := url.QueryUnescape(ref); err == nil {
		ref = decoded
	}

	if filepath.IsAbs(ref) {
		if fileExists(ref) {
			return ref, true
		}
	}

	relative := filepath.Join(idx.vaultRoot, ref)
	if fileExists(relative) {
		return relative, true
	}

	filename := filepath.Base(ref)
	if path, ok := idx.byName[filename]; ok {
		return path, true
	}

	if strings.HasSuffix(filename, ".excalidraw") {
		if path, ok := idx.byName[filename+".md"]; ok {
			return path, true
		}
	}

	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
