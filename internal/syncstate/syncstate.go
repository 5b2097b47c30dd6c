// Package syncstate implements the Sync-State Store (C6): a persistent
// path <-> remote-token map used to distinguish "deleted on one side"
// from "new on the other side" during a folder sync pass.
package syncstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Kind is the entity a state entry tracks.
type Kind string

const (
	KindDocument Kind = "document"
	KindFolder   Kind = "folder"
)

// Entry is one Sync-State record (spec §3).
type Entry struct {
	RemoteToken   string `json:"remote_token"`
	Kind          Kind   `json:"kind"`
	LastSyncMtime int64  `json:"last_sync_mtime"`
}

const fileName = ".doc_sync_state.json"

// Store is the in-memory, disk-backed state map, keyed by
// vault-root-relative path, with a reverse remote_token -> path index.
// It is written atomically on every mutation (spec §3 "Lifecycle").
type Store struct {
	root string
	path string

	mu        sync.Mutex
	byPath    map[string]Entry
	byToken   map[string]string // remote_token -> relative_path
}

// Open loads (or initializes) the state store rooted at vaultRoot.
func Open(vaultRoot string) (*Store, error) {
	abs, err := filepath.Abs(vaultRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve vault root %s", vaultRoot)
	}
	s := &Store{
		root:    abs,
		path:    filepath.Join(abs, fileName),
		byPath:  make(map[string]Entry),
		byToken: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read sync state %s", s.path)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.byPath); err != nil {
		// A corrupt state file is non-fatal (spec design note): start
		// fresh rather than blocking the whole sync run on it.
		s.byPath = make(map[string]Entry)
		return nil
	}
	for path, e := range s.byPath {
		if e.RemoteToken != "" {
			s.byToken[e.RemoteToken] = path
		}
	}
	return nil
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.byPath, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal sync state")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrapf(err, "write temp sync state %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, s.path), "rename sync state into place %s", s.path)
}

func (s *Store) relativize(absPath string) string {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

// Update records or overwrites the entry for absPath.
func (s *Store) Update(absPath, token string, kind Kind, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel := s.relativize(absPath)
	if old, ok := s.byPath[rel]; ok && old.RemoteToken != "" {
		delete(s.byToken, old.RemoteToken)
	}
	s.byPath[rel] = Entry{RemoteToken: token, Kind: kind, LastSyncMtime: mtime}
	if token != "" {
		s.byToken[token] = rel
	}
	return s.save()
}

// Remove deletes the entry for absPath, if any.
func (s *Store) Remove(absPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel := s.relativize(absPath)
	e, ok := s.byPath[rel]
	if !ok {
		return nil
	}
	delete(s.byPath, rel)
	if e.RemoteToken != "" {
		delete(s.byToken, e.RemoteToken)
	}
	return s.save()
}

// RemoveByToken deletes the entry whose remote token is token.
func (s *Store) RemoveByToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.byToken[token]
	if !ok {
		return nil
	}
	delete(s.byPath, rel)
	delete(s.byToken, token)
	return s.save()
}

// RemoveDirectory deletes every entry whose relative path is absDir or
// nested under it, used when a local folder is deleted wholesale.
func (s *Store) RemoveDirectory(absDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := s.relativize(absDir)
	changed := false
	for rel, e := range s.byPath {
		if rel != prefix && !hasPathPrefix(rel, prefix) {
			continue
		}
		delete(s.byPath, rel)
		if e.RemoteToken != "" {
			delete(s.byToken, e.RemoteToken)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return s.save()
}

func hasPathPrefix(rel, prefix string) bool {
	return len(rel) > len(prefix) && rel[:len(prefix)] == prefix && rel[len(prefix)] == filepath.Separator
}

// GetByPath returns the entry for absPath, if any.
func (s *Store) GetByPath(absPath string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byPath[s.relativize(absPath)]
	return e, ok
}

// GetByToken returns the entry whose remote token is token, if any.
func (s *Store) GetByToken(token string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.byToken[token]
	if !ok {
		return Entry{}, false
	}
	e, ok := s.byPath[rel]
	return e, ok
}

// PathForToken returns the vault-root-relative path stored for token,
// if any -- callers that need to act on the path itself (e.g.
// RemoveDirectory after a folder-token deletion) use this alongside
// GetByToken.
func (s *Store) PathForToken(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.byToken[token]
	return rel, ok
}
