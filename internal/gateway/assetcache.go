package gateway

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// AssetCache maps a local file's content hash to the remote asset
// token it uploaded to, persisted at a user-home location (spec §3
// "Asset cache record"). Entries are append-only; staleness is
// tolerated because the remote service deduplicates by content (spec
// §4.1).
type AssetCache struct {
	path string
	mu   sync.Mutex
	data map[string]string // content_sha256 -> remote_asset_token
}

// LoadAssetCache reads path if it exists, or starts empty. An empty
// path keeps the cache in-memory only (used by tests).
func LoadAssetCache(path string) (*AssetCache, error) {
	c := &AssetCache{path: path, data: make(map[string]string)}
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read asset cache %s", path)
	}
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, errors.Wrapf(err, "parse asset cache %s", path)
	}
	return c, nil
}

// Lookup returns the cached remote token for a content hash, if any.
func (c *AssetCache) Lookup(hash string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.data[hash]
	return token, ok
}

// Store records hash -> token and persists the cache. Concurrent
// uploads of the same content are allowed to race (spec §4.1): the
// last writer simply overwrites the entry, which is harmless since the
// remote service already deduplicated by content server-side.
func (c *AssetCache) Store(hash, token string) error {
	c.mu.Lock()
	c.data[hash] = token
	snapshot := make(map[string]string, len(c.data))
	for k, v := range c.data {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal asset cache")
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "create asset cache dir %s", dir)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrapf(err, "write temp asset cache %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, c.path), "rename asset cache into place %s", c.path)
}

// hashFile computes the SHA-256 content hash of localPath, the key the
// dedup cache and the upload pipeline share.
func hashFile(localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "open asset %s", localPath)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hash asset %s", localPath)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
