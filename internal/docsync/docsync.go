// Package docsync implements the Document Sync Manager (C7): the
// single-document lifecycle that decides sync direction from mtimes,
// drives the Markdown converter and tree-diff reconciler, and backs up
// the local file before any cloud-to-local overwrite.
package docsync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cedarlabs/vaultsync/internal/block"
	"github.com/cedarlabs/vaultsync/internal/diff"
	"github.com/cedarlabs/vaultsync/internal/gateway"
	"github.com/cedarlabs/vaultsync/internal/markdown"
)

// Outcome reports what a Run actually did, for the orchestrator's
// statistics aggregation (spec §4.8).
type Outcome int

const (
	OutcomeUploaded Outcome = iota
	OutcomeDownloaded
	OutcomeUnchanged
)

// Manager drives one local file <-> remote document pairing through a
// full sync pass (spec §4.7).
type Manager struct {
	LocalPath string
	DocToken  string
	Force     bool
	Overwrite bool
	VaultRoot string
	BatchID   string

	Client   *gateway.Client
	Resolver markdown.ResourceResolver
	DiffCfg  diff.Config
}

// New constructs a Manager with the package defaults (diff threshold
// per spec §4.5, batch id defaulted by the caller since Date.Now-style
// wall-clock calls are a caller concern here, not this package's).
func New(localPath, docToken string, client *gateway.Client, resolver markdown.ResourceResolver, batchID string) *Manager {
	vaultRoot := filepath.Dir(localPath)
	return &Manager{
		LocalPath: localPath,
		DocToken:  docToken,
		VaultRoot: vaultRoot,
		BatchID:   batchID,
		Client:    client,
		Resolver:  resolver,
		DiffCfg:   diff.DefaultConfig(),
	}
}

// Run executes the full single-document lifecycle (spec §4.7).
func (m *Manager) Run(ctx context.Context) (Outcome, error) {
	info, err := m.Client.GetFileInfo(ctx, m.DocToken)
	if err != nil {
		return OutcomeUnchanged, errors.Wrapf(err, "get file info %s", m.DocToken)
	}
	if info != nil && info.DocType == "folder" {
		return OutcomeUnchanged, errors.Errorf("token %s is a folder, not a document", m.DocToken)
	}

	localExists := fileExists(m.LocalPath)
	var localMtime int64
	if localExists {
		localMtime, err = mtime(m.LocalPath)
		if err != nil {
			return OutcomeUnchanged, errors.Wrapf(err, "stat %s", m.LocalPath)
		}
	}

	shouldUpload := true
	if info != nil && localExists && !m.Force {
		remoteMtime := gateway.ParseCloudTime(info.LatestModifyTime)
		if remoteMtime > localMtime {
			shouldUpload = false
		}
	}
	if !localExists {
		// No local copy: this is the "remote-new pull" scenario (spec §8
		// scenario 6) -- the orchestrator points us at a not-yet-existing
		// local path and expects a download.
		shouldUpload = false
	}

	if !shouldUpload {
		if err := m.downloadToLocal(ctx); err != nil {
			return OutcomeUnchanged, errors.Wrap(err, "sync cloud to local")
		}
		return OutcomeDownloaded, nil
	}

	changed, err := m.uploadToCloud(ctx)
	if err != nil {
		return OutcomeUnchanged, errors.Wrap(err, "sync local to cloud")
	}
	if !changed {
		return OutcomeUnchanged, nil
	}
	return OutcomeUploaded, nil
}

func (m *Manager) uploadToCloud(ctx context.Context) (bool, error) {
	src, err := os.ReadFile(m.LocalPath)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", m.LocalPath)
	}

	local := markdown.Parse(string(src), m.Resolver)
	if err := m.resolveAssets(ctx, local); err != nil {
		return false, errors.Wrap(err, "resolve local assets")
	}

	doc := m.Client.Open(m.DocToken)
	remote, err := doc.ListBlockChildren(ctx)
	if err != nil {
		return false, errors.Wrap(err, "list remote blocks")
	}

	if m.Overwrite {
		if err := doc.ClearDocument(ctx); err != nil {
			return false, errors.Wrap(err, "clear document")
		}
		if err := doc.AddBlocks(ctx, 0, local); err != nil {
			return false, errors.Wrap(err, "add blocks")
		}
		return true, nil
	}

	before := block.HashAll(remote)
	if err := diff.Reconcile(ctx, m.DiffCfg, remote, local, doc); err != nil {
		return false, errors.Wrap(err, "reconcile")
	}
	after := block.HashAll(local)
	return !equalHashes(before, after), nil
}

// resolveAssets walks freshly parsed local blocks and uploads any
// Image/File block still carrying a local-path placeholder (Resolved
// == false, per the §9 design note distinguishing unresolved assets
// from already-uploaded remote tokens).
func (m *Manager) resolveAssets(ctx context.Context, blocks []*block.Block) error {
	for _, b := range blocks {
		if (b.Type == block.TypeImage || b.Type == block.TypeFile) && !b.Resolved && b.AssetToken != "" {
			token, err := m.Client.UploadAsset(ctx, b.AssetToken, m.DocToken)
			if err != nil {
				return errors.Wrapf(err, "upload asset %s", b.AssetToken)
			}
			b.AssetToken = token
			b.Resolved = true
		}
		if len(b.Children) > 0 {
			if err := m.resolveAssets(ctx, b.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) downloadToLocal(ctx context.Context) error {
	doc := m.Client.Open(m.DocToken)
	blocks, err := doc.ListBlockChildren(ctx)
	if err != nil {
		return errors.Wrap(err, "list remote blocks")
	}

	attachmentDir, attachmentRel := m.attachmentFolder()
	if err := os.MkdirAll(attachmentDir, 0o755); err != nil {
		return errors.Wrapf(err, "create attachment dir %s", attachmentDir)
	}

	downloader := &assetDownloader{ctx: ctx, client: m.Client, dir: attachmentDir, rel: attachmentRel}
	content := markdown.Emit(blocks, downloader)

	if fileExists(m.LocalPath) {
		bak := m.LocalPath + ".bak." + m.BatchID
		if err := copyFile(m.LocalPath, bak); err != nil {
			return errors.Wrapf(err, "back up %s", m.LocalPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(m.LocalPath), 0o755); err != nil {
		return errors.Wrapf(err, "create parent dir for %s", m.LocalPath)
	}
	return errors.Wrapf(os.WriteFile(m.LocalPath, []byte(content), 0o644), "write %s", m.LocalPath)
}

// assetDownloader implements markdown.Downloader by fetching a remote
// asset once per document download and returning a vault-relative path
// Obsidian can resolve.
type assetDownloader struct {
	ctx    context.Context
	client *gateway.Client
	dir    string
	rel    string
}

func (d *assetDownloader) Download(token string) (string, bool) {
	dest := filepath.Join(d.dir, token+".png")
	if err := d.client.DownloadAsset(d.ctx, token, dest); err != nil {
		return "", false
	}
	return d.rel + "/" + token + ".png", true
}

// attachmentFolder reads Obsidian's configured attachment folder from
// .obsidian/app.json, falling back to "attachments" when absent.
func (m *Manager) attachmentFolder() (abs string, rel string) {
	rel = "attachments"
	configPath := filepath.Join(m.VaultRoot, ".obsidian", "app.json")
	if raw, err := os.ReadFile(configPath); err == nil {
		var cfg struct {
			AttachmentFolderPath string `json:"attachmentFolderPath"`
		}
		if json.Unmarshal(raw, &cfg) == nil && cfg.AttachmentFolderPath != "" {
			rel = cfg.AttachmentFolderPath
		}
	}
	return filepath.Join(m.VaultRoot, rel), rel
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mtime(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.ModTime().Unix(), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func equalHashes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DumpRemoteTree pulls the document's block tree and renders it as an
// indented debug dump (spec §12, `--debug-dump`), grounded on the
// original's verify_cloud_structure.
func DumpRemoteTree(ctx context.Context, client *gateway.Client, docToken string) (string, error) {
	doc := client.Open(docToken)
	blocks, err := doc.ListBlockChildren(ctx)
	if err != nil {
		return "", errors.Wrap(err, "list remote blocks")
	}
	var out []byte
	var walk func(bs []*block.Block, depth int)
	walk = func(bs []*block.Block, depth int) {
		for _, b := range bs {
			indent := ""
			for i := 0; i < depth; i++ {
				indent += "  "
			}
			out = append(out, []byte(indent+"- ["+typeLabel(b)+"] "+textSummary(b)+"\n")...)
			walk(b.Children, depth+1)
		}
	}
	walk(blocks, 0)
	return string(out), nil
}

func typeLabel(b *block.Block) string {
	return markdown.DebugTypeName(b.Type)
}

func textSummary(b *block.Block) string {
	var s string
	for _, e := range b.Elements {
		if e.Kind == block.ElementTextRun {
			s += e.Content
		}
	}
	if s == "" && (b.Type == block.TypeImage || b.Type == block.TypeFile) {
		s = b.AssetToken
	}
	return s
}
