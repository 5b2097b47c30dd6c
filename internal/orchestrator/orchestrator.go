// Package orchestrator implements the Folder Sync Orchestrator (C8):
// it walks the local and remote trees together, produces a task list,
// runs tasks concurrently under a worker pool, and aggregates
// statistics (spec §4.8).
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/semaphore"

	"github.com/cedarlabs/vaultsync/internal/config"
	"github.com/cedarlabs/vaultsync/internal/docsync"
	"github.com/cedarlabs/vaultsync/internal/gateway"
	"github.com/cedarlabs/vaultsync/internal/markdown"
	"github.com/cedarlabs/vaultsync/internal/syncstate"
)

// TaskMetrics is the observability hook the orchestrator reports task
// outcomes through (internal/metrics.Registry implements it, the same
// capability-interface pattern as gateway.Metrics); a nil TaskMetrics
// is a no-op.
type TaskMetrics interface {
	ObserveTask(outcome string, d time.Duration)
}

// TaskKind distinguishes a document sync from a remote-only deletion.
type TaskKind int

const (
	TaskSync TaskKind = iota
	TaskDeleteCloud
)

// Task is one unit of work collected by the tree walk.
type Task struct {
	Kind TaskKind

	LocalPath string
	DocToken  string
	IsNew     bool

	// TaskDeleteCloud only:
	FileType  string
	StateKind syncstate.Kind
}

// Stats aggregates task outcomes across the whole run (spec §4.8).
type Stats struct {
	Created      int
	Updated      int
	DeletedCloud int
	Failed       int
}

// DefaultMaxWorkers is the worker-pool size used when Orchestrator.MaxWorkers
// is left at zero.
const DefaultMaxWorkers = 4

// Orchestrator drives one folder-level sync pass.
type Orchestrator struct {
	LocalRoot      string
	CloudRootToken string
	Force          bool
	Overwrite      bool
	VaultRoot      string
	Debug          bool
	BatchID        string
	MaxWorkers     int

	Client   *gateway.Client
	State    *syncstate.Store
	Config   config.Config
	Resolver markdown.ResourceResolver
	Metrics  TaskMetrics

	statsMu sync.Mutex
	stats   Stats
}

// skipLocalName mirrors spec §4.8's skip rules: hidden entries,
// attachment directories, and Obsidian-ecosystem-specific suffixes.
func skipLocalName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "assets", "attachments", "_attachments":
		return true
	}
	if strings.HasSuffix(name, ".excalidraw") || strings.HasSuffix(name, ".excalidraw.md") || strings.HasSuffix(name, ".canvas") {
		return true
	}
	return false
}

// Run collects every sync task under LocalRoot/CloudRootToken and
// executes them concurrently under a bounded worker pool.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	tasks, err := o.collectTasks(ctx, o.LocalRoot, o.CloudRootToken)
	if err != nil {
		return Stats{}, errors.Wrap(err, "collect sync tasks")
	}
	if len(tasks) == 0 {
		return Stats{}, nil
	}

	maxWorkers := o.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	sem := semaphore.NewWeighted(int64(maxWorkers))
	bar := progressbar.Default(int64(len(tasks)), "syncing")

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.executeTask(ctx, task)
			_ = bar.Add(1)
		}()
	}
	wg.Wait()

	return o.stats, nil
}

// collectTasks recursively merges the local directory tree with the
// remote folder listing (spec §4.8).
func (o *Orchestrator) collectTasks(ctx context.Context, localPath, cloudToken string) ([]Task, error) {
	var tasks []Task

	localItems, err := os.ReadDir(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", localPath)
	}

	cloudEntries, err := o.Client.ListFolder(ctx, cloudToken)
	if err != nil {
		return nil, errors.Wrapf(err, "list remote folder %s", cloudToken)
	}
	cloudByName := make(map[string]gateway.FolderEntry, len(cloudEntries))
	for _, e := range cloudEntries {
		cloudByName[e.Name] = e
	}
	usedTokens := make(map[string]bool)

	for _, item := range localItems {
		name := item.Name()
		if skipLocalName(name) {
			continue
		}
		itemPath := filepath.Join(localPath, name)

		if item.IsDir() {
			if entry, ok := cloudByName[name]; ok && entry.Type == "folder" {
				usedTokens[entry.Token] = true
				nested, err := o.collectTasks(ctx, itemPath, entry.Token)
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, nested...)
				continue
			}
			newToken, err := o.Client.CreateFolder(ctx, cloudToken, name)
			if err != nil {
				return nil, errors.Wrapf(err, "create remote folder %s", name)
			}
			nested, err := o.collectTasks(ctx, itemPath, newToken)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, nested...)
			continue
		}

		if !strings.HasSuffix(name, ".md") {
			continue
		}
		docName := strings.TrimSuffix(name, ".md")
		if entry, ok := cloudByName[docName]; ok && entry.Type == "docx" {
			usedTokens[entry.Token] = true
			tasks = append(tasks, Task{Kind: TaskSync, LocalPath: itemPath, DocToken: entry.Token})
			continue
		}

		newDoc, err := o.Client.CreateDocument(ctx, cloudToken, docName)
		if err != nil {
			return nil, errors.Wrapf(err, "create remote document %s", docName)
		}
		token := newDoc.DocumentID()
		tasks = append(tasks, Task{Kind: TaskSync, LocalPath: itemPath, DocToken: token, IsNew: true})
	}

	for name, entry := range cloudByName {
		if usedTokens[entry.Token] {
			continue
		}
		if o.Config.IsProtected(name) {
			continue
		}

		if known, ok := o.State.GetByToken(entry.Token); ok {
			rel, _ := o.State.PathForToken(entry.Token)
			tasks = append(tasks, Task{
				Kind:      TaskDeleteCloud,
				DocToken:  entry.Token,
				FileType:  entry.Type,
				LocalPath: filepath.Join(o.VaultRoot, filepath.FromSlash(rel)),
				StateKind: known.Kind,
			})
			continue
		}

		switch entry.Type {
		case "docx":
			tasks = append(tasks, Task{
				Kind:      TaskSync,
				LocalPath: filepath.Join(localPath, name+".md"),
				DocToken:  entry.Token,
			})
		case "folder":
			nestedLocal := filepath.Join(localPath, name)
			if _, err := os.Stat(nestedLocal); os.IsNotExist(err) {
				if err := os.MkdirAll(nestedLocal, 0o755); err != nil {
					return nil, errors.Wrapf(err, "create local dir %s", nestedLocal)
				}
			}
			nested, err := o.collectTasks(ctx, nestedLocal, entry.Token)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, nested...)
		}
	}

	return tasks, nil
}

// executeTask runs one task and folds its outcome into Stats.
func (o *Orchestrator) executeTask(ctx context.Context, task Task) {
	start := time.Now()

	switch task.Kind {
	case TaskDeleteCloud:
		if err := o.Client.DeleteFile(ctx, task.DocToken, task.FileType); err != nil {
			o.recordFailure()
			o.observeTask("failed", start)
			return
		}
		if task.StateKind == syncstate.KindFolder {
			_ = o.State.RemoveDirectory(task.LocalPath)
		} else {
			_ = o.State.RemoveByToken(task.DocToken)
		}
		o.statsMu.Lock()
		o.stats.DeletedCloud++
		o.statsMu.Unlock()
		o.observeTask("deleted_cloud", start)

	default:
		mgr := docsync.New(task.LocalPath, task.DocToken, o.Client, o.Resolver, o.BatchID)
		mgr.Force = o.Force || task.IsNew
		mgr.Overwrite = o.Overwrite
		mgr.VaultRoot = o.VaultRoot

		outcome, err := mgr.Run(ctx)
		if err != nil {
			o.recordFailure()
			o.observeTask("failed", start)
			return
		}

		var mtime int64
		if st, statErr := os.Stat(task.LocalPath); statErr == nil {
			mtime = st.ModTime().Unix()
		}
		_ = o.State.Update(task.LocalPath, task.DocToken, syncstate.KindDocument, mtime)

		o.statsMu.Lock()
		if task.IsNew || outcome == docsync.OutcomeDownloaded {
			o.stats.Created++
		} else {
			o.stats.Updated++
		}
		o.statsMu.Unlock()

		if task.IsNew || outcome == docsync.OutcomeDownloaded {
			o.observeTask("created", start)
		} else {
			o.observeTask("updated", start)
		}
	}
}

func (o *Orchestrator) observeTask(outcome string, start time.Time) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.ObserveTask(outcome, time.Since(start))
}

func (o *Orchestrator) recordFailure() {
	o.statsMu.Lock()
	o.stats.Failed++
	o.statsMu.Unlock()
}
