// Package backup implements the backup/restore/clean surface (spec §12
// `restore`/`clean`): scanning `<file>.bak.<batchID>` snapshots left by
// internal/docsync's cloud-to-local overwrites, grouping them into
// batches by the shared BatchID suffix, and restoring or pruning them.
// Grounded on the original's restore.py.
package backup

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const marker = ".bak."

// File is one backed-up file within a Batch.
type File struct {
	BackupPath   string
	OriginalPath string
	RelPath      string
	Size         int64
}

// Batch groups every backup file written during one sync run, keyed by
// the BatchID docsync.Manager stamped into the ".bak.<id>" suffix.
type Batch struct {
	ID    string
	Time  time.Time
	Files []File
}

// ParseBackupTimestamp extracts the batch id and its parsed time from a
// "<name>.bak.<id>" filename. It supports the current "YYYYMMDD_HHMMSS"
// BatchID format and, for backward compatibility with any installation
// still carrying the original's Unix-epoch format, a bare digit string.
func ParseBackupTimestamp(name string) (string, time.Time, bool) {
	idx := strings.LastIndex(name, marker)
	if idx == -1 {
		return "", time.Time{}, false
	}
	id := name[idx+len(marker):]

	if len(id) == 15 && id[8] == '_' {
		if t, err := time.ParseInLocation("20060102_150405", id, time.Local); err == nil {
			return id, t, true
		}
	}
	if sec, err := strconv.ParseInt(id, 10, 64); err == nil {
		return id, time.Unix(sec, 0), true
	}
	return "", time.Time{}, false
}

// Scan walks targetPath (a file or directory) for "*.bak.*" snapshots
// and groups them into batches. When targetPath names a single file,
// only that file's own backups are considered, matching the original's
// target_file_name filter.
func Scan(targetPath string) (map[string]*Batch, error) {
	abs, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", targetPath)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", abs)
	}

	searchRoot := abs
	targetFileName := ""
	if !info.IsDir() {
		searchRoot = filepath.Dir(abs)
		targetFileName = filepath.Base(abs)
	}

	batches := make(map[string]*Batch)
	err = filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.Contains(name, marker) {
			return nil
		}
		if targetFileName != "" && !strings.HasPrefix(name, targetFileName+marker) {
			return nil
		}

		id, t, ok := ParseBackupTimestamp(name)
		if !ok {
			return nil
		}
		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}

		originalPath := path[:len(path)-len(marker)-len(id)]
		rel, relErr := filepath.Rel(searchRoot, originalPath)
		if relErr != nil {
			rel = filepath.Base(originalPath)
		}

		b, ok := batches[id]
		if !ok {
			b = &Batch{ID: id, Time: t}
			batches[id] = b
		}
		b.Files = append(b.Files, File{
			BackupPath:   path,
			OriginalPath: originalPath,
			RelPath:      rel,
			Size:         fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan backups under %s", searchRoot)
	}
	return batches, nil
}

// Sorted returns batches ordered newest-first, matching the
// git-log-style listing the original's print_batch_log produces.
func Sorted(batches map[string]*Batch) []*Batch {
	out := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out
}

// Restore copies every backup file in batch back over its original
// path, continuing past individual failures the way the original's
// restore_batch does, and reports how many files succeeded.
func Restore(batch *Batch) (succeeded int, failures []error) {
	for _, f := range batch.Files {
		if err := copyFile(f.BackupPath, f.OriginalPath); err != nil {
			failures = append(failures, errors.Wrapf(err, "restore %s", f.RelPath))
			continue
		}
		succeeded++
	}
	return succeeded, failures
}

// Clean deletes every "*.bak.*" snapshot under targetPath, the backing
// implementation for `vaultsync clean`.
func Clean(targetPath string) (removed int, err error) {
	batches, err := Scan(targetPath)
	if err != nil {
		return 0, err
	}
	for _, b := range batches {
		for _, f := range b.Files {
			if rmErr := os.Remove(f.BackupPath); rmErr != nil {
				return removed, errors.Wrapf(rmErr, "remove %s", f.BackupPath)
			}
			removed++
		}
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
