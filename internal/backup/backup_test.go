package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseBackupTimestampTimestampFormat(t *testing.T) {
	id, tm, ok := ParseBackupTimestamp("note.md.bak.20260115_093000")
	require.True(t, ok)
	require.Equal(t, "20260115_093000", id)
	require.Equal(t, 2026, tm.Year())
	require.Equal(t, time.Month(1), tm.Month())
	require.Equal(t, 15, tm.Day())
}

func TestParseBackupTimestampUnixFallback(t *testing.T) {
	id, tm, ok := ParseBackupTimestamp("note.md.bak.1700000000")
	require.True(t, ok)
	require.Equal(t, "1700000000", id)
	require.False(t, tm.IsZero())
}

func TestParseBackupTimestampRejectsNonBackupName(t *testing.T) {
	_, _, ok := ParseBackupTimestamp("note.md")
	require.False(t, ok)
}

func TestScanGroupsFilesByBatch(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.md"), "current a")
	write(t, filepath.Join(dir, "a.md.bak.20260101_100000"), "old a")
	write(t, filepath.Join(dir, "b.md"), "current b")
	write(t, filepath.Join(dir, "b.md.bak.20260101_100000"), "old b")
	write(t, filepath.Join(dir, "a.md.bak.20260102_100000"), "older a")

	batches, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Len(t, batches["20260101_100000"].Files, 2)
	require.Len(t, batches["20260102_100000"].Files, 1)
}

func TestScanSingleFileFiltersToThatFilesBackups(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.md"), "current a")
	write(t, filepath.Join(dir, "a.md.bak.20260101_100000"), "old a")
	write(t, filepath.Join(dir, "b.md.bak.20260101_100000"), "old b")

	batches, err := Scan(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches["20260101_100000"].Files, 1)
	require.Equal(t, "a.md", batches["20260101_100000"].Files[0].RelPath)
}

func TestSortedOrdersNewestFirst(t *testing.T) {
	batches := map[string]*Batch{
		"old": {ID: "old", Time: time.Unix(1, 0)},
		"new": {ID: "new", Time: time.Unix(2, 0)},
	}
	sorted := Sorted(batches)
	require.Len(t, sorted, 2)
	require.Equal(t, "new", sorted[0].ID)
	require.Equal(t, "old", sorted[1].ID)
}

func TestRestoreCopiesBackupOverOriginal(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "a.md")
	backupPath := filepath.Join(dir, "a.md.bak.20260101_100000")
	write(t, original, "current")
	write(t, backupPath, "restored content")

	batch := &Batch{ID: "20260101_100000", Files: []File{
		{BackupPath: backupPath, OriginalPath: original, RelPath: "a.md"},
	}}
	succeeded, failures := Restore(batch)
	require.Equal(t, 1, succeeded)
	require.Empty(t, failures)

	got, err := os.ReadFile(original)
	require.NoError(t, err)
	require.Equal(t, "restored content", string(got))
}

func TestCleanRemovesAllBackupFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.md"), "current")
	write(t, filepath.Join(dir, "a.md.bak.20260101_100000"), "old")

	removed, err := Clean(dir)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, statErr := os.Stat(filepath.Join(dir, "a.md.bak.20260101_100000"))
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "a.md"))
	require.NoError(t, statErr, "clean must not touch non-backup files")
}

func TestUnifiedDiffReportsChangedLines(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "a.md")
	backupPath := filepath.Join(dir, "a.md.bak.20260101_100000")
	write(t, original, "line one\nline two\n")
	write(t, backupPath, "line one\nline CHANGED\n")

	out, err := UnifiedDiff(File{BackupPath: backupPath, OriginalPath: original, RelPath: "a.md"})
	require.NoError(t, err)
	require.Contains(t, out, "line CHANGED")
	require.Contains(t, out, "line two")
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
