package backup

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a unified diff between a backup snapshot and its
// current file, the Go equivalent of the original's
// difflib.unified_diff-based show_diff.
func UnifiedDiff(f File) (string, error) {
	backupData, err := os.ReadFile(f.BackupPath)
	if err != nil {
		return "", errors.Wrapf(err, "read backup %s", f.BackupPath)
	}
	currentData, err := os.ReadFile(f.OriginalPath)
	if err != nil {
		return "", errors.Wrapf(err, "read current %s", f.OriginalPath)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(backupData)),
		B:        difflib.SplitLines(string(currentData)),
		FromFile: "backup: " + f.BackupPath,
		ToFile:   "current: " + f.OriginalPath,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
