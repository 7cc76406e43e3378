package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gerrxt07/niva/internal/fsutil"
	"github.com/gerrxt07/niva/internal/types"
)

// ErrNoBackup indicates there is no snapshot to restore from.
var ErrNoBackup = errors.New("no backup available")

// Restore replaces the installation tree with the contents of backupPath.
// Every top-level entry of the installation root except the protected set
// (backups root, transient update directories, version-control metadata) is
// removed first, then the snapshot is copied back over it.
//
// Restore returns an error wrapping ErrNoBackup when backupPath is empty or
// does not exist; in that case the installation is left untouched.
func (m *Manager) Restore(ctx context.Context, backupPath string) error {
	if backupPath == "" {
		return ErrNoBackup
	}

	info, err := os.Stat(backupPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoBackup, backupPath)
	}

	if err := fsutil.ClearDir(m.installRoot, m.keepOnRestore); err != nil {
		return fmt.Errorf("failed to clear installation: %w", err)
	}

	if err := fsutil.CopyTree(ctx, backupPath, m.installRoot, nil); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}

	return nil
}

// keepOnRestore reports whether a top-level entry survives a restore.
func (m *Manager) keepOnRestore(name string) bool {
	if types.IsProtected(name) {
		return true
	}
	rel, err := filepath.Rel(m.installRoot, m.backupDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return strings.SplitN(filepath.ToSlash(rel), "/", 2)[0] == name
}
