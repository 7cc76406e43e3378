package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gerrxt07/niva/internal/fsutil"
	"github.com/gerrxt07/niva/internal/types"
)

// Installer stages a validated release tree and swaps it into the installation.
type Installer struct {
	installRoot string
	stagingDir  string
	required    []RequiredEntry
}

// NewInstaller creates an installer for installRoot that stages into its
// update_staging directory.
func NewInstaller(installRoot string, required []RequiredEntry) *Installer {
	return &Installer{
		installRoot: installRoot,
		stagingDir:  filepath.Join(installRoot, types.StagingDirName),
		required:    required,
	}
}

// StagingDir returns the staging directory path.
func (i *Installer) StagingDir() string {
	return i.stagingDir
}

// StageAndSwap copies extractedRoot into a clean staging directory,
// re-validates the staged copy, then replaces each top-level entry of the
// installation with its staged counterpart.
//
// The swap is atomic per entry only: an interruption mid-loop can leave a mix
// of old and new entries, which the caller repairs by restoring a backup.
func (i *Installer) StageAndSwap(ctx context.Context, extractedRoot string) error {
	// 1. Prepare staging area
	if err := os.RemoveAll(i.stagingDir); err != nil {
		return newError(KindFilesystem, "clearing staging directory", err)
	}
	if err := fsutil.CopyTree(ctx, extractedRoot, i.stagingDir, nil); err != nil {
		return i.classify(ctx, "staging release", err)
	}

	// 2. Validate staged files
	if err := ValidateStructure(i.stagingDir, i.required); err != nil {
		return newError(KindStructure, "validating staged release", err)
	}

	entries, err := os.ReadDir(i.stagingDir)
	if err != nil {
		return newError(KindFilesystem, "reading staging directory", err)
	}

	// 3. Replace current installation
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return newError(KindCancelled, "installing release", err)
		}

		name := entry.Name()
		if types.IsProtected(name) {
			continue
		}

		src := filepath.Join(i.stagingDir, name)
		dst := filepath.Join(i.installRoot, name)

		if err := os.RemoveAll(dst); err != nil {
			return newError(KindFilesystem, "removing "+name, err)
		}
		if err := moveEntry(ctx, src, dst); err != nil {
			return i.classify(ctx, "installing "+name, err)
		}
	}

	return nil
}

// classify tags err as a cancellation when ctx is done, otherwise as a
// filesystem failure.
func (i *Installer) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return newError(KindCancelled, op, err)
	}
	return newError(KindFilesystem, op, err)
}

// moveEntry renames src to dst, copying when they are on different devices.
func moveEntry(ctx context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := fsutil.CopyEntry(ctx, src, dst); err != nil {
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	return nil
}
