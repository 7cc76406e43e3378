package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// ClearDir removes every entry directly under root for which keep returns
// false. All removals are attempted; failures are collected and returned
// together.
func ClearDir(root string, keep func(name string) bool) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", root, err)
	}

	var merr *multierror.Error
	for _, entry := range entries {
		if keep != nil && keep(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("failed to remove %s: %w", entry.Name(), err))
		}
	}

	return merr.ErrorOrNil()
}

// RemovePaths removes each path recursively. Missing paths are not an error.
func RemovePaths(paths ...string) error {
	var merr *multierror.Error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("failed to remove %s: %w", p, err))
		}
	}
	return merr.ErrorOrNil()
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
