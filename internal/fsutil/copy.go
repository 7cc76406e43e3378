package fsutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"
)

// treeEntry is one path discovered while walking a source tree.
type treeEntry struct {
	rel  string
	mode fs.FileMode
}

// treeListing is the result of walking a source tree. The walk callback runs
// concurrently, so appends are guarded by mu.
type treeListing struct {
	mu    sync.Mutex
	dirs  []treeEntry
	files []treeEntry
	links []treeEntry
}

// CopyTree recursively copies the contents of src into dst, creating dst if
// needed. Paths matched by exclude are skipped (directories are not
// descended). Existing files in dst are overwritten; file modes and
// modification times are preserved and symlinks are recreated as links.
//
// Directories are created before any file is written; regular files are then
// copied concurrently. The copy stops at the first error or when ctx is done.
func CopyTree(ctx context.Context, src, dst string, exclude *Matcher) error {
	src = filepath.Clean(src)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	listing, err := walkTree(src, exclude)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	// Parents sort before children.
	sort.Slice(listing.dirs, func(i, j int) bool { return listing.dirs[i].rel < listing.dirs[j].rel })
	for _, d := range listing.dirs {
		if err := os.MkdirAll(filepath.Join(dst, d.rel), d.mode.Perm()|0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d.rel, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range listing.files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return copyFile(filepath.Join(src, f.rel), filepath.Join(dst, f.rel), f.mode)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, l := range listing.links {
		if err := copySymlink(filepath.Join(src, l.rel), filepath.Join(dst, l.rel)); err != nil {
			return err
		}
	}

	// Directory permissions last, so read-only directories can still be filled.
	for i := len(listing.dirs) - 1; i >= 0; i-- {
		d := listing.dirs[i]
		_ = os.Chmod(filepath.Join(dst, d.rel), d.mode.Perm())
	}

	return ctx.Err()
}

// walkTree lists src using a concurrent walker.
func walkTree(src string, exclude *Matcher) (*treeListing, error) {
	listing := &treeListing{}
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if exclude.Match(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		e := treeEntry{rel: rel, mode: info.Mode()}

		listing.mu.Lock()
		defer listing.mu.Unlock()
		switch {
		case d.IsDir():
			listing.dirs = append(listing.dirs, e)
		case d.Type()&fs.ModeSymlink != 0:
			listing.links = append(listing.links, e)
		case d.Type().IsRegular():
			listing.files = append(listing.files, e)
		}
		// Sockets, devices and pipes are not part of an installation.
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", src, err)
	}

	return listing, nil
}

// copyFile copies a single regular file, preserving mode and modification time.
func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	// O_CREATE does not touch the mode of an existing file.
	if err := os.Chmod(dst, mode.Perm()); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dst, err)
	}

	if info, err := in.Stat(); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}

	return nil
}

// copySymlink recreates the link at src as dst, replacing whatever is there.
func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("failed to read link %s: %w", src, err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dst, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("failed to create link %s: %w", dst, err)
	}
	return nil
}

// CopyEntry copies a single top-level entry (file, directory or symlink).
func CopyEntry(ctx context.Context, src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	switch {
	case info.IsDir():
		return CopyTree(ctx, src, dst, nil)
	case info.Mode()&fs.ModeSymlink != 0:
		return copySymlink(src, dst)
	default:
		return copyFile(src, dst, info.Mode())
	}
}
