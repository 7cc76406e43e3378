package update

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntryBytes is the upper bound on a single extracted file (1 GiB).
// Prevents decompression bombs from exhausting the disk.
const maxEntryBytes = 1 << 30

var (
	// ErrUnsafePath indicates an archive entry that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")

	// ErrEmptyArchive indicates extraction produced no top-level entries.
	ErrEmptyArchive = errors.New("archive contains no entries")
)

// ExtractZip unpacks the zip archive at archivePath into destDir and returns
// the effective release root: the single top-level directory when the archive
// has exactly one (the zipball convention), otherwise destDir itself.
func ExtractZip(archivePath, destDir string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = r.Close()
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	base, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", destDir, err)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", destDir, err)
	}
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", destDir, err)
	}

	for _, f := range r.File {
		if err := extractEntry(f, base, realBase); err != nil {
			return "", err
		}
	}

	return resolveRoot(base)
}

// extractEntry writes one archive member. base is the destination as given,
// realBase the same directory with symlinks resolved; every entry must resolve
// inside realBase on disk, not just by name.
func extractEntry(f *zip.File, base, realBase string) error {
	target, err := safeJoin(base, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	if mode&os.ModeSymlink != 0 {
		return extractSymlink(f, realBase, target)
	}

	if _, err := resolveInside(realBase, target); err != nil {
		return fmt.Errorf("%w: %q", err, f.Name)
	}
	if mode.IsDir() {
		return os.MkdirAll(target, mode.Perm()|0700)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", f.Name, err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.Name, err)
	}

	n, copyErr := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		return fmt.Errorf("extracting %s: %w", f.Name, copyErr)
	case n > maxEntryBytes:
		return fmt.Errorf("extracting %s: entry exceeds %d bytes", f.Name, maxEntryBytes)
	case closeErr != nil:
		return fmt.Errorf("writing %s: %w", f.Name, closeErr)
	}

	return nil
}

// extractSymlink recreates a symlink entry whose target stays inside
// realBase. The target is resolved from the directory the link really lands
// in, so links created through earlier links cannot climb out.
func extractSymlink(f *zip.File, realBase, target string) error {
	parent, err := resolveInside(realBase, filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("%w: %q", err, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return fmt.Errorf("reading link %s: %w", f.Name, err)
	}

	// A clean target can only climb with leading "..", which resolves
	// against the real parent; later components are checked on disk.
	link := filepath.FromSlash(string(raw))
	if link == "" || filepath.IsAbs(link) || filepath.Clean(link) != link {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, f.Name, raw)
	}
	if _, err := resolveInside(realBase, filepath.Join(parent, link)); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, f.Name, raw)
	}

	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", f.Name, err)
	}
	at := filepath.Join(parent, filepath.Base(target))
	_ = os.RemoveAll(at)
	return os.Symlink(link, at)
}

// safeJoin resolves an archive entry name under base, rejecting absolute
// names and any name that climbs out of base.
func safeJoin(base, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	clean := filepath.FromSlash(name)
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	target := filepath.Join(base, clean)
	if !within(base, target) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

// resolveInside resolves the symlinks along the existing prefix of path and
// fails with ErrUnsafePath unless the result lies inside realBase.
func resolveInside(realBase, path string) (string, error) {
	existing, rest := path, ""
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	prefix, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %v", ErrUnsafePath, path, err)
	}
	resolved := filepath.Join(prefix, rest)
	if !within(realBase, resolved) {
		return "", ErrUnsafePath
	}
	return resolved, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}

	switch {
	case len(entries) == 0:
		return "", ErrEmptyArchive
	case len(entries) == 1 && entries[0].IsDir():
		return filepath.Join(dir, entries[0].Name()), nil
	default:
		return dir, nil
	}
}
