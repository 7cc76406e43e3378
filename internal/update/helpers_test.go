package update

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// zipEntry is one member of a test archive. A name ending in "/" is a
// directory; link makes the entry a symlink pointing at link.
type zipEntry struct {
	name    string
	content string
	link    string
}

// buildZip renders entries into an in-memory zip archive.
func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		switch {
		case strings.HasSuffix(e.name, "/"):
			hdr.SetMode(fs.ModeDir | 0755)
		case e.link != "":
			hdr.SetMode(fs.ModeSymlink | 0777)
		default:
			hdr.SetMode(0644)
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("Failed to add %s: %v", e.name, err)
		}
		body := e.content
		if e.link != "" {
			body = e.link
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Failed to write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
	return buf.Bytes()
}

// zipball wraps files in a single top-level directory, the layout GitHub
// uses for release zipballs.
func zipball(t *testing.T, prefix string, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := []zipEntry{{name: prefix + "/"}}
	seen := map[string]bool{}
	for _, name := range names {
		if dir := filepath.ToSlash(filepath.Dir(name)); dir != "." && !seen[dir] {
			seen[dir] = true
			entries = append(entries, zipEntry{name: prefix + "/" + dir + "/"})
		}
		entries = append(entries, zipEntry{name: prefix + "/" + name, content: files[name]})
	}
	return buildZip(t, entries...)
}

func writeZip(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "release.zip")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write archive: %v", err)
	}
	return path
}

// writeTree creates files (slash-separated relative paths) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create parent of %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

// snapshotTree maps every path under root to its content ("<dir>" for
// directories), so two snapshots compare equal only for identical trees.
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()

	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			tree[rel] = "<dir>"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to snapshot %s: %v", root, err)
	}
	return tree
}

func assertSameTree(t *testing.T, before, after map[string]string) {
	t.Helper()

	for path, want := range before {
		got, ok := after[path]
		switch {
		case !ok:
			t.Errorf("%s was removed", path)
		case got != want:
			t.Errorf("%s changed: got %q, want %q", path, got, want)
		}
	}
	for path := range after {
		if _, ok := before[path]; !ok {
			t.Errorf("%s was added", path)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
