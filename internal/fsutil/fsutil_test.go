package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeTree creates files under root; a trailing slash in a key creates a directory.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatalf("Failed to create dir %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create parent of %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	writeTree(t, src, map[string]string{
		"main.py":             "print('hi')",
		"config.toml":         "Version = \"v1.0.0\"",
		"scripts/core/run.py": "run()",
		"empty/":              "",
	})
	if err := os.Chmod(filepath.Join(src, "main.py"), 0755); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}

	if err := CopyTree(context.Background(), src, dst, nil); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "scripts", "core", "run.py"))
	if err != nil {
		t.Fatalf("Failed to read copied file: %v", err)
	}
	if string(got) != "run()" {
		t.Errorf("copied content = %q, want %q", got, "run()")
	}

	info, err := os.Stat(filepath.Join(dst, "empty"))
	if err != nil || !info.IsDir() {
		t.Errorf("empty directory not copied: %v", err)
	}

	info, err = os.Stat(filepath.Join(dst, "main.py"))
	if err != nil {
		t.Fatalf("Failed to stat main.py: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0755 {
		t.Errorf("main.py mode = %o, want 0755", info.Mode().Perm())
	}
}

func TestCopyTree_Exclude(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{
		"main.py":                       "x",
		"backups/niva_backup_1/main.py": "old",
		"update_staging/main.py":        "staged",
		"scripts/__pycache__/a.pyc":     "bytecode",
		"scripts/lib.py":                "lib",
		"scripts/backups/keep.txt":      "nested backups dir is not the backups root",
		".git/HEAD":                     "ref",
	})

	exclude := newMatcher(t, "backups", "update_staging", "**/__pycache__", ".git")
	if err := CopyTree(context.Background(), src, dst, exclude); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	for _, absent := range []string{"backups", "update_staging", "scripts/__pycache__", ".git"} {
		if Exists(filepath.Join(dst, filepath.FromSlash(absent))) {
			t.Errorf("%s should have been excluded", absent)
		}
	}
	for _, present := range []string{"main.py", "scripts/lib.py", "scripts/backups/keep.txt"} {
		if !Exists(filepath.Join(dst, filepath.FromSlash(present))) {
			t.Errorf("%s should have been copied", present)
		}
	}
}

func TestCopyTree_Overwrites(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{"a.txt": "new"})
	writeTree(t, dst, map[string]string{"a.txt": "old content that is longer"})

	if err := CopyTree(context.Background(), src, dst, nil); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(dst, "a.txt"))
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestCopyTree_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"target.txt": "data"})
	if err := os.Symlink("target.txt", filepath.Join(src, "link.txt")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if err := CopyTree(context.Background(), src, dst, nil); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	if err != nil {
		t.Fatalf("link not recreated: %v", err)
	}
	if target != "target.txt" {
		t.Errorf("link target = %q, want target.txt", target)
	}
}

func TestCopyTree_SourceMissing(t *testing.T) {
	err := CopyTree(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil)
	if err == nil {
		t.Error("Expected error for missing source")
	}
}

func TestCopyTree_Cancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := CopyTree(ctx, src, t.TempDir(), nil); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestCopyEntry_File(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"main.py": "main"})

	if err := CopyEntry(context.Background(), filepath.Join(src, "main.py"), filepath.Join(dst, "main.py")); err != nil {
		t.Fatalf("CopyEntry() error = %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dst, "main.py"))
	if string(got) != "main" {
		t.Errorf("content = %q, want main", got)
	}
}

func TestClearDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":          "x",
		"scripts/a.py":     "a",
		"backups/b/x":      "b",
		"update_staging/y": "y",
	})

	keep := func(name string) bool { return name == "backups" || name == "update_staging" }
	if err := ClearDir(root, keep); err != nil {
		t.Fatalf("ClearDir() error = %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("Failed to read root: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("ClearDir() left %d entries, want 2", len(entries))
	}
	if Exists(filepath.Join(root, "main.py")) || Exists(filepath.Join(root, "scripts")) {
		t.Error("unprotected entries should be removed")
	}
}

func TestClearDir_Missing(t *testing.T) {
	if err := ClearDir(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestRemovePaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/x": "1", "b/y": "2"})

	err := RemovePaths(filepath.Join(root, "a"), filepath.Join(root, "b"), filepath.Join(root, "missing"), "")
	if err != nil {
		t.Fatalf("RemovePaths() error = %v", err)
	}
	if Exists(filepath.Join(root, "a")) || Exists(filepath.Join(root, "b")) {
		t.Error("paths should be removed")
	}
}

func newMatcher(t *testing.T, patterns ...string) *Matcher {
	t.Helper()
	m, err := NewMatcher(patterns...)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	return m
}

func TestMatcher(t *testing.T) {
	m := newMatcher(t, "backups", "**/__pycache__", "**/*.pyc")

	tests := []struct {
		rel  string
		want bool
	}{
		{"backups", true},
		{"scripts/backups", false},
		{"__pycache__", true},
		{"scripts/core/__pycache__", true},
		{"scripts/core/mod.pyc", true},
		{"main.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := m.Match(filepath.FromSlash(tt.rel)); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}

	var nilMatcher *Matcher
	if nilMatcher.Match("anything") {
		t.Error("nil matcher should match nothing")
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewMatcher("[unclosed"); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestTreeSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":        "print('hi')\n",
		"scripts/run.py": "x",
		"Database/empty": "",
	})

	got, err := TreeSize(root)
	if err != nil {
		t.Fatalf("TreeSize() error = %v", err)
	}
	if got != 13 {
		t.Errorf("TreeSize() = %d, want 13", got)
	}

	if _, err := TreeSize(filepath.Join(root, "missing")); err == nil {
		t.Error("TreeSize() expected error for missing root")
	}
}
