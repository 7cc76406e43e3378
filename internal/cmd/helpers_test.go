package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/config"
	"github.com/gerrxt07/niva/internal/git"
	"github.com/gerrxt07/niva/internal/logging"
	"github.com/gerrxt07/niva/internal/types"
	"github.com/gerrxt07/niva/internal/update"
)

const latestPath = "/repos/Gerrxt07/Niva-Console/releases/latest"

// releaseServer serves a latest-release document and its zipball.
type releaseServer struct {
	*httptest.Server
	tag     string
	archive []byte
}

func newReleaseServer(t *testing.T, tag string) *releaseServer {
	t.Helper()

	rs := &releaseServer{tag: tag, archive: releaseArchive(t, tag)}
	mux := http.NewServeMux()
	mux.HandleFunc(latestPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name":    rs.tag,
			"zipball_url": rs.URL + "/download/release.zip",
			"assets":      []any{},
		})
	})
	mux.HandleFunc("/download/release.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(rs.archive)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

// releaseArchive builds a GitHub-style zipball with a single top-level dir.
func releaseArchive(t *testing.T, tag string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"Niva-Console-abc123/main.py":        "print('" + tag + "')\n",
		"Niva-Console-abc123/config.toml":    "Version = \"" + tag + "\"\nLanguage = \"en\"\n",
		"Niva-Console-abc123/scripts/run.py": "run()\n",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
	return buf.Bytes()
}

// newInstallRoot creates an installation at version.
func newInstallRoot(t *testing.T, version string) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"main.py":           "print('old')\n",
		"config.toml":       "Version = \"" + version + "\"\nTheme = \"dark\"\n",
		"scripts/legacy.py": "legacy()\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create parent of %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

func testSettings(root, apiURL string) *config.Settings {
	return &config.Settings{
		Root:          root,
		Owner:         update.DefaultOwner,
		Repo:          update.DefaultRepo,
		APIURL:        apiURL,
		UserAgent:     update.DefaultUserAgent,
		RetryDelay:    time.Millisecond,
		MaxBackups:    backup.DefaultKeepCount,
		RequiredFiles: []string{"main.py", types.ConfigFileName},
		RequiredDirs:  []string{"scripts"},
	}
}

func installedVersion(t *testing.T, root string) string {
	t.Helper()

	v, err := config.NewStore(filepath.Join(root, types.ConfigFileName)).ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion() error = %v", err)
	}
	return v
}

// withTerminal pretends stdin is (or is not) a terminal for one test.
func withTerminal(t *testing.T, tty bool) {
	t.Helper()

	orig := isTerminal
	isTerminal = func() bool { return tty }
	t.Cleanup(func() { isTerminal = orig })
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("NIVA_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	v := viper.New()
	newRootCmd(v)

	s, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}

	if !filepath.IsAbs(s.Root) {
		t.Errorf("Root = %q, want an absolute path", s.Root)
	}
	if s.Owner != update.DefaultOwner || s.Repo != update.DefaultRepo {
		t.Errorf("repo = %s/%s", s.Owner, s.Repo)
	}
	if s.APIURL != update.DefaultBaseURL {
		t.Errorf("APIURL = %q", s.APIURL)
	}
	if s.RetryDelay != update.DefaultRetryDelay {
		t.Errorf("RetryDelay = %v", s.RetryDelay)
	}
	if s.MaxBackups != backup.DefaultKeepCount {
		t.Errorf("MaxBackups = %d", s.MaxBackups)
	}
	if got := strings.Join(s.RequiredFiles, ","); got != "main.py,config.toml" {
		t.Errorf("RequiredFiles = %s", got)
	}
	if got := strings.Join(s.RequiredDirs, ","); got != "scripts" {
		t.Errorf("RequiredDirs = %s", got)
	}
	if s.ConfigPath() != filepath.Join(s.Root, "config.toml") {
		t.Errorf("ConfigPath() = %q", s.ConfigPath())
	}
}

func TestLoadSettings_Environment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("NIVA_ROOT", root)
	t.Setenv("NIVA_MAX_BACKUPS", "3")
	t.Setenv("NIVA_RETRY_DELAY", "250ms")
	t.Setenv("NIVA_API_URL", "http://127.0.0.1:9999")
	t.Setenv("NIVA_BACKUP_EXCLUDES", "logs,**/*.log")
	t.Setenv("NIVA_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")

	v := viper.New()
	newRootCmd(v)

	s, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}

	if s.Root != root {
		t.Errorf("Root = %q, want %q", s.Root, root)
	}
	if s.MaxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", s.MaxBackups)
	}
	if s.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 250ms", s.RetryDelay)
	}
	if s.APIURL != "http://127.0.0.1:9999" {
		t.Errorf("APIURL = %q", s.APIURL)
	}
	if got := strings.Join(s.BackupExcludes, " "); got != "logs **/*.log" {
		t.Errorf("BackupExcludes = %q", got)
	}
	if s.Token != "ghp_fallback" {
		t.Errorf("Token = %q, want GITHUB_TOKEN fallback", s.Token)
	}
}

func TestLoadSettings_FlagsOverrideEnvironment(t *testing.T) {
	envRoot, flagRoot := t.TempDir(), t.TempDir()
	t.Setenv("NIVA_ROOT", envRoot)

	v := viper.New()
	root := newRootCmd(v)
	if err := root.PersistentFlags().Parse([]string{"--root", flagRoot, "--backup-dir", filepath.Join(flagRoot, "snapshots")}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	s, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.Root != flagRoot {
		t.Errorf("Root = %q, want flag value %q", s.Root, flagRoot)
	}
	if s.BackupPath() != filepath.Join(flagRoot, "snapshots") {
		t.Errorf("BackupPath() = %q", s.BackupPath())
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv("NIVA_MAX_BACKUPS", "0")
	t.Setenv("NIVA_API_URL", "ftp://example.com")

	v := viper.New()
	newRootCmd(v)

	_, err := loadSettings(v)
	if err == nil {
		t.Fatal("loadSettings() expected error")
	}
	for _, want := range []string{"max_backups", "api_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRequiredEntries(t *testing.T) {
	s := testSettings(t.TempDir(), "http://127.0.0.1")
	got := requiredEntries(s)

	want := []update.RequiredEntry{
		{Name: "main.py", Kind: types.EntryKindFile},
		{Name: "config.toml", Kind: types.EntryKindFile},
		{Name: "scripts", Kind: types.EntryKindDir},
	}
	if len(got) != len(want) {
		t.Fatalf("requiredEntries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

// gitRunner answers every git invocation from a fixed table.
type gitRunner map[string]string

func (r gitRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunInDir(ctx, "", name, args...)
}

func (r gitRunner) RunInDir(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	out, ok := r[name+" "+strings.Join(args, " ")]
	if !ok {
		return nil, errors.New("unexpected command")
	}
	return []byte(out), nil
}

func TestWarnLocalChanges(t *testing.T) {
	tests := []struct {
		name      string
		porcelain string
		wantWarn  bool
	}{
		{"dirty checkout", " M main.py\n", true},
		{"clean checkout", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := gitChecker
			gitChecker = git.NewCheckerWithRunner(gitRunner{
				"git --version":                       "git version 2.45.0",
				"git rev-parse --is-inside-work-tree": "true",
				"git rev-parse --abbrev-ref HEAD":     "main",
				"git status --porcelain":              tt.porcelain,
			})
			t.Cleanup(func() { gitChecker = orig })

			var buf bytes.Buffer
			logger, _ := logging.New(&buf, logging.Options{})
			warnLocalChanges(context.Background(), logger, t.TempDir())

			if got := strings.Contains(buf.String(), "uncommitted changes"); got != tt.wantWarn {
				t.Errorf("warned = %v, want %v: %q", got, tt.wantWarn, buf.String())
			}
		})
	}
}
