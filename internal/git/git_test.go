package git

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type mockResponse struct {
	Output []byte
	Error  error
}

// MockCommandRunner mocks command execution for testing.
type MockCommandRunner struct {
	// Commands maps "dir:command args..." to output
	Commands map[string]mockResponse
}

// NewMockCommandRunner creates a new MockCommandRunner.
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{Commands: make(map[string]mockResponse)}
}

// AddCommand adds a command response.
func (m *MockCommandRunner) AddCommand(dir, cmd string, output []byte, err error) {
	m.Commands[dir+":"+cmd] = mockResponse{Output: output, Error: err}
}

// Run executes a command (not in a specific directory).
func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return m.RunInDir(ctx, "", name, args...)
}

// RunInDir executes a command in a directory.
func (m *MockCommandRunner) RunInDir(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := name
	for _, arg := range args {
		cmd += " " + arg
	}
	if resp, ok := m.Commands[dir+":"+cmd]; ok {
		return resp.Output, resp.Error
	}
	return nil, errors.New("command not mocked: " + dir + ":" + cmd)
}

func TestCheckerGitAvailable(t *testing.T) {
	tests := []struct {
		name      string
		gitOutput []byte
		gitError  error
		want      bool
	}{
		{
			name:      "git available",
			gitOutput: []byte("git version 2.40.0"),
			want:      true,
		},
		{
			name:     "git not available",
			gitError: errors.New("git not found"),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCommandRunner()
			mock.AddCommand("", "git --version", tt.gitOutput, tt.gitError)

			checker := NewCheckerWithRunner(mock)
			if got := checker.GitAvailable(context.Background()); got != tt.want {
				t.Errorf("GitAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckRepository(t *testing.T) {
	path := t.TempDir()

	tests := []struct {
		name       string
		setup      func(m *MockCommandRunner)
		wantLevel  Level
		wantRepo   bool
		wantDirty  bool
		wantBranch string
	}{
		{
			name: "clean",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", []byte("true\n"), nil)
				m.AddCommand(path, "git rev-parse --abbrev-ref HEAD", []byte("main\n"), nil)
				m.AddCommand(path, "git status --porcelain", []byte(""), nil)
			},
			wantLevel:  LevelOK,
			wantRepo:   true,
			wantBranch: "main",
		},
		{
			name: "uncommitted changes",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", []byte("true\n"), nil)
				m.AddCommand(path, "git rev-parse --abbrev-ref HEAD", []byte("dev\n"), nil)
				m.AddCommand(path, "git status --porcelain", []byte(" M main.py\n?? Database/\n"), nil)
			},
			wantLevel:  LevelWarning,
			wantRepo:   true,
			wantDirty:  true,
			wantBranch: "dev",
		},
		{
			name: "not a git repository",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", nil, errors.New("fatal: not a git repository"))
			},
			wantLevel: LevelInfo,
		},
		{
			name: "inside .git directory",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", []byte("false\n"), nil)
			},
			wantLevel: LevelInfo,
		},
		{
			name: "branch lookup fails",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", []byte("true\n"), nil)
				m.AddCommand(path, "git rev-parse --abbrev-ref HEAD", nil, errors.New("unknown revision"))
			},
			wantLevel: LevelError,
			wantRepo:  true,
		},
		{
			name: "status fails",
			setup: func(m *MockCommandRunner) {
				m.AddCommand(path, "git rev-parse --is-inside-work-tree", []byte("true\n"), nil)
				m.AddCommand(path, "git rev-parse --abbrev-ref HEAD", []byte("main\n"), nil)
				m.AddCommand(path, "git status --porcelain", nil, errors.New("index locked"))
			},
			wantLevel:  LevelError,
			wantRepo:   true,
			wantBranch: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCommandRunner()
			tt.setup(mock)

			status := NewCheckerWithRunner(mock).CheckRepository(context.Background(), path)

			if status.Level != tt.wantLevel {
				t.Errorf("Level = %v, want %v (%s)", status.Level, tt.wantLevel, status.Message)
			}
			if status.IsGitRepo != tt.wantRepo {
				t.Errorf("IsGitRepo = %v, want %v", status.IsGitRepo, tt.wantRepo)
			}
			if status.HasUncommitted != tt.wantDirty {
				t.Errorf("HasUncommitted = %v, want %v", status.HasUncommitted, tt.wantDirty)
			}
			if status.CurrentBranch != tt.wantBranch {
				t.Errorf("CurrentBranch = %q, want %q", status.CurrentBranch, tt.wantBranch)
			}
			if tt.wantLevel == LevelError && status.Error == nil {
				t.Error("Error = nil for an error level status")
			}
		})
	}
}

func TestCheckRepositoryMissingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")

	status := NewCheckerWithRunner(NewMockCommandRunner()).CheckRepository(context.Background(), path)

	if status.Level != LevelError {
		t.Errorf("Level = %v, want %v", status.Level, LevelError)
	}
	if status.IsGitRepo {
		t.Error("IsGitRepo = true for a missing path")
	}
}
