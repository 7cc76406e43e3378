// Package git inspects installations that are git checkouts.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Level represents the severity of a git status.
type Level string

const (
	LevelOK      Level = "ok"      // Clean working tree
	LevelInfo    Level = "info"    // Not a git repository
	LevelWarning Level = "warning" // Uncommitted changes
	LevelError   Level = "error"   // Git operation failed
)

// Status represents the git status of an installation root.
type Status struct {
	Path           string // Absolute path to the installation
	IsGitRepo      bool   // Whether the path is inside a git work tree
	HasUncommitted bool   // Has uncommitted changes (staged, unstaged or untracked)
	CurrentBranch  string // Current branch name
	Level          Level  // Overall severity level
	Message        string // Human-readable status message
	Error          error  // Non-fatal error if any
}

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

// Run executes a command in the current directory.
func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// RunInDir executes a command in the specified directory.
func (r *DefaultCommandRunner) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Checker checks git status for installation roots.
type Checker struct {
	runner CommandRunner
}

// NewChecker creates a new Checker with the default command runner.
func NewChecker() *Checker {
	return &Checker{runner: &DefaultCommandRunner{}}
}

// NewCheckerWithRunner creates a Checker with a custom command runner (for testing).
func NewCheckerWithRunner(runner CommandRunner) *Checker {
	return &Checker{runner: runner}
}

// GitAvailable checks if git is available on the system.
func (c *Checker) GitAvailable(ctx context.Context) bool {
	_, err := c.runner.Run(ctx, "git", "--version")
	return err == nil
}

// CheckRepository reports whether path is a git checkout and whether its
// working tree has local changes. It never fetches from a remote.
func (c *Checker) CheckRepository(ctx context.Context, path string) Status {
	status := Status{Path: path}

	if _, err := os.Stat(path); err != nil {
		status.Level = LevelError
		status.Error = fmt.Errorf("path does not exist: %s", path)
		status.Message = status.Error.Error()
		return status
	}

	if !c.isGitRepo(ctx, path) {
		status.Level = LevelInfo
		status.Message = "not a git repository"
		return status
	}
	status.IsGitRepo = true

	branch, err := c.getCurrentBranch(ctx, path)
	if err != nil {
		status.Level = LevelError
		status.Error = err
		status.Message = fmt.Sprintf("failed to get current branch: %v", err)
		return status
	}
	status.CurrentBranch = branch

	hasChanges, err := c.hasUncommittedChanges(ctx, path)
	if err != nil {
		status.Level = LevelError
		status.Error = err
		status.Message = fmt.Sprintf("failed to check working tree: %v", err)
		return status
	}
	status.HasUncommitted = hasChanges

	if hasChanges {
		status.Level = LevelWarning
		status.Message = "uncommitted changes detected"
		return status
	}

	status.Level = LevelOK
	status.Message = "clean"
	return status
}

// isGitRepo checks if the path is inside a git work tree.
func (c *Checker) isGitRepo(ctx context.Context, path string) bool {
	output, err := c.runner.RunInDir(ctx, path, "git", "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(output)) == "true"
}

// getCurrentBranch returns the current branch name.
func (c *Checker) getCurrentBranch(ctx context.Context, path string) (string, error) {
	output, err := c.runner.RunInDir(ctx, path, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// hasUncommittedChanges checks for uncommitted, unstaged or untracked changes.
func (c *Checker) hasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	output, err := c.runner.RunInDir(ctx, path, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	// Any output means there are changes
	return strings.TrimSpace(string(output)) != "", nil
}
