package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/config"
	"github.com/gerrxt07/niva/internal/git"
	"github.com/gerrxt07/niva/internal/interactive"
	"github.com/gerrxt07/niva/internal/logging"
	"github.com/gerrxt07/niva/internal/output"
	"github.com/gerrxt07/niva/internal/types"
	"github.com/gerrxt07/niva/internal/update"
)

// isTerminal reports whether stdin can answer a confirmation prompt.
// Tests replace it.
var isTerminal = interactive.IsTerminal

// gitChecker inspects installations that are git checkouts.
var gitChecker = git.NewChecker()

// loadSettings decodes and validates the updater settings.
func loadSettings(v *viper.Viper) (*config.Settings, error) {
	var s config.Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if s.Root != "" {
		root, err := filepath.Abs(s.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", s.Root, err)
		}
		s.Root = root
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// requiredEntries converts the configured names into structure rules.
func requiredEntries(s *config.Settings) []update.RequiredEntry {
	entries := make([]update.RequiredEntry, 0, len(s.RequiredFiles)+len(s.RequiredDirs))
	for _, name := range s.RequiredFiles {
		entries = append(entries, update.RequiredEntry{Name: name, Kind: types.EntryKindFile})
	}
	for _, name := range s.RequiredDirs {
		entries = append(entries, update.RequiredEntry{Name: name, Kind: types.EntryKindDir})
	}
	return entries
}

// newLogger builds the session logger from the global verbosity flags.
func newLogger(w io.Writer, s *config.Settings) (*log.Logger, io.Closer) {
	return logging.New(w, logging.Options{
		Verbose: verbose,
		Quiet:   quiet,
		File:    s.LogFile,
	})
}

func newBackupManager(s *config.Settings) *backup.Manager {
	return backup.NewManagerWithDir(s.Root, s.BackupPath()).WithExcludes(s.BackupExcludes...)
}

func newReleaseClient(s *config.Settings, logger *log.Logger) *update.GitHubClient {
	return update.NewGitHubClient(
		update.WithBaseURL(s.APIURL),
		update.WithRepo(s.Owner, s.Repo),
		update.WithToken(s.Token),
		update.WithUserAgent(s.UserAgent),
		update.WithRetryDelay(s.RetryDelay),
		update.WithClientLogger(logger),
	)
}

// newOrchestrator wires an orchestrator for the configured installation.
func newOrchestrator(s *config.Settings, logger *log.Logger, opts ...update.Option) *update.Orchestrator {
	base := []update.Option{
		update.WithSnapshotter(newBackupManager(s)),
		update.WithRequiredEntries(requiredEntries(s)),
		update.WithMaxBackups(s.MaxBackups),
		update.WithLogger(logger),
	}
	return update.NewOrchestrator(
		s.Root,
		config.NewStore(s.ConfigPath()),
		newReleaseClient(s, logger),
		append(base, opts...)...,
	)
}

// warnLocalChanges logs a warning when root is a git checkout with
// uncommitted changes, which an update overwrites.
func warnLocalChanges(ctx context.Context, logger *log.Logger, root string) {
	if !gitChecker.GitAvailable(ctx) {
		return
	}

	status := gitChecker.CheckRepository(ctx, root)
	switch status.Level {
	case git.LevelWarning:
		logger.Warn("Installation has uncommitted changes that will be overwritten", "root", root, "branch", status.CurrentBranch)
	case git.LevelError:
		logger.Debug("Git status check failed", "root", root, "err", status.Error)
	}
}

// parseFormat reads the global --output flag.
func parseFormat() (output.Format, error) {
	return output.ParseFormat(outputFormat)
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
