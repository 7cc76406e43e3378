// Package backup snapshots the installation tree before an update and restores
// it when an update fails.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gerrxt07/niva/internal/fsutil"
	"github.com/gerrxt07/niva/internal/types"
)

const (
	// NamePrefix starts every backup directory name.
	NamePrefix = "niva_backup_"
	// TimestampLayout is the timestamp embedded in backup names.
	TimestampLayout = "20060102-150405"
)

// DefaultExcludes are the paths never copied into a snapshot: the backups root,
// the transient update directories, version-control metadata and bytecode caches.
var DefaultExcludes = []string{
	types.BackupsDirName,
	types.StagingDirName,
	types.TempDirName,
	types.GitDirName,
	"**/__pycache__",
	"**/*.pyc",
}

// ErrInvalidName is returned when a backup name would escape the backups root.
var ErrInvalidName = errors.New("invalid backup name")

// Record describes a single backup snapshot on disk.
type Record struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Manager handles backup operations for one installation root.
type Manager struct {
	installRoot string
	backupDir   string
	excludes    []string
	now         func() time.Time
}

// NewManager creates a backup manager that keeps snapshots in the
// "backups" directory of installRoot.
func NewManager(installRoot string) *Manager {
	return NewManagerWithDir(installRoot, filepath.Join(installRoot, types.BackupsDirName))
}

// NewManagerWithDir creates a backup manager with a custom backups directory.
func NewManagerWithDir(installRoot, backupDir string) *Manager {
	return &Manager{
		installRoot: installRoot,
		backupDir:   backupDir,
		excludes:    append([]string(nil), DefaultExcludes...),
		now:         time.Now,
	}
}

// WithExcludes appends extra exclusion patterns to the defaults.
func (m *Manager) WithExcludes(patterns ...string) *Manager {
	m.excludes = append(m.excludes, patterns...)
	return m
}

// BackupDir returns the backup directory path.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Create copies sourceRoot into a new timestamp-named snapshot directory.
// A partially written snapshot is removed before the error is returned.
func (m *Manager) Create(ctx context.Context, sourceRoot string) (*Record, error) {
	exclude, err := m.matcher(sourceRoot)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := m.now()
	name, path, err := m.claimName(now)
	if err != nil {
		return nil, err
	}

	if err := fsutil.CopyTree(ctx, sourceRoot, path, exclude); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("failed to copy installation into backup: %w", err)
	}

	// Pin the directory time to the creation time so pruning orders by it.
	if err := os.Chtimes(path, now, now); err != nil {
		return nil, fmt.Errorf("failed to timestamp backup: %w", err)
	}

	return &Record{Name: name, Path: path, CreatedAt: now}, nil
}

// matcher builds the exclusion set for a copy rooted at sourceRoot. A backups
// directory that lives inside the source tree is always excluded, whatever
// it is called.
func (m *Manager) matcher(sourceRoot string) (*fsutil.Matcher, error) {
	patterns := append([]string(nil), m.excludes...)

	if rel, err := filepath.Rel(sourceRoot, m.backupDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		patterns = append(patterns, filepath.ToSlash(rel))
	}

	return fsutil.NewMatcher(patterns...)
}

// claimName reserves a unique snapshot directory for the given time.
// Snapshots taken within the same second get a numeric suffix.
func (m *Manager) claimName(now time.Time) (string, string, error) {
	base := NamePrefix + now.Format(TimestampLayout)
	for i := 1; i < 1000; i++ {
		name := base
		if i > 1 {
			name = base + "-" + strconv.Itoa(i)
		}
		path := filepath.Join(m.backupDir, name)
		err := os.Mkdir(path, 0755)
		if err == nil {
			return name, path, nil
		}
		if !os.IsExist(err) {
			return "", "", fmt.Errorf("failed to create backup %s: %w", name, err)
		}
	}
	return "", "", fmt.Errorf("too many backups for timestamp %s", base)
}

// List returns all backups sorted newest first. Ordering is by directory
// modification time, ties broken by name.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		records = append(records, Record{
			Name:      entry.Name(),
			Path:      filepath.Join(m.backupDir, entry.Name()),
			CreatedAt: info.ModTime(),
		})
	}

	sortOldestFirst(records)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// Latest returns the most recent backup.
func (m *Manager) Latest() (*Record, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoBackup
	}
	return &records[0], nil
}

// Get retrieves a backup by name. Use "latest" to get the most recent backup.
func (m *Manager) Get(name string) (*Record, error) {
	if name == "latest" {
		return m.Latest()
	}

	path, err := m.pathFor(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("backup not found: %s", name)
	}

	return &Record{Name: name, Path: path, CreatedAt: info.ModTime()}, nil
}

// Delete removes a backup by name.
func (m *Manager) Delete(name string) error {
	path, err := m.pathFor(name)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", name)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	return nil
}

// pathFor resolves a backup name to its directory, rejecting names that
// are not a single path element.
func (m *Manager) pathFor(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(m.backupDir, name), nil
}

// sortOldestFirst orders records by modification time ascending, ties by name.
func sortOldestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Name < records[j].Name
	})
}
