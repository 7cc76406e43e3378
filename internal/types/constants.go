// Package types provides type-safe constants for the niva updater.
//
// This package centralizes the enumerated types and installation layout names
// used throughout the codebase, replacing magic strings with typed constants
// that provide compile-time safety and validation methods.
package types

import "fmt"

// Installation layout, relative to the installation root.
const (
	// BackupsDirName holds one directory per backup snapshot.
	BackupsDirName = "backups"
	// StagingDirName is where a validated release is assembled before the swap.
	StagingDirName = "update_staging"
	// TempDirName receives the downloaded archive and its extracted tree.
	TempDirName = "temp_update"
	// GitDirName is version-control metadata, never backed up or replaced.
	GitDirName = ".git"
	// ConfigFileName is the application configuration document.
	ConfigFileName = "config.toml"
)

// ProtectedNames returns the top-level entries that an update or rollback
// must never delete or overwrite.
func ProtectedNames() []string {
	return []string{BackupsDirName, StagingDirName, TempDirName, GitDirName}
}

// IsProtected reports whether a top-level entry name is in the protected set.
func IsProtected(name string) bool {
	for _, p := range ProtectedNames() {
		if name == p {
			return true
		}
	}
	return false
}

// EntryKind represents the expected filesystem kind of a required entry.
type EntryKind string

const (
	// EntryKindFile indicates a regular file.
	EntryKindFile EntryKind = "file"
	// EntryKindDir indicates a directory.
	EntryKindDir EntryKind = "dir"
)

// Validate checks if the EntryKind is a valid value.
func (k EntryKind) Validate() error {
	switch k {
	case EntryKindFile, EntryKindDir:
		return nil
	case "":
		return fmt.Errorf("entry kind is required")
	default:
		return fmt.Errorf("invalid entry kind '%s' (must be file or dir)", k)
	}
}

// String returns the string representation of the EntryKind.
func (k EntryKind) String() string {
	return string(k)
}

// IsDir returns true if the entry kind is a directory.
func (k EntryKind) IsDir() bool {
	return k == EntryKindDir
}
