package update

import (
	"path/filepath"

	"github.com/gerrxt07/niva/internal/fsutil"
)

const (
	archiveFileName = "release.zip"
	extractDirName  = "extracted"
)

// Session is the state of one update invocation. It is owned by the
// orchestrator and discarded when the invocation returns.
type Session struct {
	CurrentVersion string
	TargetVersion  string
	BackupPath     string // set once a backup has been created
	StagingDir     string
	TempDir        string
	State          State

	release *Release
}

func (s *Session) archivePath() string {
	return filepath.Join(s.TempDir, archiveFileName)
}

func (s *Session) extractDir() string {
	return filepath.Join(s.TempDir, extractDirName)
}

// Cleanup removes the staging and temp directories.
func (s *Session) Cleanup() error {
	return fsutil.RemovePaths(s.StagingDir, s.TempDir)
}

// Result is what an update invocation reports to its caller.
type Result struct {
	Succeeded bool   `json:"succeeded" yaml:"succeeded"`
	Message   string `json:"message" yaml:"message"`
	State     State  `json:"state" yaml:"state"`
}

// CheckResult describes the latest release relative to the installed version.
type CheckResult struct {
	CurrentVersion string   `json:"current_version" yaml:"current_version"`
	LatestVersion  string   `json:"latest_version" yaml:"latest_version"`
	Available      bool     `json:"available" yaml:"available"`
	Direction      string   `json:"direction" yaml:"direction"`
	Release        *Release `json:"release,omitempty" yaml:"release,omitempty"`
}
