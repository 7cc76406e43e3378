package config

import (
	"path/filepath"
	"time"

	"github.com/gerrxt07/niva/internal/types"
)

// Settings configures the updater itself. Values come from command-line
// flags and NIVA_* environment variables. BackupExcludes are doublestar
// patterns skipped in addition to the built-in backup exclusions.
type Settings struct {
	Root           string        `mapstructure:"root" json:"root" yaml:"root"`
	ConfigFile     string        `mapstructure:"config" json:"config" yaml:"config"`
	BackupDir      string        `mapstructure:"backup_dir" json:"backup_dir" yaml:"backup_dir"`
	Owner          string        `mapstructure:"owner" json:"owner" yaml:"owner"`
	Repo           string        `mapstructure:"repo" json:"repo" yaml:"repo"`
	APIURL         string        `mapstructure:"api_url" json:"api_url" yaml:"api_url"`
	Token          string        `mapstructure:"token" json:"-" yaml:"-"`
	UserAgent      string        `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	MaxBackups     int           `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	BackupExcludes []string      `mapstructure:"backup_excludes" json:"backup_excludes" yaml:"backup_excludes"`
	RequiredFiles  []string      `mapstructure:"required_files" json:"required_files" yaml:"required_files"`
	RequiredDirs   []string      `mapstructure:"required_dirs" json:"required_dirs" yaml:"required_dirs"`
	LogFile        string        `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
}

// ConfigPath returns the configuration document path, defaulting to
// config.toml in the installation root.
func (s *Settings) ConfigPath() string {
	if s.ConfigFile != "" {
		return s.ConfigFile
	}
	return filepath.Join(s.Root, types.ConfigFileName)
}

// BackupPath returns the backups directory, defaulting to backups in the
// installation root.
func (s *Settings) BackupPath() string {
	if s.BackupDir != "" {
		return s.BackupDir
	}
	return filepath.Join(s.Root, types.BackupsDirName)
}
