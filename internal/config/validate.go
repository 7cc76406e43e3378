package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gerrxt07/niva/internal/fsutil"
	"github.com/gerrxt07/niva/internal/types"
)

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the settings for required fields and valid values.
// Every problem is reported, not just the first.
func (s *Settings) Validate() error {
	var errors []string

	if s.Root == "" {
		errors = append(errors, ValidationError{Field: "root", Message: "installation root is required"}.Error())
	}

	if s.Owner == "" {
		errors = append(errors, ValidationError{Field: "owner", Message: "release owner is required"}.Error())
	}
	if s.Repo == "" {
		errors = append(errors, ValidationError{Field: "repo", Message: "release repository is required"}.Error())
	}

	if err := validateAPIURL(s.APIURL); err != nil {
		errors = append(errors, err.Error())
	}

	if s.MaxBackups < 1 {
		errors = append(errors, ValidationError{
			Field:   "max_backups",
			Message: fmt.Sprintf("must be at least 1, got %d", s.MaxBackups),
		}.Error())
	}

	if s.RetryDelay < 0 {
		errors = append(errors, ValidationError{Field: "retry_delay", Message: "must not be negative"}.Error())
	}

	for i, pattern := range s.BackupExcludes {
		if _, err := fsutil.NewMatcher(pattern); err != nil {
			errors = append(errors, ValidationError{Field: fmt.Sprintf("backup_excludes[%d]", i), Message: err.Error()}.Error())
		}
	}

	if len(s.RequiredFiles)+len(s.RequiredDirs) == 0 {
		errors = append(errors, ValidationError{Field: "required_files", Message: "at least one required entry is needed"}.Error())
	}
	for i, name := range s.RequiredFiles {
		if err := validateEntryName(fmt.Sprintf("required_files[%d]", i), name); err != nil {
			errors = append(errors, err.Error())
		}
	}
	for i, name := range s.RequiredDirs {
		if err := validateEntryName(fmt.Sprintf("required_dirs[%d]", i), name); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateAPIURL(raw string) error {
	if raw == "" {
		return ValidationError{Field: "api_url", Message: "API URL is required"}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "api_url", Message: fmt.Sprintf("invalid URL '%s'", raw)}
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ValidationError{Field: "api_url", Message: fmt.Sprintf("unsupported scheme '%s' (must be https or http)", u.Scheme)}
	}

	return nil
}

// validateEntryName requires a single top-level name outside the protected set.
func validateEntryName(field, name string) error {
	switch {
	case name == "":
		return ValidationError{Field: field, Message: "name is required"}
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.IsAbs(name):
		return ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be a top-level name", name)}
	case types.IsProtected(name):
		return ValidationError{Field: field, Message: fmt.Sprintf("'%s' is reserved for the updater", name)}
	}
	return nil
}
