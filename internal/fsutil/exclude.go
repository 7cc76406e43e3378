// Package fsutil provides the bulk filesystem operations shared by backup,
// install and rollback: recursive tree copies, exclusion matching and
// clearing a directory while keeping a protected set of entries.
package fsutil

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which paths a tree copy skips. Patterns use doublestar
// syntax and are matched against slash-separated paths relative to the copy
// root, so "backups" only matches the top-level entry while
// "**/__pycache__" matches at any depth.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a matcher from the given patterns.
func NewMatcher(patterns ...string) (*Matcher, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	return &Matcher{patterns: append([]string(nil), patterns...)}, nil
}

// Match reports whether rel (relative to the copy root) is excluded.
// A nil matcher excludes nothing.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range m.patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
