// Package config reads and rewrites the application configuration document
// and describes the updater's own settings.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// VersionKey is the document key holding the installed version.
const VersionKey = "Version"

// ErrMissingVersion is returned when the document has no usable Version field.
var ErrMissingVersion = errors.New("missing Version field")

// ConfigError reports a configuration document that cannot be read or written.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Document is a parsed configuration document. Only Version is typed; every
// other key is carried through a save unchanged.
type Document struct {
	Version string
	values  map[string]any
	format  Format
}

// Store loads and saves the configuration document at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the document.
func (s *Store) Load() (*Document, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &ConfigError{Path: s.path, Err: fmt.Errorf("failed to read: %w", err)}
	}

	format := detectFormat(s.path, content)
	if format == FormatUnknown {
		return nil, &ConfigError{Path: s.path, Err: fmt.Errorf("unable to detect file format")}
	}

	values, err := parse(content, format)
	if err != nil {
		return nil, &ConfigError{Path: s.path, Err: err}
	}

	raw, ok := values[VersionKey]
	if !ok {
		return nil, &ConfigError{Path: s.path, Err: ErrMissingVersion}
	}
	version, ok := raw.(string)
	if !ok {
		return nil, &ConfigError{Path: s.path, Err: fmt.Errorf("%w: Version must be a string, got %T", ErrMissingVersion, raw)}
	}

	return &Document{Version: version, values: values, format: format}, nil
}

// Save rewrites the whole document with doc.Version in place. The file is
// replaced atomically through a temporary file in the same directory.
func (s *Store) Save(doc *Document) error {
	values := maps.Clone(doc.values)
	if values == nil {
		values = make(map[string]any)
	}
	values[VersionKey] = doc.Version

	format := doc.format
	if format == FormatUnknown {
		format = detectFormat(s.path, nil)
	}

	data, err := encode(values, format)
	if err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}
	return nil
}

// ReadVersion returns the installed version.
func (s *Store) ReadVersion() (string, error) {
	doc, err := s.Load()
	if err != nil {
		return "", err
	}
	return doc.Version, nil
}

// WriteVersion re-reads the document, sets Version and saves it.
func (s *Store) WriteVersion(version string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.Version = version
	return s.Save(doc)
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace: %w", err)
	}
	return nil
}
