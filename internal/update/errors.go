package update

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gerrxt07/niva/internal/types"
)

// Kind classifies an update failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindStructure
	KindIntegrity
	KindFilesystem
	KindConfig
	KindCancelled
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNetwork    = errors.New("network error")
	ErrStructure  = errors.New("invalid package structure")
	ErrIntegrity  = errors.New("integrity check failed")
	ErrFilesystem = errors.New("filesystem error")
	ErrConfig     = errors.New("configuration error")
	ErrCancelled  = errors.New("update cancelled")

	// ErrChecksumMismatch indicates the computed SHA256 hash does not match the published digest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStructure:
		return "structure"
	case KindIntegrity:
		return "integrity"
	case KindFilesystem:
		return "filesystem"
	case KindConfig:
		return "config"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindStructure:
		return ErrStructure
	case KindIntegrity:
		return ErrIntegrity
	case KindFilesystem:
		return ErrFilesystem
	case KindConfig:
		return ErrConfig
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Error is a step failure tagged with its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MissingEntry is a required entry absent from (or of the wrong kind in) a tree.
type MissingEntry struct {
	Name     string
	Expected types.EntryKind
	Found    string // "" when absent, otherwise the kind actually present
}

func (m MissingEntry) String() string {
	if m.Found == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (expected %s, found %s)", m.Name, m.Expected, m.Found)
}

// StructureError lists every required entry that failed validation.
type StructureError struct {
	Missing []MissingEntry
}

func (e *StructureError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = m.String()
	}
	return "invalid update package. Missing: " + strings.Join(names, ", ")
}

// Unwrap returns ErrStructure so callers can use errors.Is.
func (e *StructureError) Unwrap() error { return ErrStructure }

// ChecksumError provides details about a checksum verification failure.
// It wraps ErrChecksumMismatch so callers can use errors.Is for classification.
type ChecksumError struct {
	Filename string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
