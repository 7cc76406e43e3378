package update

import (
	"context"
	"io"
	"strings"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/types"
)

// Release describes the latest published release.
type Release struct {
	Tag        string  `json:"tag" yaml:"tag"`
	ArchiveURL string  `json:"archive_url" yaml:"archive_url"`
	Assets     []Asset `json:"assets" yaml:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// ChecksumAsset returns the first asset whose name ends in ".sha256", or nil.
func (r *Release) ChecksumAsset() *Asset {
	for i := range r.Assets {
		if strings.HasSuffix(strings.ToLower(r.Assets[i].Name), ".sha256") {
			return &r.Assets[i]
		}
	}
	return nil
}

// RequiredEntry is an entry that must exist at the top of a release tree.
type RequiredEntry struct {
	Name string          `json:"name" yaml:"name" mapstructure:"name"`
	Kind types.EntryKind `json:"kind" yaml:"kind" mapstructure:"kind"`
}

// DefaultRequiredEntries is the minimum layout of a valid installation.
var DefaultRequiredEntries = []RequiredEntry{
	{Name: "main.py", Kind: types.EntryKindFile},
	{Name: types.ConfigFileName, Kind: types.EntryKindFile},
	{Name: "scripts", Kind: types.EntryKindDir},
}

// ProgressFunc receives cumulative bytes received and the expected total,
// which is -1 when the server sent no Content-Length.
type ProgressFunc func(received, total int64)

// ReleaseSource looks up the latest release.
type ReleaseSource interface {
	GetLatest(ctx context.Context) (*Release, error)
	FetchText(ctx context.Context, url string) (string, error)
}

// Fetcher streams a remote file into dst.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dst io.Writer, progress ProgressFunc) (int64, error)
}

// VersionStore reads and persists the installed version.
type VersionStore interface {
	ReadVersion() (string, error)
	WriteVersion(version string) error
}

// Snapshotter creates, prunes and restores installation backups.
type Snapshotter interface {
	Create(ctx context.Context, sourceRoot string) (*backup.Record, error)
	Prune(keep int) (*backup.PruneResult, error)
	Restore(ctx context.Context, backupPath string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}
