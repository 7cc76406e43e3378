package update

import (
	"os"
	"path/filepath"

	"github.com/gerrxt07/niva/internal/types"
)

// ValidateStructure checks that every required entry exists under tree with
// the expected kind. All problems are collected into a single *StructureError.
func ValidateStructure(tree string, required []RequiredEntry) error {
	var missing []MissingEntry

	for _, req := range required {
		info, err := os.Stat(filepath.Join(tree, req.Name))
		if err != nil {
			missing = append(missing, MissingEntry{Name: req.Name, Expected: req.Kind})
			continue
		}

		switch {
		case req.Kind.IsDir() && !info.IsDir():
			missing = append(missing, MissingEntry{Name: req.Name, Expected: req.Kind, Found: kindOf(info)})
		case !req.Kind.IsDir() && !info.Mode().IsRegular():
			missing = append(missing, MissingEntry{Name: req.Name, Expected: req.Kind, Found: kindOf(info)})
		}
	}

	if len(missing) > 0 {
		return &StructureError{Missing: missing}
	}
	return nil
}

func kindOf(info os.FileInfo) string {
	switch {
	case info.IsDir():
		return types.EntryKindDir.String()
	case info.Mode().IsRegular():
		return types.EntryKindFile.String()
	default:
		return info.Mode().Type().String()
	}
}
