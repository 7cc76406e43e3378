package backup

import (
	"fmt"
)

// DefaultKeepCount is the default number of backups to retain.
const DefaultKeepCount = 5

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Record `json:"deleted" yaml:"deleted"`
	Kept    int      `json:"kept" yaml:"kept"`
}

// Prune removes old backups, keeping only the most recent keep backups.
// The oldest snapshots by modification time are removed first.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	records, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}

	if len(records) <= keep {
		result.Kept = len(records)
		return result, nil
	}

	sortOldestFirst(records)
	toDelete := records[:len(records)-keep]
	result.Kept = keep

	for _, rec := range toDelete {
		if err := m.Delete(rec.Name); err != nil {
			return nil, fmt.Errorf("failed to delete backup %s: %w", rec.Name, err)
		}
		result.Deleted = append(result.Deleted, rec)
	}

	return result, nil
}
