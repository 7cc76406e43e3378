package update

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Direction classifies the move from the installed to the published version.
type Direction int

const (
	// DirectionUnknown means at least one tag is not a semantic version.
	DirectionUnknown Direction = iota
	DirectionSame
	DirectionUpgrade
	DirectionDowngrade
)

func (d Direction) String() string {
	switch d {
	case DirectionSame:
		return "same"
	case DirectionUpgrade:
		return "upgrade"
	case DirectionDowngrade:
		return "downgrade"
	default:
		return "unknown"
	}
}

// CompareTags orders two release tags semantically. Supports formats like
// "0.8.2", "v0.8.2", "0.9.0-rc.1".
//
// The result is advisory only. Whether an update is offered is decided by
// exact tag equality, so a downgrade or a malformed tag is still installed;
// callers use the Direction to warn about it.
func CompareTags(current, latest string) (Direction, error) {
	cv, err := version.NewVersion(current)
	if err != nil {
		return DirectionUnknown, fmt.Errorf("invalid current version %q: %w", current, err)
	}

	lv, err := version.NewVersion(latest)
	if err != nil {
		return DirectionUnknown, fmt.Errorf("invalid latest version %q: %w", latest, err)
	}

	switch cv.Compare(lv) {
	case -1:
		return DirectionUpgrade, nil
	case 1:
		return DirectionDowngrade, nil
	default:
		return DirectionSame, nil
	}
}
