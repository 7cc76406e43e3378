package update

import (
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// Guard serializes update sessions per installation root. A caller that
// arrives while a session for the same root is in flight waits for it and
// receives its result instead of starting a second session.
type Guard struct {
	group singleflight.Group
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Do runs fn unless a call for root is already in flight. The boolean
// reports whether the result came from another caller's session.
func (g *Guard) Do(root string, fn func() Result) (Result, bool) {
	key := root
	if abs, err := filepath.Abs(root); err == nil {
		key = abs
	}

	v, _, shared := g.group.Do(key, func() (any, error) {
		return fn(), nil
	})
	return v.(Result), shared
}
