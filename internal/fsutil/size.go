package fsutil

import (
	"fmt"
	"io/fs"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// TreeSize returns the total size in bytes of the regular files under root.
func TreeSize(root string) (int64, error) {
	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", root, err)
	}

	return total.Load(), nil
}
