package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WithTempFile creates a collision-resistant scratch file under dir, hands
// its path to fn, and removes it on every exit path. All temporary media
// files must go through this helper so a failed upload never leaks a file.
func WithTempFile(dir, suffix string, fn func(path string) error) (err error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "social-publisher")
	}
	if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
		return fmt.Errorf("create temp dir: %w", mkErr)
	}

	path := filepath.Join(dir, uuid.NewString()+suffix)
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("remove temp file: %w", rmErr)
		}
	}()

	return fn(path)
}
