package profile

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrUnsafePath is returned for profile paths that must never be wiped
var ErrUnsafePath = errors.New("refusing to remove unsafe profile path")

// Reset removes the scratch profile directory. A missing directory is not an error.
func Reset(fs afero.Fs, dir string) error {
	clean := filepath.Clean(dir)
	if dir == "" || clean == "/" || clean == "." {
		return fmt.Errorf("%w: %q", ErrUnsafePath, dir)
	}

	if err := fs.RemoveAll(clean); err != nil {
		return fmt.Errorf("failed to remove profile dir %s: %w", clean, err)
	}
	return nil
}
