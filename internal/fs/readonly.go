package fs

import (
	"fmt"
	"os"
)

const writeBits os.FileMode = 0o222

func isReadOnlyMode(mode os.FileMode) bool {
	return mode.Perm()&writeBits == 0
}

// SetReadOnly sets or clears the read-only flag of path. Read-only removes every
// write bit; writable restores the owner write bit. On Windows the runtime maps
// the owner write bit onto the read-only file attribute.
func (l *LocalFS) SetReadOnly(path string, readonly bool) error {
	info, err := l.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("get file metadata failed: %w", err)
	}
	mode := info.Mode().Perm()
	if readonly {
		mode &^= writeBits
	} else {
		mode |= 0o200
	}
	if err := l.fs.Chmod(path, mode); err != nil {
		return fmt.Errorf("set file permissions failed: %w", err)
	}
	return nil
}

// IsReadOnly reports whether path has no write bit set.
func (l *LocalFS) IsReadOnly(path string) (bool, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return false, fmt.Errorf("get file metadata failed: %w", err)
	}
	return isReadOnlyMode(info.Mode()), nil
}
