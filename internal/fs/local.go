package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalFS implements FileSystem on top of an afero.Fs.
type LocalFS struct {
	fs afero.Fs
}

// NewLocalFS creates a LocalFS on the host filesystem. When root is not empty,
// every path is resolved beneath root and cannot escape it.
func NewLocalFS(root string) *LocalFS {
	var base afero.Fs = afero.NewOsFs()
	if root != "" {
		base = afero.NewBasePathFs(base, root)
	}
	return &LocalFS{fs: base}
}

// NewMemFS creates a LocalFS backed by memory, for tests.
func NewMemFS() *LocalFS {
	return &LocalFS{fs: afero.NewMemMapFs()}
}

// ReadFile reads the whole file at path.
func (l *LocalFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(l.fs, path)
}

// WriteFile truncates or creates the file at path and writes data to it.
func (l *LocalFS) WriteFile(path string, data []byte) error {
	return afero.WriteFile(l.fs, path, data, 0o644)
}

// MkdirAll creates path and any missing parents.
func (l *LocalFS) MkdirAll(path string) error {
	return l.fs.MkdirAll(path, 0o755)
}

// ReadDir lists the immediate children of the directory at path in the order
// the filesystem returns them. Symlinks report whether their target is a directory.
func (l *LocalFS) ReadDir(path string) ([]DirEntry, error) {
	dir, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read directory failed: %w", err)
	}
	defer func() { _ = dir.Close() }()

	infos, err := dir.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("read directory failed: %w", err)
	}
	result := make([]DirEntry, len(infos))
	for i, info := range infos {
		isDir := info.IsDir()
		if info.Mode()&os.ModeSymlink != 0 {
			if target, err := l.fs.Stat(filepath.Join(path, info.Name())); err == nil {
				isDir = target.IsDir()
			}
		}
		result[i] = DirEntry{
			Name:  info.Name(),
			IsDir: isDir,
		}
	}
	return result, nil
}

// Exists reports whether anything exists at path. Errors count as absent.
func (l *LocalFS) Exists(path string) bool {
	ok, err := afero.Exists(l.fs, path)
	return err == nil && ok
}
