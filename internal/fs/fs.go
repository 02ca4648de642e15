// Package fs provides the filesystem abstraction used by the command handlers.
package fs

// DirEntry represents a single directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// FileSystem abstracts file operations so callers can work with either
// the local disk or an in-memory filesystem in tests.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
	ReadDir(path string) ([]DirEntry, error)
	Exists(path string) bool
	SetReadOnly(path string, readonly bool) error
	IsReadOnly(path string) (bool, error)
}
