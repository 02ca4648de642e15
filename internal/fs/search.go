package fs

import (
	"log"
	"path/filepath"
	"strings"
)

// DefaultSearchDepth is how many directory levels FindFiles descends by default.
const DefaultSearchDepth = 5

// FindFiles walks dir up to maxDepth levels deep and returns the paths of files
// whose extension is one of exts (case-insensitive). Subdirectories for which
// exclude reports true are not entered; exclude may be nil. Directories that
// cannot be read are skipped.
func FindFiles(fsys FileSystem, dir string, exts []string, maxDepth int, exclude func(path string) bool) []string {
	if maxDepth < 0 {
		maxDepth = DefaultSearchDepth
	}
	var found []string
	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		if depth > maxDepth {
			return
		}
		entries, err := fsys.ReadDir(path)
		if err != nil {
			log.Printf("Warning: cannot read directory %s: %v", path, err)
			return
		}
		for _, entry := range entries {
			full := filepath.Join(path, entry.Name)
			if entry.IsDir {
				if exclude != nil && exclude(full) {
					continue
				}
				walk(full, depth+1)
			} else if hasExtension(entry.Name, exts) {
				found = append(found, full)
			}
		}
	}
	walk(dir, 0)
	return found
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
