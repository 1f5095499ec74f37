// Package scanner walks a watched directory tree and turns every matching
// file into a model.Observation.
package scanner

import (
	"path/filepath"
	"strings"
)

// Options configures the scanner behavior.
type Options struct {
	// Extensions is the allowlist of file extensions. Empty allows every file.
	// Entries may be given with or without the leading dot.
	Extensions []string

	// SkipDirs are absolute directories whose subtrees are never visited.
	// The data directory goes here when it lives inside the root.
	SkipDirs []string

	// Buffer is the capacity of the channel returned by Scan (0 = 64).
	Buffer int
}

// DefaultBuffer is the default Scan channel capacity.
const DefaultBuffer = 64

// ExtensionFilter decides which paths a crawl or watch reports.
// The zero value allows everything.
type ExtensionFilter struct {
	suffixes []string
}

// NewExtensionFilter normalizes exts to lower case with a leading dot.
// Blank entries are ignored.
func NewExtensionFilter(exts []string) ExtensionFilter {
	var f ExtensionFilter
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.suffixes = append(f.suffixes, ext)
	}
	return f
}

// Allows reports whether path's name ends in an allowed extension.
// Multi-part extensions such as ".tar.gz" match by suffix.
func (f ExtensionFilter) Allows(path string) bool {
	if len(f.suffixes) == 0 {
		return true
	}
	name := strings.ToLower(filepath.Base(path))
	for _, s := range f.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// IsWithin reports whether path equals or lies under one of dirs.
func IsWithin(path string, dirs []string) bool {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}
