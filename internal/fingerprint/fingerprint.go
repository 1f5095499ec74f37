// Package fingerprint derives the stable identity of a path.
//
// Every component keys files by Fingerprint rather than by path string, so
// two spellings of the same location ("notes/./a.txt", "notes/a.txt") always
// land on the same record.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Fingerprint is the hex SHA-256 digest of a canonical path.
type Fingerprint string

// String implements fmt.Stringer.
func (f Fingerprint) String() string { return string(f) }

// Short returns the first 12 hex characters, for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Canonical returns the absolute, cleaned form of path. If the working
// directory cannot be resolved the cleaned path is returned as is.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Of returns the fingerprint of path's canonical form.
func Of(path string) Fingerprint {
	sum := sha256.Sum256([]byte(Canonical(path)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// DefaultCacheSize is the number of paths a Cache remembers by default.
const DefaultCacheSize = 4096

// Cache memoizes Of for hot paths such as editor save bursts.
// It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, Fingerprint]
}

// NewCache creates a cache holding up to size entries.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes.
	entries, _ := lru.New[string, Fingerprint](size)
	return &Cache{entries: entries}
}

// Of returns the fingerprint of path, computing it at most once per entry.
func (c *Cache) Of(path string) Fingerprint {
	if fp, ok := c.entries.Get(path); ok {
		return fp
	}
	fp := Of(path)
	c.entries.Add(path, fp)
	return fp
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
