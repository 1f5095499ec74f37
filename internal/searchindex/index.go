// Package searchindex is the full-text index notes are written into.
//
// Two backends implement Index: Bleve (a directory ending in .bleve) and
// SQLite FTS5 (a file ending in .db). Documents are keyed by path, so adding
// a path again replaces its document.
package searchindex

import (
	"context"
	"fmt"
)

// Backend names an Index implementation.
type Backend string

const (
	// BackendBleve stores the index with Bleve. A Bleve index is held
	// exclusively by one process at a time.
	BackendBleve Backend = "bleve"

	// BackendSQLite stores the index in an SQLite FTS5 table, which other
	// processes can read while it is written.
	BackendSQLite Backend = "sqlite"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = BackendBleve

// Index is a full-text search engine over note contents.
type Index interface {
	// AddDocument indexes content under path, replacing any earlier document.
	AddDocument(ctx context.Context, path, content string) error

	// Search returns up to limit documents matching any term of query, best
	// first. A blank query returns no hits.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)

	// Count returns the number of indexed documents.
	Count() (int, error)

	// Fresh reports whether opening created the index empty, either because
	// none existed or because the old one failed its integrity check.
	// Anything recorded as indexed before must be indexed again.
	Fresh() bool

	Close() error
}

// Hit is one search result.
type Hit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// ParseBackend validates a backend name. An empty name selects DefaultBackend.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case "":
		return DefaultBackend, nil
	case BackendBleve, BackendSQLite:
		return Backend(name), nil
	default:
		return "", fmt.Errorf("unknown index backend %q (valid options: bleve, sqlite)", name)
	}
}

// Location returns the on-disk location for basePath under backend.
func Location(basePath string, backend Backend) string {
	if backend == BackendSQLite {
		return basePath + ".db"
	}
	return basePath + ".bleve"
}

// Open opens or creates the index for basePath. An empty basePath creates an
// in-memory index.
func Open(basePath string, backend Backend) (Index, error) {
	switch backend {
	case BackendSQLite:
		if basePath == "" {
			return NewSQLite("")
		}
		return NewSQLite(Location(basePath, backend))
	case BackendBleve, "":
		if basePath == "" {
			return NewBleve("")
		}
		return NewBleve(Location(basePath, BackendBleve))
	default:
		return nil, fmt.Errorf("unknown index backend %q (valid options: bleve, sqlite)", backend)
	}
}
