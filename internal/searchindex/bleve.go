package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Bleve is an Index backed by Bleve v2.
type Bleve struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	fresh  bool
	closed bool
}

var _ Index = (*Bleve)(nil)

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleve opens the Bleve index at path, creating it if needed. An empty
// path creates an in-memory index. A directory that fails its integrity
// check is cleared and recreated; its notes must be reindexed.
func NewBleve(path string) (*Bleve, error) {
	indexMapping := newMapping()

	var idx bleve.Index
	var err error
	fresh := true
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, fresh, err = openOrCreateBleve(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &Bleve{index: idx, path: path, fresh: fresh}, nil
}

// openOrCreateBleve reports true when the returned index was created empty.
func openOrCreateBleve(path string, indexMapping mapping.IndexMapping) (bleve.Index, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	if validErr := checkBleveDir(path); validErr != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, false, fmt.Errorf("index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		idx, err = bleve.New(path, indexMapping)
		return idx, err == nil, err
	case err != nil && isBleveCorruption(err):
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, false, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		slog.Info("bleve_index_cleared", slog.String("path", path))
		idx, err = bleve.New(path, indexMapping)
		return idx, err == nil, err
	default:
		return idx, false, err
	}
}

// checkBleveDir returns an error when an existing index directory has a
// missing or unreadable index_meta.json.
func checkBleveDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

func newMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name
	return m
}

// AddDocument implements Index.
func (b *Bleve) AddDocument(_ context.Context, path, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if err := b.index.Index(path, bleveDocument{Content: content}); err != nil {
		return fmt.Errorf("failed to index %s: %w", path, err)
	}
	return nil
}

// Search implements Index.
func (b *Bleve) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Hit{}, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	req := bleve.NewSearchRequest(match)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{Path: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Fresh implements Index.
func (b *Bleve) Fresh() bool {
	return b.fresh
}

// Count implements Index.
func (b *Bleve) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close implements Index. It is safe to call more than once.
func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
