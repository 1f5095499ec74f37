package searchindex

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	_ "modernc.org/sqlite" // pure Go SQLite driver with FTS5
)

// SQLite is an Index backed by an SQLite FTS5 table. In WAL mode other
// processes can search it while it is being written.
type SQLite struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	fresh  bool
	closed bool
}

var _ Index = (*SQLite)(nil)

// NewSQLite opens the FTS5 index at path, creating it if needed. An empty
// path creates an in-memory index. A file that fails its integrity check is
// removed and recreated.
func NewSQLite(path string) (*SQLite, error) {
	dsn := ":memory:"
	fresh := true
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if _, err := os.Stat(path); err == nil {
			fresh = false
		}
		if validErr := checkSQLiteFile(path); validErr != nil {
			fresh = true
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w", path, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(ftsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db, path: path, fresh: fresh}, nil
}

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
    doc_id UNINDEXED,
    content,
    tokenize = 'unicode61'
);

CREATE TABLE IF NOT EXISTS doc_ids (
    doc_id TEXT PRIMARY KEY
);`

func checkSQLiteFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// AddDocument implements Index.
func (s *SQLite) AddDocument(ctx context.Context, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 tables do not support REPLACE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fts_content (doc_id, content) VALUES (?, ?)`, path, content); err != nil {
		return fmt.Errorf("failed to index %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO doc_ids (doc_id) VALUES (?)`, path); err != nil {
		return fmt.Errorf("failed to track %s: %w", path, err)
	}
	return tx.Commit()
}

// Search implements Index.
func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	match := matchExpression(query)
	if match == "" || limit <= 0 {
		return []Hit{}, nil
	}

	// bm25() is negative, lower is better.
	rows, err := s.db.QueryContext(ctx, `
SELECT doc_id, bm25(fts_content) AS score
FROM fts_content
WHERE fts_content MATCH ?
ORDER BY score
LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var score float64
		if err := rows.Scan(&h.Path, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.Score = -score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// matchExpression turns free text into an FTS5 query matching any of its
// words. Each word is quoted so punctuation cannot form FTS5 syntax, and
// words without a letter or digit are dropped.
func matchExpression(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if strings.IndexFunc(w, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Fresh implements Index.
func (s *SQLite) Fresh() bool {
	return s.fresh
}

// Count implements Index.
func (s *SQLite) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("index is closed")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close implements Index. It checkpoints the WAL and is safe to call more
// than once.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
