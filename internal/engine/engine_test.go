package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notehunt/internal/config"
	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/searchindex"
)

var backends = []searchindex.Backend{searchindex.BackendBleve, searchindex.BackendSQLite}

func testConfig(t *testing.T, backend searchindex.Backend) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.Index.Backend = string(backend)
	cfg.Index.BatchSize = 2
	cfg.Pipeline.BridgeTimeout = "5s"
	cfg.Watch.IndexInterval = "50ms"
	require.NoError(t, cfg.Validate())
	return cfg
}

func openEngine(t *testing.T, cfg *config.Config, mode Mode) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg, mode)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEngine_CrawlIndexSearch(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a root with two notes and one ignored file
			cfg := testConfig(t, backend)
			apples := writeNote(t, cfg.Root, "fruit/apples.txt", "red apples and pears")
			writeNote(t, cfg.Root, "tools.txt", "hammer and nails")
			writeNote(t, cfg.Root, "readme.md", "apples everywhere")
			e := openEngine(t, cfg, ReadWrite)
			ctx := context.Background()

			// When: crawling
			crawl, err := e.Crawl(ctx)

			// Then: both notes are tracked as Pending
			require.NoError(t, err)
			assert.Equal(t, 2, crawl.Observed)
			assert.Equal(t, int64(2), crawl.Merged)
			assert.Zero(t, crawl.Deleted)

			st, err := e.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), st.Counts[model.StatusPending])

			// When: indexing
			res, err := e.Index(ctx)

			// Then: both are Complete and searchable
			require.NoError(t, err)
			assert.Equal(t, 2, res.Indexed)
			assert.Equal(t, 1, res.Batches)

			st, err = e.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), st.Counts[model.StatusComplete])
			assert.Equal(t, int64(2), st.Tracked)
			assert.Equal(t, 2, st.IndexedDocuments)
			assert.False(t, st.IndexUnavailable)

			hits, err := e.Search(ctx, "apples", 0)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, apples, hits[0].Path)
		})
	}
}

func TestEngine_CrawlIsIdempotent(t *testing.T) {
	cfg := testConfig(t, searchindex.BackendSQLite)
	writeNote(t, cfg.Root, "a.txt", "alpha")
	e := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()

	_, err := e.Crawl(ctx)
	require.NoError(t, err)
	again, err := e.Crawl(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, again.Observed)
	assert.Zero(t, again.Merged)
	assert.Zero(t, again.Deleted)
}

func TestEngine_DeletedThenPurged(t *testing.T) {
	// Given: an indexed note
	cfg := testConfig(t, searchindex.BackendSQLite)
	path := writeNote(t, cfg.Root, "gone.txt", "soon gone")
	writeNote(t, cfg.Root, "kept.txt", "still here")
	e := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := e.Crawl(ctx)
	require.NoError(t, err)

	// When: the note is removed and the root crawled again
	require.NoError(t, os.Remove(path))
	crawl, err := e.Crawl(ctx)

	// Then: its record is swept to Deleted
	require.NoError(t, err)
	assert.Equal(t, int64(1), crawl.Deleted)

	// When: purging
	purged, err := e.Purge(ctx)

	// Then: the Deleted record is gone
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Tracked)
	assert.Zero(t, st.Counts[model.StatusDeleted])
}

func TestEngine_Reindex(t *testing.T) {
	// Given: two indexed notes
	cfg := testConfig(t, searchindex.BackendSQLite)
	a := writeNote(t, cfg.Root, "a.txt", "alpha")
	writeNote(t, cfg.Root, "b.txt", "beta")
	e := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := e.Crawl(ctx)
	require.NoError(t, err)
	_, err = e.Index(ctx)
	require.NoError(t, err)

	// When: one path is requeued
	n, err := e.Reindex(ctx, []string{a}, false)

	// Then: only it is Pending again
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Counts[model.StatusPending])

	// When: everything is requeued
	n, err = e.Reindex(ctx, nil, true)

	// Then: the remaining Complete record moves too
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	st, err = e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Counts[model.StatusPending])
}

func TestEngine_ReindexWithoutPaths(t *testing.T) {
	e := openEngine(t, testConfig(t, searchindex.BackendSQLite), ReadWrite)

	_, err := e.Reindex(context.Background(), nil, false)

	assert.Equal(t, nherrors.ErrCodeInvalidInput, nherrors.GetCode(err))
}

func TestEngine_SearchEmptyQuery(t *testing.T) {
	e := openEngine(t, testConfig(t, searchindex.BackendSQLite), ReadWrite)

	_, err := e.Search(context.Background(), "   ", 5)

	assert.Equal(t, nherrors.ErrCodeQueryEmpty, nherrors.GetCode(err))
}

func TestEngine_SecondWriterRefused(t *testing.T) {
	// Given: an engine owning the data directory
	cfg := testConfig(t, searchindex.BackendSQLite)
	openEngine(t, cfg, ReadWrite)

	// When: a second read-write engine opens it
	_, err := Open(context.Background(), cfg, ReadWrite)

	// Then: the lock is held
	assert.Equal(t, nherrors.ErrCodeLockHeld, nherrors.GetCode(err))
}

func TestEngine_ReadOnlyBesideOwner_Bleve(t *testing.T) {
	// Given: a running owner with a Bleve index
	cfg := testConfig(t, searchindex.BackendBleve)
	writeNote(t, cfg.Root, "a.txt", "alpha")
	owner := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := owner.Crawl(ctx)
	require.NoError(t, err)

	// When: a read-only engine opens the same data directory
	ro := openEngine(t, cfg, ReadOnly)

	// Then: table counts are readable but the index is not
	st, err := ro.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Counts[model.StatusPending])
	assert.True(t, st.IndexUnavailable)

	_, err = ro.Search(ctx, "alpha", 5)
	assert.Equal(t, nherrors.ErrCodeIndexUnavailable, nherrors.GetCode(err))

	_, err = ro.Crawl(ctx)
	assert.Error(t, err)
}

func TestEngine_ReadOnlyBesideOwner_SQLite(t *testing.T) {
	// Given: a running owner with an indexed SQLite backend
	cfg := testConfig(t, searchindex.BackendSQLite)
	path := writeNote(t, cfg.Root, "a.txt", "alpha")
	owner := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := owner.Crawl(ctx)
	require.NoError(t, err)
	_, err = owner.Index(ctx)
	require.NoError(t, err)

	// When: a read-only engine searches
	ro := openEngine(t, cfg, ReadOnly)
	hits, err := ro.Search(ctx, "alpha", 5)

	// Then: it sees the owner's documents
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, path, hits[0].Path)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig(t, searchindex.BackendBleve)
	e, err := Open(context.Background(), cfg, ReadWrite)
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())

	// the lock is free again
	again, err := Open(context.Background(), cfg, ReadWrite)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestEngine_Watch(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a root with one note and a watching engine
			cfg := testConfig(t, backend)
			existing := writeNote(t, cfg.Root, "existing.txt", "lighthouse keeper")
			e := openEngine(t, cfg, ReadWrite)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- e.Watch(ctx) }()
			t.Cleanup(func() {
				cancel()
				<-done
			})

			searchFor := func(query, want string) func() bool {
				return func() bool {
					hits, err := e.Search(context.Background(), query, 5)
					return err == nil && len(hits) == 1 && hits[0].Path == want
				}
			}

			// Then: the initial crawl indexes the existing note
			assert.Eventually(t, searchFor("lighthouse", existing), 5*time.Second, 50*time.Millisecond)

			// When: a new note is moved into place while watching
			staged := writeNote(t, cfg.Root, "fresh.tmp", "submarine captain")
			fresh := filepath.Join(cfg.Root, "fresh.txt")
			require.NoError(t, os.Rename(staged, fresh))

			// Then: it is indexed by a periodic run
			assert.Eventually(t, searchFor("submarine", fresh), 5*time.Second, 50*time.Millisecond)

			// When: the context is cancelled
			cancel()

			// Then: Watch returns cleanly
			select {
			case err := <-done:
				assert.NoError(t, err)
				done <- nil
			case <-time.After(5 * time.Second):
				t.Fatal("Watch did not return")
			}
		})
	}
}

func TestEngine_CrawlWithUnreadableRootKeepsRecords(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	// Given: two notes tracked by a first crawl
	cfg := testConfig(t, searchindex.BackendSQLite)
	writeNote(t, cfg.Root, "a.txt", "alpha")
	writeNote(t, cfg.Root, "nested/b.txt", "beta")
	e := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := e.Crawl(ctx)
	require.NoError(t, err)

	// When: the root can no longer be listed and is crawled again
	require.NoError(t, os.Chmod(cfg.Root, 0o000))
	t.Cleanup(func() { _ = os.Chmod(cfg.Root, 0o755) })
	_, err = e.Crawl(ctx)

	// Then: the crawl is reported incomplete and nothing is marked Deleted
	require.Error(t, err)
	assert.Equal(t, nherrors.ErrCodeCrawlIncomplete, nherrors.GetCode(err))
	assert.True(t, nherrors.IsRetryable(err))

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Counts[model.StatusDeleted])
	assert.Equal(t, int64(2), st.Counts[model.StatusPending])
}

func TestEngine_CrawlWithUnreadableDirKeepsItsRecords(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	// Given: notes in the root and in a sub directory
	cfg := testConfig(t, searchindex.BackendSQLite)
	writeNote(t, cfg.Root, "a.txt", "alpha")
	writeNote(t, cfg.Root, "locked/b.txt", "beta")
	writeNote(t, cfg.Root, "locked/c.txt", "gamma")
	e := openEngine(t, cfg, ReadWrite)
	ctx := context.Background()
	_, err := e.Crawl(ctx)
	require.NoError(t, err)

	// When: the sub directory becomes unreadable
	locked := filepath.Join(cfg.Root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })
	res, err := e.Crawl(ctx)

	// Then: its records survive and the directory is reported
	require.NoError(t, err)
	assert.Equal(t, []string{locked}, res.Unvisited)
	assert.Equal(t, 1, res.Observed)
	assert.Zero(t, res.Deleted)

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Counts[model.StatusDeleted])
	assert.Equal(t, int64(3), st.Counts[model.StatusPending])
}

func TestEngine_WatchDirectoryMovedOutMarksDeleted(t *testing.T) {
	// Given: a watched root with a sub directory of two indexed notes
	cfg := testConfig(t, searchindex.BackendSQLite)
	writeNote(t, cfg.Root, "keep.txt", "anchor")
	writeNote(t, cfg.Root, "trip/day1.txt", "harbour")
	writeNote(t, cfg.Root, "trip/day2.txt", "island")
	e := openEngine(t, cfg, ReadWrite)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	countOf := func(status model.FileStatus, want int64) func() bool {
		return func() bool {
			st, err := e.Status(context.Background())
			return err == nil && st.Counts[status] == want
		}
	}
	require.Eventually(t, countOf(model.StatusComplete, 3), 5*time.Second, 50*time.Millisecond)

	// When: the sub directory is moved out of the root
	require.NoError(t, os.Rename(filepath.Join(cfg.Root, "trip"), filepath.Join(t.TempDir(), "trip")))

	// Then: both notes under it become Deleted and the other stays Complete
	assert.Eventually(t, countOf(model.StatusDeleted, 2), 5*time.Second, 50*time.Millisecond)
	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Counts[model.StatusComplete])
}

func TestEngine_CorruptIndexRequeuesOnOpen(t *testing.T) {
	corrupt := map[searchindex.Backend]func(t *testing.T, location string){
		searchindex.BackendBleve: func(t *testing.T, location string) {
			require.NoError(t, os.WriteFile(filepath.Join(location, "index_meta.json"), []byte("{broken"), 0o644))
		},
		searchindex.BackendSQLite: func(t *testing.T, location string) {
			require.NoError(t, os.WriteFile(location, []byte("not a database"), 0o644))
		},
	}
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			// Given: two notes indexed and Complete
			cfg := testConfig(t, backend)
			writeNote(t, cfg.Root, "a.txt", "quartz crystal")
			writeNote(t, cfg.Root, "b.txt", "granite boulder")
			ctx := context.Background()
			e, err := Open(ctx, cfg, ReadWrite)
			require.NoError(t, err)
			_, err = e.Crawl(ctx)
			require.NoError(t, err)
			_, err = e.Index(ctx)
			require.NoError(t, err)
			location := e.indexLocation()
			require.NoError(t, e.Close())

			// When: the index is damaged and the engine reopened
			corrupt[backend](t, location)
			e = openEngine(t, cfg, ReadWrite)

			// Then: every note is Pending again
			st, err := e.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), st.Counts[model.StatusPending])
			assert.Zero(t, st.Counts[model.StatusComplete])
			assert.Zero(t, st.IndexedDocuments)

			// When: indexing runs
			res, err := e.Index(ctx)

			// Then: the notes are searchable again
			require.NoError(t, err)
			assert.Equal(t, 2, res.Indexed)
			hits, err := e.Search(ctx, "granite", 5)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestEngine_ReopenKeepsCompleteRecords(t *testing.T) {
	// Given: an indexed note and a clean close
	cfg := testConfig(t, searchindex.BackendBleve)
	writeNote(t, cfg.Root, "a.txt", "cedar")
	ctx := context.Background()
	e, err := Open(ctx, cfg, ReadWrite)
	require.NoError(t, err)
	_, err = e.Crawl(ctx)
	require.NoError(t, err)
	_, err = e.Index(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// When: reopened with the index intact
	e = openEngine(t, cfg, ReadWrite)

	// Then: nothing is requeued
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Counts[model.StatusComplete])
	assert.Zero(t, st.Counts[model.StatusPending])
}
